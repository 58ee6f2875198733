// Package softgpu is a small software stand-in for a graphics API with
// deferred and immediate contexts. Deferred contexts record typed commands
// into command lists; the immediate context replays lists in submission
// order and folds them into a frame digest.
//
// It gives the dispatch system a real collaborator to drive in tests and
// in the framebench binary without any GPU.
package softgpu

// OpCode identifies the type of a recorded command.
type OpCode uint8

const (
	// OpBeginFrame marks the start of a worker's recording for a frame.
	OpBeginFrame OpCode = iota
	// OpSetViewProj binds the frame's view-projection matrix.
	OpSetViewProj
	// OpDraw draws one mesh.
	OpDraw
)

var opNames = [...]string{
	OpBeginFrame:  "BeginFrame",
	OpSetViewProj: "SetViewProj",
	OpDraw:        "Draw",
}

// String returns the command name.
func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "Unknown"
}

// Matrix is a column-major 4x4 matrix.
type Matrix [16]float32

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Command is one recorded operation. Only the fields used by Op are set.
type Command struct {
	Op       OpCode
	Frame    uint64
	Mesh     int
	Vertices int
	ViewProj Matrix
}

// CommandList is the output of a deferred context: everything one worker
// recorded for one frame.
type CommandList struct {
	Worker   int
	Commands []Command
}

// Draws returns the number of draw commands in the list.
func (l *CommandList) Draws() int {
	n := 0
	for _, c := range l.Commands {
		if c.Op == OpDraw {
			n++
		}
	}
	return n
}

// Mesh is one drawable piece of a scene.
type Mesh struct {
	Name     string
	Vertices int
}

// Scene is the per-frame static parameter block: read-only while a frame
// is being recorded.
type Scene struct {
	Meshes []Mesh
}

// View is the per-frame dynamic parameter block, copied into every worker.
type View struct {
	Frame    uint64
	ViewProj Matrix
}
