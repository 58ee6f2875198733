package softgpu

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/zeebo/blake3"

	"github.com/tahsin716/chunkdispatch"
)

var _ chunkdispatch.PrimaryContext = (*Immediate)(nil)

// FrameResult summarizes what the immediate context executed in one frame.
type FrameResult struct {
	// Digest is the blake3 hash of every executed command, in execution
	// order. Two frames with identical submissions have identical digests.
	Digest [32]byte

	// Order lists the worker of each executed command list.
	Order []int

	Lists    int
	Draws    int
	Vertices int
}

// DigestHex returns the digest as a hex string.
func (r FrameResult) DigestHex() string {
	return hex.EncodeToString(r.Digest[:])
}

// Immediate executes command lists in the order they are submitted. It is
// not safe for concurrent use.
type Immediate struct {
	hasher  *blake3.Hasher
	scratch []byte
	frame   FrameResult
}

// NewImmediate creates an immediate context.
func NewImmediate() *Immediate {
	return &Immediate{
		hasher:  blake3.New(),
		scratch: make([]byte, 0, 96),
	}
}

// Execute replays a command list produced by a Deferred context.
func (im *Immediate) Execute(buf chunkdispatch.CommandBuffer) error {
	list, ok := buf.(*CommandList)
	if !ok {
		return fmt.Errorf("softgpu: unsupported command buffer %T", buf)
	}

	im.frame.Lists++
	im.frame.Order = append(im.frame.Order, list.Worker)

	for _, cmd := range list.Commands {
		im.hash(list.Worker, cmd)
		if cmd.Op == OpDraw {
			im.frame.Draws++
			im.frame.Vertices += cmd.Vertices
		}
	}
	return nil
}

// EndFrame returns the frame summary and starts a new frame.
func (im *Immediate) EndFrame() FrameResult {
	res := im.frame
	copy(res.Digest[:], im.hasher.Sum(nil))

	im.hasher.Reset()
	im.frame = FrameResult{}
	return res
}

// hash folds one command into the frame digest.
func (im *Immediate) hash(worker int, cmd Command) {
	b := im.scratch[:0]
	b = binary.LittleEndian.AppendUint32(b, uint32(worker))
	b = append(b, byte(cmd.Op))

	switch cmd.Op {
	case OpBeginFrame:
		b = binary.LittleEndian.AppendUint64(b, cmd.Frame)
	case OpSetViewProj:
		for _, f := range cmd.ViewProj {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
	case OpDraw:
		b = binary.LittleEndian.AppendUint32(b, uint32(cmd.Mesh))
		b = binary.LittleEndian.AppendUint32(b, uint32(cmd.Vertices))
	}

	im.hasher.Write(b)
	im.scratch = b
}
