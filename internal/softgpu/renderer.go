package softgpu

import (
	"fmt"

	"github.com/tahsin716/chunkdispatch"
)

var _ chunkdispatch.Executor[*Deferred, Scene, View] = (*Renderer)(nil)

// Renderer records scenes into deferred contexts, one mesh per chunk.
type Renderer struct{}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// ExecuteSetup begins the frame on dc, binds the scene and records the
// view state every draw of the frame depends on.
func (r *Renderer) ExecuteSetup(dc *Deferred, scene *Scene, view View) error {
	if err := dc.Begin(); err != nil {
		return err
	}
	dc.Bind(scene)

	if err := dc.Record(Command{Op: OpBeginFrame, Frame: view.Frame}); err != nil {
		return err
	}
	return dc.Record(Command{Op: OpSetViewProj, ViewProj: view.ViewProj})
}

// ExecuteChunk records the draw of mesh chunk. Meshes without vertices are
// rejected.
func (r *Renderer) ExecuteChunk(dc *Deferred, chunk int) error {
	mesh, err := dc.mesh(chunk)
	if err != nil {
		return err
	}
	if mesh.Vertices <= 0 {
		return fmt.Errorf("softgpu: mesh %d (%q) has no vertices", chunk, mesh.Name)
	}
	return dc.Record(Command{Op: OpDraw, Mesh: chunk, Vertices: mesh.Vertices})
}

// FinalizeContext ends recording and returns the command list.
func (r *Renderer) FinalizeContext(dc *Deferred) (chunkdispatch.CommandBuffer, error) {
	dc.Bind(nil)
	list, err := dc.End()
	if err != nil {
		return nil, err
	}
	return list, nil
}
