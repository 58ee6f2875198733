package softgpu

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRecording is returned when recording into a context that has
	// not begun a frame.
	ErrNotRecording = errors.New("softgpu: context is not recording")

	// ErrAlreadyRecording is returned by Begin on a context that has not
	// ended its previous frame.
	ErrAlreadyRecording = errors.New("softgpu: context is already recording")
)

// Deferred records commands without executing them. A Deferred is not
// safe for concurrent use; the dispatch system gives each worker its own.
type Deferred struct {
	id        int
	recording bool
	commands  []Command

	// scene is bound by Setup and read by the chunks that follow
	scene *Scene
}

// NewDeferred creates a deferred context for the given worker.
func NewDeferred(id int) *Deferred {
	return &Deferred{id: id}
}

// ID returns the worker index the context was created for.
func (d *Deferred) ID() int {
	return d.id
}

// Begin starts a new command list.
func (d *Deferred) Begin() error {
	if d.recording {
		return ErrAlreadyRecording
	}
	d.recording = true
	// the previous list may still be referenced by the immediate context
	d.commands = make([]Command, 0, 16)
	return nil
}

// Record appends a command to the list being recorded.
func (d *Deferred) Record(cmd Command) error {
	if !d.recording {
		return ErrNotRecording
	}
	d.commands = append(d.commands, cmd)
	return nil
}

// End stops recording and returns the command list.
func (d *Deferred) End() (*CommandList, error) {
	if !d.recording {
		return nil, ErrNotRecording
	}
	d.recording = false
	list := &CommandList{Worker: d.id, Commands: d.commands}
	d.commands = nil
	return list, nil
}

// Bind sets the scene subsequent draws read meshes from.
func (d *Deferred) Bind(scene *Scene) {
	d.scene = scene
}

// mesh looks up a mesh of the bound scene.
func (d *Deferred) mesh(i int) (Mesh, error) {
	if d.scene == nil {
		return Mesh{}, fmt.Errorf("softgpu: worker %d: no scene bound", d.id)
	}
	if i < 0 || i >= len(d.scene.Meshes) {
		return Mesh{}, fmt.Errorf("softgpu: worker %d: mesh %d out of range [0, %d)", d.id, i, len(d.scene.Meshes))
	}
	return d.scene.Meshes[i], nil
}
