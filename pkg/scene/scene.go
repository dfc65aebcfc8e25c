// Package scene defines the capability boundary between the randomization
// components and the external simulator.
//
// Every component receives a [Control] in its constructor and addresses scene
// entities through opaque [Handle] values resolved by name. Two
// implementations exist: the HTTP adapter in pkg/simclient, which talks to a
// running simulator, and the in-memory simulator in pkg/scene/fake used by
// tests.
//
// # Calls
//
// All methods block until the simulator replies. There is no retry in this
// layer: a transport failure surfaces as an error coded
// [errors.ErrCodeTransport] and is fatal to the collection run.
//
// # Script functions
//
// Anything beyond pose get/set goes through [Control.CallScript], a generic
// (ints, floats, strings, buffer) call into a script attached to the scene.
// The argument shapes used by this repository are defined once, in
// script.go, and nowhere else.
package scene

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
)

// Handle is an opaque simulator identifier for a named scene entity.
type Handle int

// World is the reference frame used when a position or orientation is
// absolute rather than relative to another object.
const World Handle = -1

// Invalid is returned by simulators that could not resolve a handle.
const Invalid Handle = -1

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("#%d", int(h))
}

// Pose is a position and Euler orientation (radians) of one entity.
type Pose struct {
	Position    r3.Vector `json:"position"`
	Orientation r3.Vector `json:"orientation"`
}

// Control is the set of simulator operations the collector depends on.
type Control interface {
	// LoadScene replaces the current scene with the file at path.
	LoadScene(ctx context.Context, path string) error

	StartSimulation(ctx context.Context) error
	StopSimulation(ctx context.Context) error
	// StepSimulation advances simulated time by one step.
	StepSimulation(ctx context.Context) error

	// ObjectHandle resolves a scene object by name.
	ObjectHandle(ctx context.Context, name string) (Handle, error)

	Position(ctx context.Context, h, relativeTo Handle) (r3.Vector, error)
	SetPosition(ctx context.Context, h Handle, pos r3.Vector, relativeTo Handle) error
	Orientation(ctx context.Context, h, relativeTo Handle) (r3.Vector, error)
	SetOrientation(ctx context.Context, h Handle, ori r3.Vector, relativeTo Handle) error

	// CallScript invokes function on the script attached to the named object.
	CallScript(ctx context.Context, script, function string, in ScriptArgs) (ScriptArgs, error)

	// CaptureVisionSensor returns the last image rendered by a vision sensor.
	CaptureVisionSensor(ctx context.Context, h Handle) (Frame, error)

	Close() error
}

// Handles resolves several names in order.
func Handles(ctx context.Context, c Control, names []string) ([]Handle, error) {
	out := make([]Handle, 0, len(names))
	for _, name := range names {
		h, err := c.ObjectHandle(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", name, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// ReadPose reads the position and orientation of h relative to ref.
func ReadPose(ctx context.Context, c Control, h, ref Handle) (Pose, error) {
	pos, err := c.Position(ctx, h, ref)
	if err != nil {
		return Pose{}, err
	}
	ori, err := c.Orientation(ctx, h, ref)
	if err != nil {
		return Pose{}, err
	}
	return Pose{Position: pos, Orientation: ori}, nil
}

// WritePose sets orientation first, then position, matching the order the
// scene scripts expect when an object is re-parented to ref.
func WritePose(ctx context.Context, c Control, h Handle, p Pose, ref Handle) error {
	if err := c.SetOrientation(ctx, h, p.Orientation, ref); err != nil {
		return err
	}
	return c.SetPosition(ctx, h, p.Position, ref)
}
