// Package pose perturbs an object around a fixed reference pose.
//
// A Jitterer reads the object's pose once, at construction, and every
// Jitter writes reference + U(-bound, bound) per axis. Perturbations never
// accumulate: episode n is as close to the reference as episode 1.
package pose

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/scene"
)

// Bounds is the half-width of the perturbation on each axis. Orientation is
// in radians.
type Bounds struct {
	Position    r3.Vector
	Orientation r3.Vector
}

// Degrees converts a bound given in degrees to radians.
func Degrees(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}.Mul(math.Pi / 180)
}

// CameraBounds moves the camera up to 1 cm and 3 degrees on every axis.
var CameraBounds = Bounds{
	Position:    r3.Vector{X: 0.01, Y: 0.01, Z: 0.01},
	Orientation: Degrees(3, 3, 3),
}

// PlateBounds slides the plate up to 3 cm in the table plane and turns it up
// to 5 degrees about the vertical axis.
var PlateBounds = Bounds{
	Position:    r3.Vector{X: 0.03, Y: 0.03},
	Orientation: Degrees(0, 0, 5),
}

func (b Bounds) validate() error {
	for _, v := range []float64{
		b.Position.X, b.Position.Y, b.Position.Z,
		b.Orientation.X, b.Orientation.Y, b.Orientation.Z,
	} {
		if v < 0 || math.IsNaN(v) {
			return errors.New(errors.ErrCodeInvalidConfig, "jitter bounds must be >= 0, got %v", b)
		}
	}
	return nil
}

// Jitterer perturbs one object relative to a reference frame.
//
// A Jitterer is not safe for concurrent use.
type Jitterer struct {
	ctl    scene.Control
	h, ref scene.Handle
	base   scene.Pose
	bounds Bounds
	rng    *rand.Rand
}

// New captures the current pose of h relative to ref.
func New(ctx context.Context, ctl scene.Control, h, ref scene.Handle, bounds Bounds, rng *rand.Rand) (*Jitterer, error) {
	if err := bounds.validate(); err != nil {
		return nil, err
	}
	base, err := scene.ReadPose(ctx, ctl, h, ref)
	if err != nil {
		return nil, err
	}
	return &Jitterer{ctl: ctl, h: h, ref: ref, base: base, bounds: bounds, rng: rng}, nil
}

// Base returns the captured reference pose.
func (j *Jitterer) Base() scene.Pose { return j.base }

// Jitter writes and returns a new pose drawn around the reference.
func (j *Jitterer) Jitter(ctx context.Context) (scene.Pose, error) {
	p := scene.Pose{
		Position:    j.perturb(j.base.Position, j.bounds.Position),
		Orientation: j.perturb(j.base.Orientation, j.bounds.Orientation),
	}
	if err := scene.WritePose(ctx, j.ctl, j.h, p, j.ref); err != nil {
		return scene.Pose{}, err
	}
	return p, nil
}

// Restore writes the reference pose back.
func (j *Jitterer) Restore(ctx context.Context) error {
	return scene.WritePose(ctx, j.ctl, j.h, j.base, j.ref)
}

func (j *Jitterer) perturb(v, b r3.Vector) r3.Vector {
	return r3.Vector{
		X: v.X + j.uniform(b.X),
		Y: v.Y + j.uniform(b.Y),
		Z: v.Z + j.uniform(b.Z),
	}
}

func (j *Jitterer) uniform(half float64) float64 {
	if half == 0 {
		return 0
	}
	return -half + 2*half*j.rng.Float64()
}
