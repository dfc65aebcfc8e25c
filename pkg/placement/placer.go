// Package placement scatters a random subset of movable objects over the
// work surface without letting any two of them overlap.
//
// The surface is split into a 3x3 [Grid]. Each episode picks k objects and k
// distinct blocks, then rejection-samples a point inside each block until it
// keeps at least MinSeparation from every point accepted so far. The retry
// loop is capped by MaxAttempts per object; hitting the cap returns an error
// coded PLACEMENT_EXHAUSTED and never an overlapping layout.
//
// Object 0 is the localization target. Its position is the episode label.
package placement

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/scene"
)

// TargetIndex is the object whose position becomes the label.
const TargetIndex = 0

// Defaults.
const (
	DefaultMinSeparation = 0.04
	DefaultMaxAttempts   = 1000
)

// DefaultResetPose parks objects below the table, out of the camera's view.
var DefaultResetPose = scene.Pose{
	Position:    r3.Vector{X: 0, Y: 0, Z: -0.15},
	Orientation: r3.Vector{X: 0, Y: -math.Pi / 2, Z: 0},
}

// Options controls a Placer.
type Options struct {
	// MinObjects and MaxObjects bound the number of objects placed per
	// episode. Zero MaxObjects means all objects.
	MinObjects int
	MaxObjects int

	// MinSeparation is the minimum distance between any two placed objects.
	MinSeparation float64

	// MaxAttempts caps rejection sampling per object.
	MaxAttempts int

	// ResetPose is applied, in world coordinates, to every object before
	// placement.
	ResetPose scene.Pose

	Grid Grid
}

// DefaultOptions returns the options used by the collector.
func DefaultOptions() Options {
	return Options{
		MinObjects:    1,
		MinSeparation: DefaultMinSeparation,
		MaxAttempts:   DefaultMaxAttempts,
		ResetPose:     DefaultResetPose,
		Grid:          DefaultGrid,
	}
}

// Assignment pairs an object index with a block id.
type Assignment struct {
	Object int
	Block  int
}

// Placed is one object placed during an episode.
type Placed struct {
	Object   int
	Block    int
	Position r3.Vector // relative to the plate, Z = 0
	Yaw      float64   // radians about the vertical axis
}

// Result is the outcome of one placement.
type Result struct {
	Objects []Placed

	// Target is [x, y] of object 0 when it was placed, otherwise empty.
	Target []float64
}

// Positive reports whether the target object is in frame.
func (r Result) Positive() bool { return len(r.Target) == 2 }

// Chosen returns the indices of the placed objects in placement order.
func (r Result) Chosen() []int {
	out := make([]int, len(r.Objects))
	for i, p := range r.Objects {
		out[i] = p.Object
	}
	return out
}

// Placer positions movable objects on the plate.
//
// A Placer is not safe for concurrent use.
type Placer struct {
	ctl     scene.Control
	objects []scene.Handle
	plate   scene.Handle
	rng     *rand.Rand
	opts    Options
}

// New creates a Placer for objects (index i is objects[i]) placed relative
// to plate.
func New(ctl scene.Control, objects []scene.Handle, plate scene.Handle, rng *rand.Rand, opts Options) (*Placer, error) {
	if len(objects) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "placement needs at least one object")
	}
	if opts.MaxObjects == 0 {
		opts.MaxObjects = len(objects)
	}
	if opts.MinObjects < 1 || opts.MinObjects > opts.MaxObjects {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "object count range [%d,%d] invalid", opts.MinObjects, opts.MaxObjects)
	}
	if opts.MaxObjects > len(objects) || opts.MaxObjects > Blocks {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"max objects %d exceeds %d objects or %d blocks", opts.MaxObjects, len(objects), Blocks)
	}
	if opts.MinSeparation < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "min separation must be >= 0")
	}
	if opts.MaxAttempts < 1 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "max attempts must be >= 1")
	}
	if err := opts.Grid.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "placement grid")
	}
	return &Placer{ctl: ctl, objects: objects, plate: plate, rng: rng, opts: opts}, nil
}

// Reset moves every object to the reset pose.
func (p *Placer) Reset(ctx context.Context) error {
	for _, h := range p.objects {
		if err := p.ctl.SetPosition(ctx, h, p.opts.ResetPose.Position, scene.World); err != nil {
			return err
		}
		if err := p.ctl.SetOrientation(ctx, h, p.opts.ResetPose.Orientation, scene.World); err != nil {
			return err
		}
	}
	return nil
}

// Place resets all objects, draws a random assignment and places it.
func (p *Placer) Place(ctx context.Context) (Result, error) {
	if err := p.Reset(ctx); err != nil {
		return Result{}, err
	}
	return p.PlaceIn(ctx, p.draw())
}

// draw picks k in [MinObjects, MaxObjects], then k distinct objects and k
// distinct blocks.
func (p *Placer) draw() []Assignment {
	k := p.opts.MinObjects + p.rng.IntN(p.opts.MaxObjects-p.opts.MinObjects+1)
	objs := p.rng.Perm(len(p.objects))[:k]
	blocks := p.rng.Perm(Blocks)[:k]
	out := make([]Assignment, k)
	for i := range k {
		out[i] = Assignment{Object: objs[i], Block: blocks[i]}
	}
	return out
}

// PlaceIn places the given assignment without resetting first. Objects and
// blocks must each be distinct.
func (p *Placer) PlaceIn(ctx context.Context, assign []Assignment) (Result, error) {
	positions, err := p.sample(assign)
	if err != nil {
		return Result{}, err
	}

	res := Result{Objects: make([]Placed, 0, len(assign)), Target: []float64{}}
	for i, a := range assign {
		h := p.objects[a.Object]
		pos := positions[i]
		if err := p.ctl.SetPosition(ctx, h, pos, p.plate); err != nil {
			return Result{}, err
		}
		yaw := -math.Pi + 2*math.Pi*p.rng.Float64()
		if err := scene.RotateObject(ctx, p.ctl, h, yaw, "z"); err != nil {
			return Result{}, err
		}
		res.Objects = append(res.Objects, Placed{Object: a.Object, Block: a.Block, Position: pos, Yaw: yaw})
		if a.Object == TargetIndex {
			res.Target = []float64{pos.X, pos.Y}
		}
	}
	return res, nil
}

// sample draws one separated point per assignment.
func (p *Placer) sample(assign []Assignment) ([]r3.Vector, error) {
	seenObj := make(map[int]bool, len(assign))
	seenBlock := make(map[int]bool, len(assign))
	out := make([]r3.Vector, 0, len(assign))

	for _, a := range assign {
		if a.Object < 0 || a.Object >= len(p.objects) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "object index %d out of range", a.Object)
		}
		if seenObj[a.Object] || seenBlock[a.Block] {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate object %d or block %d", a.Object, a.Block)
		}
		seenObj[a.Object], seenBlock[a.Block] = true, true

		rect, err := p.opts.Grid.Block(a.Block)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "object %d", a.Object)
		}
		pos, ok := p.separated(rect, out)
		if !ok {
			return nil, errors.New(errors.ErrCodePlacementExhausted,
				"object %d in block %d: no point %.3f away after %d attempts",
				a.Object, a.Block, p.opts.MinSeparation, p.opts.MaxAttempts)
		}
		out = append(out, pos)
	}
	return out, nil
}

func (p *Placer) separated(rect Rect, accepted []r3.Vector) (r3.Vector, bool) {
	for range p.opts.MaxAttempts {
		x, y := rect.point(p.rng)
		if farEnough(x, y, accepted, p.opts.MinSeparation) {
			return r3.Vector{X: x, Y: y}, true
		}
	}
	return r3.Vector{}, false
}

func farEnough(x, y float64, accepted []r3.Vector, minSep float64) bool {
	for _, q := range accepted {
		if math.Hypot(x-q.X, y-q.Y) < minSep {
			return false
		}
	}
	return true
}

// String renders an assignment for logs.
func (a Assignment) String() string {
	return fmt.Sprintf("obj%d@%d", a.Object, a.Block)
}
