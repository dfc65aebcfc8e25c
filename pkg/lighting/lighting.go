// Package lighting randomizes the scene's light bank.
//
// The bank holds three categories of lights (directional, spot,
// omnidirectional). Each episode switches everything off, draws an on-set per
// category (with replacement, so a light can be drawn twice), poses the
// drawn lights and switches them on with random colors. RestoreDefault puts
// the scene back to its neutral baseline.
package lighting

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/scene"
)

// Category names used in light object names and logs.
const (
	Directional = "Directional_light"
	Spot        = "Spot_light"
	Omni        = "Omnidirectional_light"
)

// Bank is the fixed, ordered set of light handles.
type Bank struct {
	Directional []scene.Handle
	Spot        []scene.Handle
	Omni        []scene.Handle
}

// All returns every light in category order.
func (b Bank) All() []scene.Handle {
	out := make([]scene.Handle, 0, len(b.Directional)+len(b.Spot)+len(b.Omni))
	out = append(out, b.Directional...)
	out = append(out, b.Spot...)
	return append(out, b.Omni...)
}

// Names returns "<category><i>" for i in [0, n).
func Names(category string, n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("%s%d", category, i)
	}
	return out
}

// ResolveBank looks up n lights of each category by their scene names.
func ResolveBank(ctx context.Context, c scene.Control, directional, spot, omni int) (Bank, error) {
	var b Bank
	var err error
	if b.Directional, err = scene.Handles(ctx, c, Names(Directional, directional)); err != nil {
		return Bank{}, err
	}
	if b.Spot, err = scene.Handles(ctx, c, Names(Spot, spot)); err != nil {
		return Bank{}, err
	}
	if b.Omni, err = scene.Handles(ctx, c, Names(Omni, omni)); err != nil {
		return Bank{}, err
	}
	return b, nil
}

// DefaultProfile is the baseline color of the first directional lights.
var DefaultProfile = []scene.Color{
	scene.Gray(0.4),
	scene.Gray(0.4),
	scene.Gray(0.4),
	scene.Gray(0.2),
}

// Options bounds the randomization.
type Options struct {
	// Spot and omni lights are placed with x, y in [-Span, Span] and z in
	// [0, MaxHeight].
	Span      float64
	MaxHeight float64

	// IndependentXY draws x and y separately. When false, one draw is used
	// for both and lights only move along the x = y diagonal.
	IndependentXY bool

	// Profile holds the RestoreDefault colors of Directional[0:len(Profile)].
	Profile []scene.Color
}

// DefaultOptions returns the collector's light settings.
func DefaultOptions() Options {
	return Options{
		Span:      2.5,
		MaxHeight: 5.0,
		Profile:   DefaultProfile,
	}
}

// OnSet is the result of one randomization.
type OnSet struct {
	Directional []scene.Handle
	Spot        []scene.Handle
	Omni        []scene.Handle
	Colors      []scene.Color // one per entry of Handles()
}

// Handles returns the lit handles in switch-on order.
func (o OnSet) Handles() []scene.Handle {
	return Bank{Directional: o.Directional, Spot: o.Spot, Omni: o.Omni}.All()
}

// Randomizer drives the light bank.
//
// A Randomizer is not safe for concurrent use.
type Randomizer struct {
	ctl  scene.Control
	bank Bank
	rng  *rand.Rand
	opts Options
}

// New creates a Randomizer.
func New(ctl scene.Control, bank Bank, rng *rand.Rand, opts Options) (*Randomizer, error) {
	if len(opts.Profile) > len(bank.Directional) {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"default profile needs %d directional lights, bank has %d", len(opts.Profile), len(bank.Directional))
	}
	if opts.Span < 0 || opts.MaxHeight < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "light span and height must be >= 0")
	}
	return &Randomizer{ctl: ctl, bank: bank, rng: rng, opts: opts}, nil
}

// Randomize switches all lights off, then draws, poses and lights a new
// on-set.
func (r *Randomizer) Randomize(ctx context.Context) (OnSet, error) {
	if err := scene.LightsOff(ctx, r.ctl, r.bank.All()); err != nil {
		return OnSet{}, err
	}

	on := OnSet{
		Directional: r.draw(r.bank.Directional),
		Spot:        r.draw(r.bank.Spot),
		Omni:        r.draw(r.bank.Omni),
	}
	if err := r.pose(ctx, on); err != nil {
		return OnSet{}, err
	}

	handles := on.Handles()
	if len(handles) == 0 {
		return on, nil
	}
	on.Colors = make([]scene.Color, len(handles))
	for i := range on.Colors {
		on.Colors[i] = scene.Color{R: r.rng.Float64(), G: r.rng.Float64(), B: r.rng.Float64()}
	}
	return on, scene.LightsOn(ctx, r.ctl, handles, on.Colors)
}

// RestoreDefault switches all lights off and lights the first directional
// lights with the baseline profile. Poses are left alone.
func (r *Randomizer) RestoreDefault(ctx context.Context) error {
	if err := scene.LightsOff(ctx, r.ctl, r.bank.All()); err != nil {
		return err
	}
	if len(r.opts.Profile) == 0 {
		return nil
	}
	return scene.LightsOn(ctx, r.ctl, r.bank.Directional[:len(r.opts.Profile)], r.opts.Profile)
}

// draw samples between 0 and len(lights) handles with replacement.
func (r *Randomizer) draw(lights []scene.Handle) []scene.Handle {
	if len(lights) == 0 {
		return nil
	}
	n := r.rng.IntN(len(lights) + 1)
	out := make([]scene.Handle, n)
	for i := range out {
		out[i] = lights[r.rng.IntN(len(lights))]
	}
	return out
}

func (r *Randomizer) pose(ctx context.Context, on OnSet) error {
	for _, h := range on.Directional {
		if err := r.ctl.SetOrientation(ctx, h, r.orientation(), scene.World); err != nil {
			return err
		}
	}
	for _, h := range on.Spot {
		if err := r.ctl.SetOrientation(ctx, h, r.orientation(), scene.World); err != nil {
			return err
		}
		if err := r.ctl.SetPosition(ctx, h, r.position(), scene.World); err != nil {
			return err
		}
	}
	for _, h := range on.Omni {
		if err := r.ctl.SetPosition(ctx, h, r.position(), scene.World); err != nil {
			return err
		}
	}
	return nil
}

// orientation draws each Euler angle uniformly in [-180, 180] degrees.
func (r *Randomizer) orientation() r3.Vector {
	deg := func() float64 { return -180 + 360*r.rng.Float64() }
	return r3.Vector{X: radians(deg()), Y: radians(deg()), Z: radians(deg())}
}

func (r *Randomizer) position() r3.Vector {
	x := r.uniform(-r.opts.Span, r.opts.Span)
	y := x
	if r.opts.IndependentXY {
		y = r.uniform(-r.opts.Span, r.opts.Span)
	}
	return r3.Vector{X: x, Y: y, Z: r.uniform(0, r.opts.MaxHeight)}
}

func (r *Randomizer) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.rng.Float64()
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
