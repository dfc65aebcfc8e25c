// Package texture cycles random textures and colors over scene surfaces.
//
// Each episode the Cycler draws distinct images from a fixed pool
// (<dir>/p<i>.jpeg), asks the simulator to create one texture per target
// surface, binds them with a random mapping, and paints every surface with a
// random color. Textures live in simulator memory until Release removes
// them; Apply releases a leftover allocation itself before creating new
// textures, so a forgotten Release cannot leak across episodes.
package texture

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/scene"
)

// TargetObjects is the pseudo surface expanding to one surface per placed
// object.
const TargetObjects = "tar_objs"

// Surface is a texturable scene object.
type Surface struct {
	// Object is the scene name carrying the texture.
	Object string
	// Opaque surfaces always get alpha 1.
	Opaque bool
}

// DefaultSurfaces are the base surfaces of the tabletop scene.
var DefaultSurfaces = map[string]Surface{
	"plate": {Object: "plate_texture"},
	"plane": {Object: "plane", Opaque: true},
	"table": {Object: "table"},
}

// TargetSurface returns the texture surface of movable object i.
func TargetSurface(i int) Surface {
	return Surface{Object: fmt.Sprintf("obj%d_texture0", i), Opaque: true}
}

// Options configures a Cycler.
type Options struct {
	Dir      string
	PoolSize int
	// Pattern formats a pool index into a file name.
	Pattern string
	// Width and Height are the texture resolution requested from the
	// simulator.
	Width, Height int
	Surfaces      map[string]Surface
}

// DefaultOptions returns the collector's texture settings for dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:      dir,
		PoolSize: 125,
		Pattern:  "p%d.jpeg",
		Width:    256,
		Height:   256,
		Surfaces: DefaultSurfaces,
	}
}

// Path returns the image file of pool index i.
func (o Options) Path(i int) string {
	return filepath.Join(o.Dir, fmt.Sprintf(o.Pattern, i))
}

// Binding is one surface textured during an episode.
type Binding struct {
	Surface   string
	Handle    scene.Handle
	PoolIndex int
	Texture   scene.Texture
	Mapping   scene.TextureMapping
	Color     scene.Color
	Alpha     float64
}

// Allocation is everything created by one Apply.
type Allocation struct {
	Bindings []Binding

	carriers []carrier
}

type carrier struct {
	handle scene.Handle
	name   string // fallback lookup when the script returned no handle
}

// PoolIndices returns the pool index of each binding.
func (a *Allocation) PoolIndices() []int {
	out := make([]int, len(a.Bindings))
	for i, b := range a.Bindings {
		out[i] = b.PoolIndex
	}
	return out
}

// Cycler assigns textures per episode.
//
// A Cycler is not safe for concurrent use.
type Cycler struct {
	ctl     scene.Control
	rng     *rand.Rand
	opts    Options
	handles map[string]scene.Handle
	alloc   *Allocation
}

// New creates a Cycler.
func New(ctl scene.Control, rng *rand.Rand, opts Options) (*Cycler, error) {
	if opts.PoolSize < 1 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "texture pool size must be >= 1")
	}
	if opts.Width < 1 || opts.Height < 1 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "texture resolution must be positive")
	}
	if opts.Pattern == "" {
		opts.Pattern = "p%d.jpeg"
	}
	if opts.Surfaces == nil {
		opts.Surfaces = DefaultSurfaces
	}
	return &Cycler{ctl: ctl, rng: rng, opts: opts, handles: make(map[string]scene.Handle)}, nil
}

// Outstanding returns the live allocation, or nil after Release.
func (c *Cycler) Outstanding() *Allocation { return c.alloc }

type target struct {
	name    string
	surface Surface
}

// Apply textures and colors the named surfaces. TargetObjects expands to the
// surfaces of objects.
func (c *Cycler) Apply(ctx context.Context, surfaces []string, objects []int) (*Allocation, error) {
	if c.alloc != nil {
		if err := c.Release(ctx); err != nil {
			return nil, err
		}
	}

	targets, err := c.expand(surfaces, objects)
	if err != nil {
		return nil, err
	}
	if len(targets) > c.opts.PoolSize {
		return nil, errors.New(errors.ErrCodeTextureCreationFailed,
			"%d surfaces need textures, pool has %d", len(targets), c.opts.PoolSize)
	}

	c.alloc = &Allocation{}
	if err := c.create(ctx, targets); err != nil {
		return c.alloc, err
	}
	for i := range c.alloc.Bindings {
		if err := c.bind(ctx, &c.alloc.Bindings[i]); err != nil {
			return c.alloc, err
		}
	}
	return c.alloc, nil
}

func (c *Cycler) expand(surfaces []string, objects []int) ([]target, error) {
	var out []target
	for _, name := range surfaces {
		if name == TargetObjects {
			for _, i := range objects {
				out = append(out, target{name: fmt.Sprintf("obj%d", i), surface: TargetSurface(i)})
			}
			continue
		}
		s, ok := c.opts.Surfaces[name]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "unknown surface %q", name)
		}
		out = append(out, target{name: name, surface: s})
	}
	return out, nil
}

// create draws one distinct pool index per target and creates its texture.
// A rejected index falls through to the next unused one; after PoolSize
// attempts the episode fails.
func (c *Cycler) create(ctx context.Context, targets []target) error {
	picks := c.rng.Perm(c.opts.PoolSize)[:len(targets)]
	used := make(map[int]bool, len(picks))
	for _, i := range picks {
		used[i] = true
	}

	for k, t := range targets {
		h, err := c.handle(ctx, t.surface.Object)
		if err != nil {
			return err
		}
		idx := picks[k]
		var tex scene.Texture
		created := false
		for attempt := 0; attempt < c.opts.PoolSize; attempt++ {
			var ok bool
			tex, ok, err = scene.CreateTexture(ctx, c.ctl, c.opts.Path(idx), c.rng.IntN(16), c.opts.Width, c.opts.Height)
			if err != nil {
				return err
			}
			if ok {
				created = true
				break
			}
			next, found := c.nextFree(idx, used)
			if !found {
				break
			}
			idx = next
			used[idx] = true
		}
		if !created {
			return errors.New(errors.ErrCodeTextureCreationFailed, "no loadable texture for surface %q", t.name)
		}

		c.alloc.carriers = append(c.alloc.carriers, carrier{handle: tex.Carrier, name: carrierName(len(c.alloc.carriers))})
		c.alloc.Bindings = append(c.alloc.Bindings, Binding{
			Surface:   t.name,
			Handle:    h,
			PoolIndex: idx,
			Texture:   tex,
			Alpha:     alphaFor(t.surface),
		})
	}
	return nil
}

// nextFree returns the first index after idx, cyclically, not yet used.
func (c *Cycler) nextFree(idx int, used map[int]bool) (int, bool) {
	for step := 1; step < c.opts.PoolSize; step++ {
		if j := (idx + step) % c.opts.PoolSize; !used[j] {
			return j, true
		}
	}
	return 0, false
}

// alphaFor marks opaque surfaces; translucency is decided in bind.
func alphaFor(s Surface) float64 {
	if s.Opaque {
		return 1
	}
	return -1
}

func (c *Cycler) bind(ctx context.Context, b *Binding) error {
	b.Mapping = scene.TextureMapping{
		Repeat: c.rng.IntN(16),
		Orientation: [3]int{
			c.rng.IntN(360) - 180,
			c.rng.IntN(360) - 180,
			c.rng.IntN(360) - 180,
		},
		Offset: r3.Vector{X: c.uniform(-1, 1), Y: c.uniform(-1, 1), Z: c.uniform(-1, 1)},
	}
	if err := scene.SetTexture(ctx, c.ctl, b.Handle, b.Texture.ID, b.Mapping); err != nil {
		return err
	}

	b.Color = scene.Color{R: c.rng.Float64(), G: c.rng.Float64(), B: c.rng.Float64()}
	if b.Alpha < 0 {
		b.Alpha = 1
		if c.rng.Float64() <= 0.5 {
			b.Alpha = c.rng.Float64()
		}
	}
	return scene.SetColor(ctx, c.ctl, b.Handle, b.Color, b.Alpha)
}

// Release removes every texture created by the last Apply.
func (c *Cycler) Release(ctx context.Context) error {
	if c.alloc == nil {
		return nil
	}
	alloc := c.alloc
	c.alloc = nil

	var errs error
	for _, cr := range alloc.carriers {
		h := cr.handle
		if h == scene.Invalid {
			var err error
			if h, err = c.ctl.ObjectHandle(ctx, cr.name); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
		}
		errs = multierr.Append(errs, scene.RemoveObject(ctx, c.ctl, h))
	}
	return errs
}

func (c *Cycler) handle(ctx context.Context, object string) (scene.Handle, error) {
	if h, ok := c.handles[object]; ok {
		return h, nil
	}
	h, err := c.ctl.ObjectHandle(ctx, object)
	if err != nil {
		return scene.Invalid, err
	}
	c.handles[object] = h
	return h, nil
}

func (c *Cycler) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*c.rng.Float64()
}

// carrierName is the scene name given to the k-th texture carrier created
// in an episode: Plane, Plane0, Plane1, ...
func carrierName(k int) string {
	if k == 0 {
		return "Plane"
	}
	return fmt.Sprintf("Plane%d", k-1)
}
