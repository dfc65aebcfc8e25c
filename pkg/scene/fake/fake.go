// Package fake provides an in-memory simulator implementing scene.Control.
//
// The fake understands the helper-script conventions from pkg/scene
// (lights, textures, colors, object removal) and keeps just enough state for
// tests to assert on outcomes: which lights are lit, which textures are
// alive, what each surface is bound to. Every call is appended to a log so
// ordering can be checked too.
package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/matzehuels/domrand/pkg/scene"
)

// Call is one recorded invocation.
type Call struct {
	Op       string // Control method name, e.g. "SetPosition" or "CallScript"
	Function string // script function for CallScript
	Handle   scene.Handle
	Args     scene.ScriptArgs
}

type poseKey struct {
	h, ref scene.Handle
}

type texture struct {
	id   int
	path string
}

// Simulator is an in-memory scene.Control.
type Simulator struct {
	mu sync.Mutex

	handles    map[string]scene.Handle
	names      map[scene.Handle]string
	nextHandle scene.Handle

	positions    map[poseKey]r3.Vector
	orientations map[poseKey]r3.Vector
	rotations    map[scene.Handle]float64

	lit      map[scene.Handle]scene.Color
	textures map[scene.Handle]texture // by carrier
	bindings map[scene.Handle]int     // surface -> texture id
	colors   map[scene.Handle][4]float64
	nextTex  int

	// Reject makes pyCreateTexture answer -1 for these paths.
	Reject map[string]bool
	// OmitCarrier makes pyCreateTexture return only the texture id, the way
	// older scene scripts do. Carriers are then named Plane, Plane0, ...
	OmitCarrier bool

	frame   scene.Frame
	running bool
	steps   int
	scene   string
	closed  bool
	calls   []Call
	failOn  map[string]error
	handler map[string]func(scene.ScriptArgs) (scene.ScriptArgs, error)
}

// New returns an empty simulator with a 4x4 test frame.
func New() *Simulator {
	s := &Simulator{
		handles:      make(map[string]scene.Handle),
		names:        make(map[scene.Handle]string),
		nextHandle:   1,
		positions:    make(map[poseKey]r3.Vector),
		orientations: make(map[poseKey]r3.Vector),
		rotations:    make(map[scene.Handle]float64),
		lit:          make(map[scene.Handle]scene.Color),
		textures:     make(map[scene.Handle]texture),
		bindings:     make(map[scene.Handle]int),
		colors:       make(map[scene.Handle][4]float64),
		Reject:       make(map[string]bool),
		failOn:       make(map[string]error),
		handler:      make(map[string]func(scene.ScriptArgs) (scene.ScriptArgs, error)),
	}
	s.frame = GradientFrame(4, 4)
	return s
}

// GradientFrame builds a bottom-up RGB frame whose red channel encodes the
// row index, which makes vertical flips easy to assert.
func GradientFrame(w, h int) scene.Frame {
	px := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px = append(px, byte(y), byte(x), 0x80)
		}
	}
	return scene.Frame{Width: w, Height: h, Pixels: px}
}

// FailOn makes every subsequent call of op (a Control method name, or a
// script function name) return err. A nil err clears the failure.
func (s *Simulator) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

// Handle overrides the built-in behaviour of a script function.
func (s *Simulator) Handle(function string, fn func(scene.ScriptArgs) (scene.ScriptArgs, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler[function] = fn
}

// SetFrame sets the frame returned by CaptureVisionSensor.
func (s *Simulator) SetFrame(f scene.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
}

// SetPose seeds the pose of a named object, creating it if needed.
func (s *Simulator) SetPose(name string, ref scene.Handle, p scene.Pose) scene.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handleLocked(name)
	s.positions[poseKey{h, ref}] = p.Position
	s.orientations[poseKey{h, ref}] = p.Orientation
	return h
}

func (s *Simulator) handleLocked(name string) scene.Handle {
	if h, ok := s.handles[name]; ok {
		return h
	}
	h := s.nextHandle
	s.nextHandle++
	s.handles[name] = h
	s.names[h] = name
	return h
}

func (s *Simulator) record(c Call) error {
	s.calls = append(s.calls, c)
	key := c.Op
	if c.Op == "CallScript" {
		key = c.Function
	}
	return s.failOn[key]
}

// LoadScene implements scene.Control.
func (s *Simulator) LoadScene(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "LoadScene"}); err != nil {
		return err
	}
	s.scene = path
	return nil
}

// StartSimulation implements scene.Control.
func (s *Simulator) StartSimulation(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "StartSimulation"}); err != nil {
		return err
	}
	s.running = true
	return nil
}

// StopSimulation implements scene.Control.
func (s *Simulator) StopSimulation(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "StopSimulation"}); err != nil {
		return err
	}
	s.running = false
	return nil
}

// StepSimulation implements scene.Control.
func (s *Simulator) StepSimulation(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "StepSimulation"}); err != nil {
		return err
	}
	s.steps++
	return nil
}

// ObjectHandle implements scene.Control. Unknown names are created.
func (s *Simulator) ObjectHandle(_ context.Context, name string) (scene.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "ObjectHandle"}); err != nil {
		return scene.Invalid, err
	}
	return s.handleLocked(name), nil
}

// Position implements scene.Control.
func (s *Simulator) Position(_ context.Context, h, ref scene.Handle) (r3.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "Position", Handle: h}); err != nil {
		return r3.Vector{}, err
	}
	return s.positions[poseKey{h, ref}], nil
}

// SetPosition implements scene.Control.
func (s *Simulator) SetPosition(_ context.Context, h scene.Handle, pos r3.Vector, ref scene.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "SetPosition", Handle: h}); err != nil {
		return err
	}
	s.positions[poseKey{h, ref}] = pos
	return nil
}

// Orientation implements scene.Control.
func (s *Simulator) Orientation(_ context.Context, h, ref scene.Handle) (r3.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "Orientation", Handle: h}); err != nil {
		return r3.Vector{}, err
	}
	return s.orientations[poseKey{h, ref}], nil
}

// SetOrientation implements scene.Control.
func (s *Simulator) SetOrientation(_ context.Context, h scene.Handle, ori r3.Vector, ref scene.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "SetOrientation", Handle: h}); err != nil {
		return err
	}
	s.orientations[poseKey{h, ref}] = ori
	return nil
}

// CaptureVisionSensor implements scene.Control.
func (s *Simulator) CaptureVisionSensor(_ context.Context, h scene.Handle) (scene.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "CaptureVisionSensor", Handle: h}); err != nil {
		return scene.Frame{}, err
	}
	f := s.frame
	f.Pixels = slices.Clone(f.Pixels)
	return f, nil
}

// Close implements scene.Control.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// CallScript implements scene.Control.
func (s *Simulator) CallScript(_ context.Context, script, function string, in scene.ScriptArgs) (scene.ScriptArgs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: "CallScript", Function: function, Args: in}); err != nil {
		return scene.ScriptArgs{}, err
	}
	if script != scene.APIScript {
		return scene.ScriptArgs{}, fmt.Errorf("fake: unknown script %q", script)
	}
	if fn, ok := s.handler[function]; ok {
		return fn(in)
	}
	switch function {
	case scene.FnSetLights:
		return scene.ScriptArgs{}, s.setLights(in)
	case scene.FnRotateObject:
		if len(in.Ints) != 1 || len(in.Floats) != 1 {
			return scene.ScriptArgs{}, fmt.Errorf("fake: %s: bad args", function)
		}
		s.rotations[scene.Handle(in.Ints[0])] = in.Floats[0]
		return scene.ScriptArgs{}, nil
	case scene.FnCreateTexture:
		return s.createTexture(in)
	case scene.FnSetTexture:
		if len(in.Ints) < 2 {
			return scene.ScriptArgs{}, fmt.Errorf("fake: %s: bad args", function)
		}
		s.bindings[scene.Handle(in.Ints[0])] = in.Ints[1]
		return scene.ScriptArgs{}, nil
	case scene.FnSetColor:
		if len(in.Ints) != 1 || len(in.Floats) != 4 {
			return scene.ScriptArgs{}, fmt.Errorf("fake: %s: bad args", function)
		}
		s.colors[scene.Handle(in.Ints[0])] = [4]float64(in.Floats)
		return scene.ScriptArgs{}, nil
	case scene.FnRemoveObject:
		if len(in.Ints) != 1 {
			return scene.ScriptArgs{}, fmt.Errorf("fake: %s: bad args", function)
		}
		s.removeLocked(scene.Handle(in.Ints[0]))
		return scene.ScriptArgs{}, nil
	}
	return scene.ScriptArgs{}, fmt.Errorf("fake: unknown function %q", function)
}

func (s *Simulator) setLights(in scene.ScriptArgs) error {
	if len(in.Ints) == 0 {
		return fmt.Errorf("fake: %s: missing switch", scene.FnSetLights)
	}
	lights := in.Ints[1:]
	switch in.Ints[0] {
	case 0:
		for _, h := range lights {
			delete(s.lit, scene.Handle(h))
		}
	case 1:
		if len(in.Floats) != 3*len(lights) {
			return fmt.Errorf("fake: %s: %d lights, %d floats", scene.FnSetLights, len(lights), len(in.Floats))
		}
		for i, h := range lights {
			f := in.Floats[3*i:]
			s.lit[scene.Handle(h)] = scene.Color{R: f[0], G: f[1], B: f[2]}
		}
	default:
		return fmt.Errorf("fake: %s: bad switch %d", scene.FnSetLights, in.Ints[0])
	}
	return nil
}

func (s *Simulator) createTexture(in scene.ScriptArgs) (scene.ScriptArgs, error) {
	if len(in.Strings) != 1 || len(in.Ints) != 3 {
		return scene.ScriptArgs{}, fmt.Errorf("fake: %s: bad args", scene.FnCreateTexture)
	}
	if s.Reject[in.Strings[0]] {
		return scene.ScriptArgs{Ints: []int{-1}}, nil
	}
	id := s.nextTex
	s.nextTex++
	name := "Plane"
	if n := len(s.textures); n > 0 {
		name = fmt.Sprintf("Plane%d", n-1)
	}
	carrier := s.handleLocked(name)
	s.textures[carrier] = texture{id: id, path: in.Strings[0]}
	if s.OmitCarrier {
		return scene.ScriptArgs{Ints: []int{id}}, nil
	}
	return scene.ScriptArgs{Ints: []int{id, int(carrier)}}, nil
}

// removeLocked deletes an object. Removing a texture carrier frees the
// texture and clears every surface bound to it.
func (s *Simulator) removeLocked(h scene.Handle) {
	if tex, ok := s.textures[h]; ok {
		delete(s.textures, h)
		for surface, id := range s.bindings {
			if id == tex.id {
				delete(s.bindings, surface)
			}
		}
	}
	if name, ok := s.names[h]; ok {
		delete(s.handles, name)
		delete(s.names, h)
	}
}

// Calls returns a copy of the call log.
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// ScriptCalls returns the logged calls of one script function.
func (s *Simulator) ScriptCalls(function string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Op == "CallScript" && c.Function == function {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (s *Simulator) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Lookup returns the handle of name without logging a call.
func (s *Simulator) Lookup(name string) (scene.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[name]
	return h, ok
}

// PositionOf returns the stored position of h relative to ref.
func (s *Simulator) PositionOf(h, ref scene.Handle) r3.Vector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[poseKey{h, ref}]
}

// OrientationOf returns the stored orientation of h relative to ref.
func (s *Simulator) OrientationOf(h, ref scene.Handle) r3.Vector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orientations[poseKey{h, ref}]
}

// Rotation returns the last yaw applied through pyObjRotation.
func (s *Simulator) Rotation(h scene.Handle) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rotations[h]
	return r, ok
}

// Lit returns the lights currently switched on and their colors.
func (s *Simulator) Lit() map[scene.Handle]scene.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.lit)
}

// LiveTextures returns the number of textures not yet removed.
func (s *Simulator) LiveTextures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.textures)
}

// TexturePaths returns the image paths of live textures, sorted.
func (s *Simulator) TexturePaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.textures))
	for _, t := range s.textures {
		out = append(out, t.path)
	}
	slices.Sort(out)
	return out
}

// Binding returns the texture id bound to surface h.
func (s *Simulator) Binding(h scene.Handle) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bindings[h]
	return id, ok
}

// Bindings returns a copy of all surface bindings.
func (s *Simulator) Bindings() map[scene.Handle]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.bindings)
}

// ColorOf returns the RGBA last set on h.
func (s *Simulator) ColorOf(h scene.Handle) ([4]float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colors[h]
	return c, ok
}

// Running reports whether the simulation is started.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Steps returns the number of StepSimulation calls.
func (s *Simulator) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Scene returns the last loaded scene path.
func (s *Simulator) Scene() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

// Closed reports whether Close was called.
func (s *Simulator) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ scene.Control = (*Simulator)(nil)
