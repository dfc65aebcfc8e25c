// Package episode runs domain-randomization episodes.
//
// An [Episode] owns one instance of every randomizer and runs them in a fixed
// order:
//
//	jitter camera -> jitter plate -> randomize lights -> reset + place
//	objects -> apply textures -> capture image -> release textures -> record
//
// The [Collector] wraps an Episode in the collection loop: it restarts the
// simulation once, then runs episodes until its context ends or the episode
// budget is spent. Episode-local failures (placement or texture exhaustion)
// are logged and skipped; everything else stops the loop.
package episode

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/lighting"
	"github.com/matzehuels/domrand/pkg/observability"
	"github.com/matzehuels/domrand/pkg/placement"
	"github.com/matzehuels/domrand/pkg/pose"
	"github.com/matzehuels/domrand/pkg/recorder"
	"github.com/matzehuels/domrand/pkg/scene"
	"github.com/matzehuels/domrand/pkg/texture"
)

// DefaultSurfaces are textured every episode.
var DefaultSurfaces = []string{"plate", "plane", "table", texture.TargetObjects}

// Components are the randomizers driven by an Episode. Plate may be nil.
type Components struct {
	Camera   *pose.Jitterer
	Plate    *pose.Jitterer
	Lights   *lighting.Randomizer
	Placer   *placement.Placer
	Textures *texture.Cycler
	Recorder *recorder.Recorder
}

func (c Components) validate() error {
	switch {
	case c.Camera == nil:
		return errors.New(errors.ErrCodeInvalidConfig, "episode: camera jitterer is required")
	case c.Lights == nil:
		return errors.New(errors.ErrCodeInvalidConfig, "episode: light randomizer is required")
	case c.Placer == nil:
		return errors.New(errors.ErrCodeInvalidConfig, "episode: placer is required")
	case c.Textures == nil:
		return errors.New(errors.ErrCodeInvalidConfig, "episode: texture cycler is required")
	case c.Recorder == nil:
		return errors.New(errors.ErrCodeInvalidConfig, "episode: recorder is required")
	}
	return nil
}

// Stats holds per-stage timings of one episode.
type Stats struct {
	Randomize time.Duration
	Place     time.Duration
	Texture   time.Duration
	Capture   time.Duration
	Record    time.Duration
}

// Total is the sum of all stages.
func (s Stats) Total() time.Duration {
	return s.Randomize + s.Place + s.Texture + s.Capture + s.Record
}

// Episode runs one randomization and capture per call to Run.
//
// An Episode is not safe for concurrent use.
type Episode struct {
	ctl      scene.Control
	sensor   scene.Handle
	c        Components
	surfaces []string
	logger   *log.Logger

	step int
	last Stats
}

// New creates an Episode capturing from the vision sensor sensor. A nil
// surfaces slice means DefaultSurfaces.
func New(ctl scene.Control, sensor scene.Handle, c Components, surfaces []string, logger *log.Logger) (*Episode, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if surfaces == nil {
		surfaces = DefaultSurfaces
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Episode{ctl: ctl, sensor: sensor, c: c, surfaces: surfaces, logger: logger}, nil
}

// Step returns the number of the last episode run since ResetStep.
func (e *Episode) Step() int { return e.step }

// ResetStep restarts the step counter at zero.
func (e *Episode) ResetStep() { e.step = 0 }

// LastStats returns the stage timings of the last Run.
func (e *Episode) LastStats() Stats { return e.last }

// Run performs one episode and returns the persisted record.
func (e *Episode) Run(ctx context.Context) (recorder.Record, error) {
	e.step++
	observability.Episode().OnEpisodeStart(ctx, e.step)
	start := time.Now()
	rec, err := e.run(ctx)
	observability.Episode().OnEpisodeComplete(ctx, e.step, time.Since(start), err)
	return rec, err
}

func (e *Episode) run(ctx context.Context) (recorder.Record, error) {
	e.last = Stats{}

	// Stage 1: camera, plate and lights
	stage := time.Now()
	cam, err := e.c.Camera.Jitter(ctx)
	if err != nil {
		return recorder.Record{}, fmt.Errorf("jitter camera: %w", err)
	}
	if e.c.Plate != nil {
		if _, err := e.c.Plate.Jitter(ctx); err != nil {
			return recorder.Record{}, fmt.Errorf("jitter plate: %w", err)
		}
	}
	on, err := e.c.Lights.Randomize(ctx)
	if err != nil {
		return recorder.Record{}, fmt.Errorf("randomize lights: %w", err)
	}
	e.last.Randomize = time.Since(stage)

	// Stage 2: placement
	stage = time.Now()
	placed, err := e.c.Placer.Place(ctx)
	if err != nil {
		return recorder.Record{}, fmt.Errorf("place objects: %w", err)
	}
	e.last.Place = time.Since(stage)

	// Stage 3: textures
	stage = time.Now()
	if _, err := e.c.Textures.Apply(ctx, e.surfaces, placed.Chosen()); err != nil {
		return recorder.Record{}, e.abort(ctx, fmt.Errorf("apply textures: %w", err))
	}
	e.last.Texture = time.Since(stage)

	// Stage 4: capture, then free the textures before touching the disk
	stage = time.Now()
	frame, err := e.ctl.CaptureVisionSensor(ctx, e.sensor)
	if err != nil {
		return recorder.Record{}, e.abort(ctx, fmt.Errorf("capture: %w", err))
	}
	if err := e.c.Textures.Release(ctx); err != nil {
		return recorder.Record{}, errors.Wrap(errors.ErrCodeSimulationState, err, "release textures")
	}
	e.last.Capture = time.Since(stage)

	// Stage 5: record
	stage = time.Now()
	rec, err := e.c.Recorder.Record(ctx, recorder.Sample{
		Step:   e.step,
		Frame:  frame,
		Camera: cam,
		Target: placed.Target,
	})
	if err != nil {
		return recorder.Record{}, fmt.Errorf("record: %w", err)
	}
	e.last.Record = time.Since(stage)

	e.logger.Debug("episode",
		"step", e.step,
		"objects", placed.Chosen(),
		"positive", placed.Positive(),
		"lights", len(on.Handles()),
		"duration", e.last.Total())
	return rec, nil
}

// abort releases the textures of a failed episode. If the release fails too
// the scene is in an unknown state and the combined error is fatal.
func (e *Episode) abort(ctx context.Context, cause error) error {
	rerr := e.c.Textures.Release(ctx)
	if rerr == nil {
		return cause
	}
	return errors.Wrap(errors.ErrCodeSimulationState, multierr.Combine(cause, rerr), "release textures after failed episode")
}
