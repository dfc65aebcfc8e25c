package episode

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/recorder"
	"github.com/matzehuels/domrand/pkg/scene"
	"github.com/matzehuels/domrand/pkg/scene/fake"
)

func newTestCollector(t *testing.T, opts CollectorOptions, mod func(*Setup)) (*Collector, *fake.Simulator, string) {
	t.Helper()
	ep, sim, dir := newTestEpisode(t, 9, mod)
	return NewCollector(scene.NewSimulation(sim, false), ep, opts, nil), sim, dir
}

func TestCollectorMaxEpisodes(t *testing.T) {
	opts := DefaultCollectorOptions()
	opts.MaxEpisodes = 5
	c, sim, dir := newTestCollector(t, opts, nil)

	sum, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sum.Episodes != 5 || sum.Recorded != 5 || sum.Skipped != 0 {
		t.Errorf("Summary = %+v, want 5 recorded", sum)
	}
	if n := countSamples(t, dir); n != 5 {
		t.Errorf("%d samples on disk, want 5", n)
	}
	if !sim.Running() {
		t.Error("simulation should be running")
	}
	if got := sim.Steps(); got != DefaultWarmupSteps {
		t.Errorf("Steps() = %d, want %d warm-up steps", got, DefaultWarmupSteps)
	}
}

func TestCollectorResetRestartsRunningSimulation(t *testing.T) {
	ep, sim, _ := newTestEpisode(t, 1, nil)
	if err := sim.StartSimulation(context.Background()); err != nil {
		t.Fatal(err)
	}
	c := NewCollector(scene.NewSimulation(sim, true), ep, DefaultCollectorOptions(), nil)
	sim.ResetCalls()

	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	var ops []string
	for _, call := range sim.Calls() {
		if call.Op != "StepSimulation" {
			ops = append(ops, call.Op)
		}
	}
	if len(ops) != 2 || ops[0] != "StopSimulation" || ops[1] != "StartSimulation" {
		t.Errorf("Reset() calls = %v, want stop then start", ops)
	}
	if ep.Step() != 0 {
		t.Errorf("Step() = %d after Reset, want 0", ep.Step())
	}
}

func TestCollectorSkipsRecoverable(t *testing.T) {
	opts := DefaultCollectorOptions()
	opts.MaxEpisodes = 3
	c, sim, dir := newTestCollector(t, opts, func(s *Setup) {
		s.Texture.PoolSize = 3
		s.Surfaces = []string{"plane"}
	})

	// The first episode tries all three files and fails; every later create
	// succeeds.
	n := 0
	sim.Handle(scene.FnCreateTexture, func(scene.ScriptArgs) (scene.ScriptArgs, error) {
		n++
		if n <= 3 {
			return scene.ScriptArgs{Ints: []int{-1}}, nil
		}
		return scene.ScriptArgs{Ints: []int{n, 1000 + n}}, nil
	})

	sum, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sum.Episodes != 3 || sum.Skipped != 1 || sum.Recorded != 2 {
		t.Errorf("Summary = %+v, want 1 skipped and 2 recorded", sum)
	}
	if got := countSamples(t, dir); got != 2 {
		t.Errorf("%d samples on disk, want 2", got)
	}
}

func TestCollectorStopsOnFatal(t *testing.T) {
	opts := DefaultCollectorOptions()
	c, sim, _ := newTestCollector(t, opts, nil)
	sim.FailOn("CaptureVisionSensor", errors.New(errors.ErrCodeTransport, "simulator went away"))

	sum, err := c.Run(context.Background())
	if !errors.Is(err, errors.ErrCodeTransport) {
		t.Fatalf("Run() error = %v, want TRANSPORT", err)
	}
	if sum.Episodes != 1 {
		t.Errorf("Episodes = %d, want 1", sum.Episodes)
	}
	if n := sim.LiveTextures(); n != 0 {
		t.Errorf("%d textures leaked", n)
	}
}

func TestCollectorConsecutiveSkips(t *testing.T) {
	opts := DefaultCollectorOptions()
	opts.MaxConsecutiveSkips = 4
	c, sim, _ := newTestCollector(t, opts, nil)
	sim.Handle(scene.FnCreateTexture, func(scene.ScriptArgs) (scene.ScriptArgs, error) {
		return scene.ScriptArgs{Ints: []int{-1}}, nil
	})

	sum, err := c.Run(context.Background())
	if !errors.Is(err, errors.ErrCodeInternal) {
		t.Fatalf("Run() error = %v, want INTERNAL", err)
	}
	if sum.Skipped != 4 {
		t.Errorf("Skipped = %d, want 4", sum.Skipped)
	}
}

func TestCollectorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := DefaultCollectorOptions()
	opts.OnRecord = func(rec recorder.Record) {
		if rec.StepNum == 2 {
			cancel()
		}
	}
	c, _, _ := newTestCollector(t, opts, nil)

	sum, err := c.Run(ctx)
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if sum.Recorded != 2 {
		t.Errorf("Recorded = %d, want 2", sum.Recorded)
	}
}
