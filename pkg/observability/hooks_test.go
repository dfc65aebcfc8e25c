package observability

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/domrand/pkg/errors"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	e := NoopEpisodeHooks{}
	e.OnEpisodeStart(ctx, 1)
	e.OnEpisodeComplete(ctx, 1, time.Second, nil)

	r := NoopRecorderHooks{}
	r.OnSampleWritten(ctx, "id", true, 1024)
	r.OnIndexError(ctx, "redis", nil)

	s := NoopSimHooks{}
	s.OnCall(ctx, "sim.step", time.Millisecond, nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Episode().(NoopEpisodeHooks); !ok {
		t.Error("Episode() should return NoopEpisodeHooks by default")
	}
	if _, ok := Recorder().(NoopRecorderHooks); !ok {
		t.Error("Recorder() should return NoopRecorderHooks by default")
	}
	if _, ok := Sim().(NoopSimHooks); !ok {
		t.Error("Sim() should return NoopSimHooks by default")
	}

	c := NewCounters()
	SetEpisodeHooks(c)
	SetRecorderHooks(c)
	SetSimHooks(c)
	if Episode() != EpisodeHooks(c) || Recorder() != RecorderHooks(c) || Sim() != SimHooks(c) {
		t.Error("Set*Hooks should register the counters")
	}

	// Reset and verify
	Reset()
	if _, ok := Episode().(NoopEpisodeHooks); !ok {
		t.Error("Reset() should restore NoopEpisodeHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testEpisodeHooks{}
	SetEpisodeHooks(custom)

	// Setting nil should be ignored
	SetEpisodeHooks(nil)

	if Episode() != EpisodeHooks(custom) {
		t.Error("SetEpisodeHooks(nil) should be ignored")
	}

	Reset()
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	c := NewCounters()

	for i := range 4 {
		c.OnEpisodeStart(ctx, i)
	}
	c.OnSampleWritten(ctx, "a", true, 100)
	c.OnSampleWritten(ctx, "b", false, 50)
	c.OnEpisodeComplete(ctx, 2, time.Second, errors.New(errors.ErrCodePlacementExhausted, "full"))
	c.OnEpisodeComplete(ctx, 3, time.Second, errors.New(errors.ErrCodeTransport, "gone"))
	c.OnIndexError(ctx, "mongo", fmt.Errorf("down"))
	c.OnCall(ctx, "sim.step", 2*time.Millisecond, nil)
	c.OnCall(ctx, "sim.step", 3*time.Millisecond, fmt.Errorf("x"))

	s := c.Snapshot()
	tests := []struct {
		name      string
		got, want int64
	}{
		{"Episodes", s.Episodes, 4},
		{"Recorded", s.Recorded, 2},
		{"Positive", s.Positive, 1},
		{"Negative", s.Negative, 1},
		{"Skipped", s.Skipped, 1},
		{"Failed", s.Failed, 1},
		{"Bytes", s.Bytes, 150},
		{"IndexErrors", s.IndexErrors, 1},
		{"SimCalls", s.SimCalls, 2},
		{"SimErrors", s.SimErrors, 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
	if s.SimTime != 5*time.Millisecond {
		t.Errorf("SimTime = %v, want 5ms", s.SimTime)
	}
	if s.LastID != "b" {
		t.Errorf("LastID = %q, want b", s.LastID)
	}
}

func TestCountersConcurrent(t *testing.T) {
	ctx := context.Background()
	c := NewCounters()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				c.OnSampleWritten(ctx, "x", true, 1)
			}
		}()
	}
	wg.Wait()
	if got := c.Snapshot().Recorded; got != 8000 {
		t.Errorf("Recorded = %d, want 8000", got)
	}
}

// Test implementations
type testEpisodeHooks struct{ NoopEpisodeHooks }
