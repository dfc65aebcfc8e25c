// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about episodes, recorded samples, and simulator calls.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// [Counters] is the one implementation shipped here. It keeps running totals
// that the CLI progress view and the status server read.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    counters := observability.NewCounters()
//	    observability.SetEpisodeHooks(counters)
//	    observability.SetRecorderHooks(counters)
//	    // ... run collector
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Episode().OnEpisodeStart(ctx, n)
//	// ... randomize and record ...
//	observability.Episode().OnEpisodeComplete(ctx, n, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Episode Hooks
// =============================================================================

// EpisodeHooks receives events from the collection loop.
type EpisodeHooks interface {
	// OnEpisodeStart is called before the first randomization step.
	OnEpisodeStart(ctx context.Context, episode int)

	// OnEpisodeComplete is called once per episode. A non-nil err means no
	// sample was recorded.
	OnEpisodeComplete(ctx context.Context, episode int, duration time.Duration, err error)
}

// =============================================================================
// Recorder Hooks
// =============================================================================

// RecorderHooks receives events from sample persistence.
type RecorderHooks interface {
	// OnSampleWritten records a persisted image and sidecar pair.
	OnSampleWritten(ctx context.Context, id string, positive bool, bytes int)

	// OnIndexError records a failed index write. The sample itself is on disk.
	OnIndexError(ctx context.Context, backend string, err error)
}

// =============================================================================
// Simulator Hooks
// =============================================================================

// SimHooks receives events from the simulator client.
type SimHooks interface {
	// OnCall records a completed simulator call.
	OnCall(ctx context.Context, function string, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopEpisodeHooks is a no-op implementation of EpisodeHooks.
type NoopEpisodeHooks struct{}

func (NoopEpisodeHooks) OnEpisodeStart(context.Context, int)                           {}
func (NoopEpisodeHooks) OnEpisodeComplete(context.Context, int, time.Duration, error) {}

// NoopRecorderHooks is a no-op implementation of RecorderHooks.
type NoopRecorderHooks struct{}

func (NoopRecorderHooks) OnSampleWritten(context.Context, string, bool, int) {}
func (NoopRecorderHooks) OnIndexError(context.Context, string, error)        {}

// NoopSimHooks is a no-op implementation of SimHooks.
type NoopSimHooks struct{}

func (NoopSimHooks) OnCall(context.Context, string, time.Duration, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	episodeHooks  EpisodeHooks  = NoopEpisodeHooks{}
	recorderHooks RecorderHooks = NoopRecorderHooks{}
	simHooks      SimHooks      = NoopSimHooks{}
	hooksMu       sync.RWMutex
)

// SetEpisodeHooks registers custom episode hooks.
// This should be called once at application startup before collection starts.
func SetEpisodeHooks(h EpisodeHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		episodeHooks = h
	}
}

// SetRecorderHooks registers custom recorder hooks.
func SetRecorderHooks(h RecorderHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		recorderHooks = h
	}
}

// SetSimHooks registers custom simulator hooks.
func SetSimHooks(h SimHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		simHooks = h
	}
}

// Episode returns the registered episode hooks.
func Episode() EpisodeHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return episodeHooks
}

// Recorder returns the registered recorder hooks.
func Recorder() RecorderHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return recorderHooks
}

// Sim returns the registered simulator hooks.
func Sim() SimHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return simHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	episodeHooks = NoopEpisodeHooks{}
	recorderHooks = NoopRecorderHooks{}
	simHooks = NoopSimHooks{}
}
