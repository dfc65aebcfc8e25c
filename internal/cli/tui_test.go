package cli

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/domrand/pkg/observability"
)

func TestCollectModelQuitBeforeDone(t *testing.T) {
	m := NewCollectModel(observability.NewCounters(), 10, "out/random_dataset_V0")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if !next.(CollectModel).Stopped {
		t.Error("Stopped = false after quitting a running collection")
	}
}

func TestCollectModelDone(t *testing.T) {
	counters := observability.NewCounters()
	counters.OnEpisodeStart(context.Background(), 1)
	counters.OnSampleWritten(context.Background(), "20260101000000000000abc", true, 2048)

	m := NewCollectModel(counters, 1, "run")
	next, cmd := m.Update(collectDoneMsg{})
	if cmd == nil {
		t.Fatal("collectDoneMsg should quit")
	}
	done := next.(CollectModel)
	if done.Stopped {
		t.Error("Stopped = true after collection finished")
	}

	view := done.View()
	for _, want := range []string{"1/1 episodes", "recorded", "2.0 KiB", "20260101000000000000abc"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
