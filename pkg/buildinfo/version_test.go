package buildinfo

import (
	"strings"
	"testing"
)

func TestRunDir(t *testing.T) {
	tests := []struct {
		v    int
		want string
	}{
		{0, "random_dataset_V0"},
		{3, "random_dataset_V3"},
	}
	for _, tt := range tests {
		if got := RunDir(tt.v); got != tt.want {
			t.Errorf("RunDir(%d) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); !strings.HasPrefix(got, "domrand/") {
		t.Errorf("UserAgent() = %q, want domrand/ prefix", got)
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, want := range []string{"version: " + Version, "commit: " + Commit, "dataset: V0"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
