package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/domrand/pkg/buildinfo"
	"github.com/matzehuels/domrand/pkg/config"
)

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	if err != nil {
		t.Fatalf("--version error: %v", err)
	}
	if !strings.Contains(out, buildinfo.Version) || !strings.HasPrefix(out, appName) {
		t.Errorf("--version output = %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := execute(t, "render"); err == nil {
		t.Error("unknown command should fail")
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domrand.toml")

	if _, err := execute(t, "config", "init", "--file", path); err != nil {
		t.Fatalf("config init error: %v", err)
	}
	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if diff := cmp.Diff(config.Default(), got); diff != "" {
		t.Errorf("written config differs from default (-want +got):\n%s", diff)
	}

	if _, err := execute(t, "config", "init", "--file", path); err == nil {
		t.Error("config init over an existing file should fail without --force")
	}
	if _, err := execute(t, "config", "init", "--force", "--file", path); err != nil {
		t.Errorf("config init --force error: %v", err)
	}
}

func TestConfigInitStdout(t *testing.T) {
	out, err := execute(t, "config", "init")
	if err != nil {
		t.Fatalf("config init error: %v", err)
	}
	for _, section := range []string{"[sim]", "[run]", "[index]", "[placement]", "[lighting]", "[texture]", "[jitter]", "[server]"} {
		if !strings.Contains(out, section) {
			t.Errorf("config init output missing %s", section)
		}
	}
}

func TestConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	cfg := config.Default()
	cfg.Run.Episodes = 123
	b, err := cfg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, b)

	out, err := execute(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show error: %v", err)
	}
	if !strings.Contains(out, "episodes = 123") {
		t.Errorf("config show output missing override:\n%s", out)
	}
}

func TestNewSeed(t *testing.T) {
	if got := newSeed(42); got != 42 {
		t.Errorf("newSeed(42) = %d, want 42", got)
	}
	if got := newSeed(0); got == 0 {
		t.Error("newSeed(0) = 0, want a clock-derived seed")
	}
}

func TestNewRandDeterministic(t *testing.T) {
	a, b := newRand(7), newRand(7)
	for i := 0; i < 10; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d: %v != %v", i, x, y)
		}
	}
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, err := execute(t, "completion", shell)
			if err != nil {
				t.Fatalf("completion %s error: %v", shell, err)
			}
			if !strings.Contains(out, appName) {
				t.Errorf("completion %s output does not mention %s", shell, appName)
			}
		})
	}
	if _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Error("completion for an unsupported shell should fail")
	}
}
