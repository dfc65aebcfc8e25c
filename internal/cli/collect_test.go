package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/domrand/pkg/buildinfo"
	"github.com/matzehuels/domrand/pkg/dataset"
	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/index"
	"github.com/matzehuels/domrand/pkg/recorder"
	"github.com/matzehuels/domrand/pkg/scene/fake"
	"github.com/matzehuels/domrand/pkg/simclient"
)

// newBridge serves a fresh fake simulator over the bridge protocol.
func newBridge(t *testing.T) (*fake.Simulator, string) {
	t.Helper()
	sim := fake.New()
	srv := httptest.NewServer(simclient.NewBridge(sim))
	t.Cleanup(srv.Close)
	return sim, srv.URL
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := New(io.Discard, LogInfo).Command()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func runDir(out string) string {
	return filepath.Join(out, buildinfo.RunDir(buildinfo.DatasetVersion))
}

// readRecords returns the records of dir in capture order.
func readRecords(t *testing.T, dir string) []recorder.Record {
	t.Helper()
	ids, err := recorder.List(dir)
	if err != nil {
		t.Fatal(err)
	}
	recs := make([]recorder.Record, len(ids))
	for i, id := range ids {
		if recs[i], err = recorder.ReadRecord(filepath.Join(dir, id+recorder.MetadataExt)); err != nil {
			t.Fatal(err)
		}
	}
	return recs
}

func TestCollect(t *testing.T) {
	sim, url := newBridge(t)
	out := t.TempDir()

	if _, err := execute(t, "collect", "--sim", url, "--out", out, "--episodes", "3", "--seed", "7", "--index", "file"); err != nil {
		t.Fatalf("collect error: %v", err)
	}

	dir := runDir(out)
	if got := len(readRecords(t, dir)); got != 3 {
		t.Errorf("%d samples recorded, want 3", got)
	}
	entries, err := index.ReadFile(filepath.Join(dir, index.FileName))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("%d index entries, want 3", len(entries))
	}
	if got, want := sim.Scene(), filepath.Join("scenes", "UR5_pick_env.ttt"); got != want {
		t.Errorf("loaded scene = %q, want %q", got, want)
	}
	if sim.Running() {
		t.Error("simulation still running after collect")
	}
}

func TestCollectSkipLoad(t *testing.T) {
	sim, url := newBridge(t)
	out := t.TempDir()

	if _, err := execute(t, "collect", "--sim", url, "--out", out, "--episodes", "1", "--skip-load"); err != nil {
		t.Fatalf("collect error: %v", err)
	}
	if got := sim.Scene(); got != "" {
		t.Errorf("loaded scene = %q, want none", got)
	}
}

func TestCollectSameSeedSameEpisodes(t *testing.T) {
	collect := func() []recorder.Record {
		_, url := newBridge(t)
		out := t.TempDir()
		if _, err := execute(t, "collect", "--sim", url, "--out", out, "--episodes", "4", "--seed", "42"); err != nil {
			t.Fatalf("collect error: %v", err)
		}
		return readRecords(t, runDir(out))
	}
	poses := func(recs []recorder.Record) [][3]float64 {
		var out [][3]float64
		for _, r := range recs {
			out = append(out, r.CameraPosition, r.CameraOrientation)
		}
		return out
	}

	a, b := collect(), collect()
	if diff := cmp.Diff(poses(a), poses(b)); diff != "" {
		t.Errorf("camera poses differ between runs with the same seed (-first +second):\n%s", diff)
	}
}

func TestCollectWithStatusServer(t *testing.T) {
	_, url := newBridge(t)
	out := t.TempDir()

	if _, err := execute(t, "collect", "--sim", url, "--out", out, "--episodes", "2", "--serve", "127.0.0.1:0"); err != nil {
		t.Fatalf("collect error: %v", err)
	}
	if got := len(readRecords(t, runDir(out))); got != 2 {
		t.Errorf("%d samples recorded, want 2", got)
	}
}

func TestCollectRejectsInvalidFlags(t *testing.T) {
	sim, url := newBridge(t)
	out := t.TempDir()

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"unknown index", []string{"--index", "bogus"}, errors.ErrCodeInvalidConfig},
		{"bad sim url", []string{"--sim", "localhost"}, errors.ErrCodeInvalidConfig},
		{"missing config", []string{"--config", filepath.Join(out, "missing.toml")}, errors.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"collect", "--sim", url, "--out", out}, tt.args...)
			_, err := execute(t, args...)
			if got := errors.GetCode(err); got != tt.code {
				t.Errorf("error code = %v, want %v (err: %v)", got, tt.code, err)
			}
		})
	}
	if calls := sim.Calls(); len(calls) != 0 {
		t.Errorf("simulator received %d calls, want none", len(calls))
	}
}

func TestCollectSimulatorFailure(t *testing.T) {
	sim, url := newBridge(t)
	sim.FailOn("LoadScene", errors.New(errors.ErrCodeSimulationState, "scene locked"))

	_, err := execute(t, "collect", "--sim", url, "--out", t.TempDir(), "--episodes", "1")
	if !errors.Is(err, errors.ErrCodeSimulationState) {
		t.Errorf("collect error = %v, want %s", err, errors.ErrCodeSimulationState)
	}
}

func TestDatasetCommands(t *testing.T) {
	_, url := newBridge(t)
	out := t.TempDir()
	if _, err := execute(t, "collect", "--sim", url, "--out", out, "--episodes", "5", "--seed", "3"); err != nil {
		t.Fatalf("collect error: %v", err)
	}
	dir := runDir(out)

	t.Run("stats", func(t *testing.T) {
		stdout, err := execute(t, "dataset", "stats", "--json", dir)
		if err != nil {
			t.Fatalf("dataset stats error: %v", err)
		}
		var st dataset.Stats
		if err := json.Unmarshal([]byte(stdout), &st); err != nil {
			t.Fatalf("decode stats: %v\n%s", err, stdout)
		}
		if st.Samples != 5 || st.Train+st.Validation != 5 || st.MissingImages != 0 {
			t.Errorf("stats = %+v, want 5 complete samples", st)
		}
	})

	t.Run("split", func(t *testing.T) {
		manifests := t.TempDir()
		if _, err := execute(t, "dataset", "split", "--out", manifests, dir); err != nil {
			t.Fatalf("dataset split error: %v", err)
		}
		for _, name := range []string{dataset.TrainManifest, dataset.ValidationManifest} {
			if _, err := os.Stat(filepath.Join(manifests, name)); err != nil {
				t.Errorf("manifest %s: %v", name, err)
			}
		}
	})

	t.Run("verify", func(t *testing.T) {
		if _, err := execute(t, "dataset", "verify", "--size", "16", dir); err != nil {
			t.Errorf("dataset verify error: %v", err)
		}
	})

	t.Run("missing dir", func(t *testing.T) {
		if _, err := execute(t, "dataset", "stats", filepath.Join(out, "nope")); err == nil {
			t.Error("dataset stats on a missing directory should fail")
		}
	})
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
}
