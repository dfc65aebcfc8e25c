package simclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/observability"
	"github.com/matzehuels/domrand/pkg/scene"
)

type bridgeCall struct {
	Func string            `json:"func"`
	Args []json.RawMessage `json:"args"`
}

// newBridge starts a server that answers every call with reply(func, args).
func newBridge(t *testing.T, reply func(call bridgeCall) (int, any)) (*Client, func() []bridgeCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []bridgeCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != CallPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "domrand/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		var c bridgeCall
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		calls = append(calls, c)
		mu.Unlock()
		status, body := reply(c)
		w.WriteHeader(status)
		if s, ok := body.(string); ok {
			w.Write([]byte(s))
			return
		}
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return c, func() []bridgeCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]bridgeCall(nil), calls...)
	}
}

func ok(result any) (int, any) {
	return http.StatusOK, map[string]any{"ok": true, "result": result}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:23050", "ftp://host", "http://"} {
		if _, err := New(u, Options{}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
			t.Errorf("New(%q) error = %v, want INVALID_CONFIG", u, err)
		}
	}
}

func TestObjectHandle(t *testing.T) {
	c, calls := newBridge(t, func(call bridgeCall) (int, any) {
		var name string
		json.Unmarshal(call.Args[0], &name)
		if name == "Camera" {
			return ok(17)
		}
		return ok(-1)
	})
	ctx := context.Background()

	h, err := c.ObjectHandle(ctx, "Camera")
	if err != nil || h != 17 {
		t.Errorf("ObjectHandle(Camera) = %v, %v, want #17", h, err)
	}
	if _, err := c.ObjectHandle(ctx, "missing"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("ObjectHandle(missing) error = %v, want NOT_FOUND", err)
	}
	if got := calls()[0].Func; got != FnGetObject {
		t.Errorf("func = %q, want %q", got, FnGetObject)
	}
}

func TestPoseRoundTrip(t *testing.T) {
	var stored []float64
	c, calls := newBridge(t, func(call bridgeCall) (int, any) {
		switch call.Func {
		case FnSetPosition:
			json.Unmarshal(call.Args[2], &stored)
			return ok(nil)
		case FnGetPosition:
			return ok(stored)
		}
		return ok(nil)
	})
	ctx := context.Background()

	want := r3.Vector{X: 0.1, Y: -0.2, Z: 0.3}
	if err := c.SetPosition(ctx, 4, want, scene.World); err != nil {
		t.Fatal(err)
	}
	got, err := c.Position(ctx, 4, scene.World)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Position() = %v, want %v", got, want)
	}
	var rel int
	json.Unmarshal(calls()[0].Args[1], &rel)
	if rel != -1 {
		t.Errorf("relative handle = %d, want -1", rel)
	}
}

func TestVectorLength(t *testing.T) {
	c, _ := newBridge(t, func(bridgeCall) (int, any) { return ok([]float64{1, 2}) })
	if _, err := c.Orientation(context.Background(), 1, scene.World); !errors.Is(err, errors.ErrCodeTransport) {
		t.Errorf("Orientation() error = %v, want TRANSPORT", err)
	}
}

func TestCallScript(t *testing.T) {
	c, calls := newBridge(t, func(call bridgeCall) (int, any) {
		return ok(scene.ScriptArgs{Ints: []int{9, 300}})
	})
	out, err := c.CallScript(context.Background(), scene.APIScript, scene.FnCreateTexture,
		scene.ScriptArgs{Ints: []int{3, 256, 256}, Strings: []string{"/tex/p1.jpeg"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Ints) != 2 || out.Ints[0] != 9 || out.Ints[1] != 300 {
		t.Errorf("CallScript() = %+v", out)
	}

	var target string
	json.Unmarshal(calls()[0].Args[0], &target)
	if target != "pyCreateTexture@RemotePyApi" {
		t.Errorf("target = %q", target)
	}
	var in scene.ScriptArgs
	json.Unmarshal(calls()[0].Args[1], &in)
	if len(in.Strings) != 1 || in.Strings[0] != "/tex/p1.jpeg" {
		t.Errorf("sent args = %+v", in)
	}
}

func TestCaptureVisionSensor(t *testing.T) {
	pixels := make([]byte, 4*2*3)
	pixels[0] = 200
	c, _ := newBridge(t, func(bridgeCall) (int, any) {
		return ok(map[string]any{"resolution": []int{4, 2}, "image": pixels})
	})
	f, err := c.CaptureVisionSensor(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 4 || f.Height != 2 || len(f.Pixels) != 24 || f.Pixels[0] != 200 {
		t.Errorf("frame = %dx%d, %d bytes", f.Width, f.Height, len(f.Pixels))
	}
}

func TestCaptureRejectsShortBuffer(t *testing.T) {
	c, _ := newBridge(t, func(bridgeCall) (int, any) {
		return ok(map[string]any{"resolution": []int{4, 2}, "image": []byte{1, 2, 3}})
	})
	if _, err := c.CaptureVisionSensor(context.Background(), 3); !errors.Is(err, errors.ErrCodeTransport) {
		t.Errorf("error = %v, want TRANSPORT", err)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		want   errors.Code
	}{
		{"http error", http.StatusBadGateway, "upstream down", errors.ErrCodeTransport},
		{"malformed", http.StatusOK, "{not json", errors.ErrCodeTransport},
		{"not found", http.StatusOK, map[string]any{"ok": false, "error": map[string]string{"code": "not_found", "message": "no such script"}}, errors.ErrCodeNotFound},
		{"bad state", http.StatusOK, map[string]any{"ok": false, "error": map[string]string{"code": "bad_state", "message": "not running"}}, errors.ErrCodeSimulationState},
		{"other", http.StatusOK, map[string]any{"ok": false, "error": map[string]string{"code": "lua", "message": "boom"}}, errors.ErrCodeTransport},
		{"no error body", http.StatusOK, map[string]any{"ok": false}, errors.ErrCodeTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newBridge(t, func(bridgeCall) (int, any) { return tt.status, tt.body })
			if err := c.StepSimulation(context.Background()); !errors.Is(err, tt.want) {
				t.Errorf("StepSimulation() error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.StartSimulation(context.Background()); !errors.Is(err, errors.ErrCodeTransport) {
		t.Errorf("StartSimulation() error = %v, want TRANSPORT", err)
	}
}

func TestCallsReportToHooks(t *testing.T) {
	counters := observability.NewCounters()
	observability.SetSimHooks(counters)
	t.Cleanup(observability.Reset)

	c, _ := newBridge(t, func(call bridgeCall) (int, any) {
		if call.Func == FnStop {
			return http.StatusInternalServerError, "x"
		}
		return ok(nil)
	})
	ctx := context.Background()
	c.StartSimulation(ctx)
	c.StopSimulation(ctx)

	snap := counters.Snapshot()
	if snap.SimCalls != 2 || snap.SimErrors != 1 {
		t.Errorf("SimCalls = %d, SimErrors = %d, want 2 and 1", snap.SimCalls, snap.SimErrors)
	}
}
