package simclient

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/scene"
)

// NewBridge serves ctl over the bridge protocol spoken by Client. It lets a
// local scene.Control (a recorded scene or the in-memory fake) stand in for
// the simulator.
func NewBridge(ctl scene.Control) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+CallPath, &bridge{ctl: ctl})
	return mux
}

type bridge struct {
	ctl scene.Control
}

type bridgeRequest struct {
	Func string            `json:"func"`
	Args []json.RawMessage `json:"args"`
}

func (b *bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req bridgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed call: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := b.dispatch(r, req)
	resp := map[string]any{"ok": err == nil}
	if err != nil {
		resp["error"] = remoteError{Code: remoteCode(err), Message: errors.UserMessage(err)}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (b *bridge) dispatch(r *http.Request, req bridgeRequest) (any, error) {
	ctx := r.Context()
	args := argReader{fn: req.Func, raw: req.Args}

	switch req.Func {
	case FnLoadScene:
		var path string
		args.next(&path)
		if args.err != nil {
			return nil, args.err
		}
		return nil, b.ctl.LoadScene(ctx, path)

	case FnStart:
		return nil, b.ctl.StartSimulation(ctx)
	case FnStop:
		return nil, b.ctl.StopSimulation(ctx)
	case FnStep:
		return nil, b.ctl.StepSimulation(ctx)

	case FnGetObject:
		var name string
		args.next(&name)
		if args.err != nil {
			return nil, args.err
		}
		h, err := b.ctl.ObjectHandle(ctx, name)
		if err != nil {
			return nil, err
		}
		return int(h), nil

	case FnGetPosition, FnGetOrientation:
		var h, rel int
		args.next(&h)
		args.next(&rel)
		if args.err != nil {
			return nil, args.err
		}
		get := b.ctl.Position
		if req.Func == FnGetOrientation {
			get = b.ctl.Orientation
		}
		v, err := get(ctx, scene.Handle(h), scene.Handle(rel))
		if err != nil {
			return nil, err
		}
		return triple(v), nil

	case FnSetPosition, FnSetOrientation:
		var h, rel int
		var v [3]float64
		args.next(&h)
		args.next(&rel)
		args.next(&v)
		if args.err != nil {
			return nil, args.err
		}
		set := b.ctl.SetPosition
		if req.Func == FnSetOrientation {
			set = b.ctl.SetOrientation
		}
		return nil, set(ctx, scene.Handle(h), r3.Vector{X: v[0], Y: v[1], Z: v[2]}, scene.Handle(rel))

	case FnCallScript:
		var target string
		var in scene.ScriptArgs
		args.next(&target)
		args.next(&in)
		if args.err != nil {
			return nil, args.err
		}
		function, script, ok := strings.Cut(target, "@")
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "script target %q is not function@object", target)
		}
		return b.ctl.CallScript(ctx, script, function, in)

	case FnVisionImage:
		var h int
		args.next(&h)
		if args.err != nil {
			return nil, args.err
		}
		f, err := b.ctl.CaptureVisionSensor(ctx, scene.Handle(h))
		if err != nil {
			return nil, err
		}
		return visionImage{Resolution: [2]int{f.Width, f.Height}, Image: f.Pixels}, nil
	}
	return nil, errors.New(errors.ErrCodeNotFound, "unknown function %q", req.Func)
}

// argReader decodes positional arguments, keeping the first error.
type argReader struct {
	fn  string
	raw []json.RawMessage
	i   int
	err error
}

func (a *argReader) next(v any) {
	if a.err != nil {
		return
	}
	if a.i >= len(a.raw) {
		a.err = errors.New(errors.ErrCodeInvalidInput, "%s: missing argument %d", a.fn, a.i)
		return
	}
	if err := json.Unmarshal(a.raw[a.i], v); err != nil {
		a.err = errors.Wrap(errors.ErrCodeInvalidInput, err, "%s: argument %d", a.fn, a.i)
	}
	a.i++
}

func remoteCode(err error) string {
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		return codeNotFound
	case errors.ErrCodeSimulationState:
		return codeState
	}
	if code := errors.GetCode(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "internal"
}
