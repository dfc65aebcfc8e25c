// Package simclient implements scene.Control over the simulator's HTTP
// bridge.
//
// Every operation is one blocking POST to <base>/api/v1/call:
//
//	{"func": "sim.getObjectPosition", "args": [12, -1]}
//
// answered by
//
//	{"ok": true, "result": [0.1, 0.2, 0.0]}
//	{"ok": false, "error": {"code": "not_found", "message": "..."}}
//
// Calls are never retried. A request that fails in flight may or may not
// have been applied by the simulator, so a transport error is reported with
// code TRANSPORT and the collector stops.
package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/matzehuels/domrand/pkg/buildinfo"
	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/observability"
	"github.com/matzehuels/domrand/pkg/scene"
)

// CallPath is the bridge endpoint relative to the base URL.
const CallPath = "/api/v1/call"

// Remote function names.
const (
	FnLoadScene      = "sim.loadScene"
	FnStart          = "sim.startSimulation"
	FnStop           = "sim.stopSimulation"
	FnStep           = "sim.step"
	FnGetObject      = "sim.getObject"
	FnGetPosition    = "sim.getObjectPosition"
	FnSetPosition    = "sim.setObjectPosition"
	FnGetOrientation = "sim.getObjectOrientation"
	FnSetOrientation = "sim.setObjectOrientation"
	FnCallScript     = "sim.callScriptFunction"
	FnVisionImage    = "sim.getVisionSensorImage"
)

// Remote error codes.
const (
	codeNotFound = "not_found"
	codeState    = "bad_state"
)

type request struct {
	Func string `json:"func"`
	Args []any  `json:"args"`
}

type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *remoteError    `json:"error"`
}

// Options configures a Client.
type Options struct {
	// Timeout bounds every call; zero means no limit beyond ctx.
	Timeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client is a scene.Control backed by the HTTP bridge.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a client for the bridge at baseURL (e.g. http://127.0.0.1:23050).
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "simulator url %q must be http(s)://host:port", baseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		endpoint: strings.TrimSuffix(u.String(), "/") + CallPath,
		http:     hc,
	}, nil
}

// call performs one remote call and decodes its result into out (if non-nil).
func (c *Client) call(ctx context.Context, fn string, out any, args ...any) (err error) {
	start := time.Now()
	defer func() { observability.Sim().OnCall(ctx, fn, time.Since(start), err) }()

	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(request{Func: fn, Args: args})
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode %s", fn)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "build %s", fn)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTransport, err, "%s", fn)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.New(errors.ErrCodeTransport, "%s: status %d: %s", fn, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return errors.Wrap(errors.ErrCodeTransport, err, "%s: malformed response", fn)
	}
	if !r.OK {
		return remoteErr(fn, r.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return errors.Wrap(errors.ErrCodeTransport, err, "%s: malformed result", fn)
	}
	return nil
}

func remoteErr(fn string, e *remoteError) error {
	if e == nil {
		return errors.New(errors.ErrCodeTransport, "%s failed without an error", fn)
	}
	switch e.Code {
	case codeNotFound:
		return errors.New(errors.ErrCodeNotFound, "%s: %s", fn, e.Message)
	case codeState:
		return errors.New(errors.ErrCodeSimulationState, "%s: %s", fn, e.Message)
	}
	return errors.New(errors.ErrCodeTransport, "%s: %s: %s", fn, e.Code, e.Message)
}

// LoadScene implements scene.Control.
func (c *Client) LoadScene(ctx context.Context, path string) error {
	return c.call(ctx, FnLoadScene, nil, path)
}

// StartSimulation implements scene.Control.
func (c *Client) StartSimulation(ctx context.Context) error {
	return c.call(ctx, FnStart, nil)
}

// StopSimulation implements scene.Control.
func (c *Client) StopSimulation(ctx context.Context) error {
	return c.call(ctx, FnStop, nil)
}

// StepSimulation implements scene.Control.
func (c *Client) StepSimulation(ctx context.Context) error {
	return c.call(ctx, FnStep, nil)
}

// ObjectHandle implements scene.Control.
func (c *Client) ObjectHandle(ctx context.Context, name string) (scene.Handle, error) {
	var h int
	if err := c.call(ctx, FnGetObject, &h, name); err != nil {
		return scene.Invalid, err
	}
	if h < 0 {
		return scene.Invalid, errors.New(errors.ErrCodeNotFound, "scene object %q", name)
	}
	return scene.Handle(h), nil
}

// Position implements scene.Control.
func (c *Client) Position(ctx context.Context, h, rel scene.Handle) (r3.Vector, error) {
	return c.vector(ctx, FnGetPosition, h, rel)
}

// SetPosition implements scene.Control.
func (c *Client) SetPosition(ctx context.Context, h scene.Handle, pos r3.Vector, rel scene.Handle) error {
	return c.call(ctx, FnSetPosition, nil, int(h), int(rel), triple(pos))
}

// Orientation implements scene.Control.
func (c *Client) Orientation(ctx context.Context, h, rel scene.Handle) (r3.Vector, error) {
	return c.vector(ctx, FnGetOrientation, h, rel)
}

// SetOrientation implements scene.Control.
func (c *Client) SetOrientation(ctx context.Context, h scene.Handle, ori r3.Vector, rel scene.Handle) error {
	return c.call(ctx, FnSetOrientation, nil, int(h), int(rel), triple(ori))
}

// CallScript implements scene.Control.
func (c *Client) CallScript(ctx context.Context, script, function string, in scene.ScriptArgs) (scene.ScriptArgs, error) {
	var out scene.ScriptArgs
	if err := c.call(ctx, FnCallScript, &out, function+"@"+script, in); err != nil {
		return scene.ScriptArgs{}, err
	}
	return out, nil
}

type visionImage struct {
	Resolution [2]int `json:"resolution"`
	Image      []byte `json:"image"`
}

// CaptureVisionSensor implements scene.Control.
func (c *Client) CaptureVisionSensor(ctx context.Context, h scene.Handle) (scene.Frame, error) {
	var img visionImage
	if err := c.call(ctx, FnVisionImage, &img, int(h)); err != nil {
		return scene.Frame{}, err
	}
	f := scene.Frame{Width: img.Resolution[0], Height: img.Resolution[1], Pixels: img.Image}
	if err := f.Validate(); err != nil {
		return scene.Frame{}, errors.Wrap(errors.ErrCodeTransport, err, "%s", FnVisionImage)
	}
	return f, nil
}

// Close implements scene.Control.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) vector(ctx context.Context, fn string, h, rel scene.Handle) (r3.Vector, error) {
	var v []float64
	if err := c.call(ctx, fn, &v, int(h), int(rel)); err != nil {
		return r3.Vector{}, err
	}
	if len(v) != 3 {
		return r3.Vector{}, errors.New(errors.ErrCodeTransport, "%s: got %d values, want 3", fn, len(v))
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

func triple(v r3.Vector) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// String describes the client for logs.
func (c *Client) String() string { return fmt.Sprintf("simclient(%s)", c.endpoint) }

var _ scene.Control = (*Client)(nil)
