// Package recorder persists one labelled sample per episode.
//
// Every sample is a JPEG image and a JSON sidecar sharing one id:
//
//	<dir>/<id>.jpg
//	<dir>/<id>.json
//
// The id is the capture time (YYYYMMDDhhmmss plus six digits of
// microseconds) followed by the 32 hex digits of a random UUID, so ids sort
// by time and stay unique across concurrent collector processes writing to
// the same directory without any coordination.
//
// Both files are written to a temporary name and renamed into place, image
// first. A sidecar therefore never points at a missing or partial image.
package recorder

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/index"
	"github.com/matzehuels/domrand/pkg/observability"
	"github.com/matzehuels/domrand/pkg/scene"
)

// File extensions of a sample pair.
const (
	ImageExt    = ".jpg"
	MetadataExt = ".json"
)

// DefaultQuality is the JPEG quality used when Options.Quality is zero.
const DefaultQuality = 95

// Sample is everything captured in one episode.
type Sample struct {
	Step   int
	Frame  scene.Frame
	Camera scene.Pose
	// Target is [x, y] when the target object is in frame, empty otherwise.
	Target []float64
}

// Record is the JSON sidecar of a persisted sample.
type Record struct {
	ID                string     `json:"id"`
	ImagePath         string     `json:"image_path"`
	StepNum           int        `json:"step_num"`
	CameraPosition    [3]float64 `json:"camera_pos"`
	CameraOrientation [3]float64 `json:"camera_ori"`
	TargetLocation    []float64  `json:"target_location"`
}

// Positive reports whether the target object is in the image.
func (r Record) Positive() bool { return len(r.TargetLocation) == 2 }

// Options configures a Recorder.
type Options struct {
	Dir     string
	Quality int

	// Index receives every record after both files are in place. Nil means
	// index.Null.
	Index index.Index

	Clock  clock.Clock
	Logger *log.Logger
}

// Recorder writes samples into one run directory.
type Recorder struct {
	dir     string
	run     string
	quality int
	index   index.Index
	clock   clock.Clock
	logger  *log.Logger
	newUUID func() uuid.UUID
}

// New creates the run directory if needed.
func New(opts Options) (*Recorder, error) {
	if opts.Dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "recorder: output directory is empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "create %s", opts.Dir)
	}
	r := &Recorder{
		dir:     opts.Dir,
		run:     filepath.Base(opts.Dir),
		quality: opts.Quality,
		index:   opts.Index,
		clock:   opts.Clock,
		logger:  opts.Logger,
		newUUID: uuid.New,
	}
	if r.quality == 0 {
		r.quality = DefaultQuality
	}
	if r.index == nil {
		r.index = index.Null{}
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	return r, nil
}

// Dir returns the run directory.
func (r *Recorder) Dir() string { return r.dir }

// NewID formats a sample id from a capture time and a UUID.
func NewID(t time.Time, u uuid.UUID) string {
	return fmt.Sprintf("%s%06d%s", t.Format("20060102150405"), t.Nanosecond()/1000, hex.EncodeToString(u[:]))
}

// Record writes the image and sidecar of s and publishes it to the index.
// Index failures are logged and reported through observability; they do not
// fail the call.
func (r *Recorder) Record(ctx context.Context, s Sample) (Record, error) {
	img, err := s.Frame.Image()
	if err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "captured frame")
	}

	now := r.clock.Now()
	id := NewID(now, r.newUUID())
	rec := Record{
		ID:                id,
		ImagePath:         id + ImageExt,
		StepNum:           s.Step,
		CameraPosition:    [3]float64{s.Camera.Position.X, s.Camera.Position.Y, s.Camera.Position.Z},
		CameraOrientation: [3]float64{s.Camera.Orientation.X, s.Camera.Orientation.Y, s.Camera.Orientation.Z},
		TargetLocation:    s.Target,
	}
	if rec.TargetLocation == nil {
		rec.TargetLocation = []float64{}
	}

	n, err := r.writeAtomic(rec.ImagePath, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(r.quality))
	})
	if err != nil {
		return Record{}, err
	}
	meta, err := json.Marshal(rec)
	if err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeInternal, err, "encode record %s", id)
	}
	m, err := r.writeAtomic(id+MetadataExt, func(w io.Writer) error {
		_, err := w.Write(meta)
		return err
	})
	if err != nil {
		return Record{}, err
	}

	observability.Recorder().OnSampleWritten(ctx, id, rec.Positive(), n+m)

	if err := r.index.Add(ctx, rec.entry(r.run, now)); err != nil {
		r.logger.Warn("index write failed", "id", id, "err", err)
		observability.Recorder().OnIndexError(ctx, fmt.Sprintf("%T", r.index), err)
	}
	return rec, nil
}

// Close closes the index.
func (r *Recorder) Close() error {
	return r.index.Close()
}

func (rec Record) entry(run string, at time.Time) index.Entry {
	return index.Entry{
		ID:                rec.ID,
		Run:               run,
		ImagePath:         rec.ImagePath,
		StepNum:           rec.StepNum,
		CameraPosition:    rec.CameraPosition,
		CameraOrientation: rec.CameraOrientation,
		TargetLocation:    rec.TargetLocation,
		CreatedAt:         at.UTC(),
	}
}

// writeAtomic writes name through a temporary file in the run directory and
// returns the number of bytes written.
func (r *Recorder) writeAtomic(name string, write func(io.Writer) error) (int, error) {
	tmp, err := os.CreateTemp(r.dir, "."+strings.TrimSuffix(name, filepath.Ext(name))+"-*.tmp")
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStorage, err, "create %s", name)
	}
	cw := &countingWriter{w: tmp}
	werr := write(cw)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return 0, errors.Wrap(errors.ErrCodeStorage, werr, "write %s", name)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(r.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return 0, errors.Wrap(errors.ErrCodeStorage, err, "rename %s", name)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
