// Package index publishes recorded samples to a secondary catalogue.
//
// The run directory (one image and one JSON sidecar per sample) is always
// the source of truth. An Index is an optional copy of the metadata that
// other tools can query without walking the directory: a local JSON-lines
// file, a Redis stream, or a MongoDB collection.
//
// # Failure semantics
//
// Network backends retry transient failures a few times (see pkg/retry) and
// then give up. The recorder reports index failures through observability
// hooks and logs; it never deletes a sample because its index write failed.
package index

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("index: closed")

// Entry is the indexed metadata of one sample.
type Entry struct {
	ID                string     `json:"id" bson:"_id"`
	Run               string     `json:"run" bson:"run"`
	ImagePath         string     `json:"image_path" bson:"image_path"`
	StepNum           int        `json:"step_num" bson:"step_num"`
	CameraPosition    [3]float64 `json:"camera_pos" bson:"camera_pos"`
	CameraOrientation [3]float64 `json:"camera_ori" bson:"camera_ori"`
	TargetLocation    []float64  `json:"target_location" bson:"target_location"`
	CreatedAt         time.Time  `json:"created_at" bson:"created_at"`
}

// Positive reports whether the target object is in the image.
func (e Entry) Positive() bool { return len(e.TargetLocation) == 2 }

// Index receives one Entry per recorded sample.
type Index interface {
	// Add stores e. Implementations must be safe to call from one goroutine
	// at a time; the recorder never calls Add concurrently.
	Add(ctx context.Context, e Entry) error

	// Close releases resources. Add after Close returns ErrClosed.
	Close() error
}

// Backend names accepted by the [index] configuration section.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

// Null discards every entry.
type Null struct{}

// Add implements Index.
func (Null) Add(context.Context, Entry) error { return nil }

// Close implements Index.
func (Null) Close() error { return nil }

var _ Index = Null{}
