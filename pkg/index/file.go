package index

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/matzehuels/domrand/pkg/errors"
)

// FileName is the JSON-lines index written next to the samples.
const FileName = "index.jsonl"

// File appends one JSON object per line to a local file.
type File struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// OpenFile opens (or creates) <dir>/index.jsonl for appending.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "create index dir")
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "open index file")
	}
	return &File{f: f}, nil
}

// Add implements Index.
func (x *File) Add(_ context.Context, e Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	if e.TargetLocation == nil {
		e.TargetLocation = []float64{}
	}
	line, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode index entry")
	}
	if _, err := x.f.Write(append(line, '\n')); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "append index entry")
	}
	return nil
}

// Close implements Index.
func (x *File) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return x.f.Close()
}

// ReadFile returns every entry of a JSON-lines index in file order.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "index %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "open index")
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s:%d", path, line)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "read index")
	}
	return out, nil
}

var _ Index = (*File)(nil)
