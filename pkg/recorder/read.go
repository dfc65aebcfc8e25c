package recorder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/domrand/pkg/errors"
)

// ReadRecord loads the sidecar at path.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, errors.Wrap(errors.ErrCodeNotFound, err, "record %s", filepath.Base(path))
		}
		return Record{}, errors.Wrap(errors.ErrCodeStorage, err, "read %s", path)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode %s", path)
	}
	if rec.TargetLocation == nil {
		rec.TargetLocation = []float64{}
	}
	if n := len(rec.TargetLocation); n != 0 && n != 2 {
		return Record{}, errors.New(errors.ErrCodeInvalidInput, "%s: target_location has %d values", path, n)
	}
	return rec, nil
}

// ImageFile resolves the image of rec, whose sidecar lives in dir.
func ImageFile(dir string, rec Record) string {
	if filepath.IsAbs(rec.ImagePath) {
		return rec.ImagePath
	}
	return filepath.Join(dir, rec.ImagePath)
}

// List returns the ids of all sidecars in dir, sorted. Because ids start
// with the capture time this is also capture order.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "run directory %s", dir)
		}
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list %s", dir)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != MetadataExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, MetadataExt))
	}
	slices.Sort(ids)
	return ids, nil
}

// ValidID reports whether id could have been produced by NewID. It guards
// path construction from untrusted input.
func ValidID(id string) bool {
	if len(id) != 20+32 {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
