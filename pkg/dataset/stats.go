package dataset

import (
	"bufio"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/recorder"
)

// Manifest file names written by WriteManifests.
const (
	TrainManifest      = "train.txt"
	ValidationManifest = "val.txt"
)

// Stats summarizes a run directory without decoding images.
type Stats struct {
	Samples    int `json:"samples"`
	Positive   int `json:"positive"`
	Negative   int `json:"negative"`
	Train      int `json:"train"`
	Validation int `json:"validation"`
	// MissingImages counts sidecars whose image file is absent.
	MissingImages int `json:"missing_images"`
	// TargetMin and TargetMax bound all positive target locations.
	TargetMin [2]float64 `json:"target_min"`
	TargetMax [2]float64 `json:"target_max"`
	FirstID   string     `json:"first_id,omitempty"`
	LastID    string     `json:"last_id,omitempty"`
}

// PositiveRatio is the share of samples showing the target.
func (s Stats) PositiveRatio() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Positive) / float64(s.Samples)
}

// ComputeStats scans dir and splits it at ratio.
func ComputeStats(dir string, ratio float64) (Stats, error) {
	recs, err := Scan(dir)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Samples:   len(recs),
		TargetMin: [2]float64{math.Inf(1), math.Inf(1)},
		TargetMax: [2]float64{math.Inf(-1), math.Inf(-1)},
	}
	for i, rec := range recs {
		if IsValidation(i, len(recs), ratio) {
			st.Validation++
		} else {
			st.Train++
		}
		if _, err := os.Stat(recorder.ImageFile(dir, rec)); err != nil {
			st.MissingImages++
		}
		if !rec.Positive() {
			st.Negative++
			continue
		}
		st.Positive++
		for k := 0; k < 2; k++ {
			st.TargetMin[k] = math.Min(st.TargetMin[k], rec.TargetLocation[k])
			st.TargetMax[k] = math.Max(st.TargetMax[k], rec.TargetLocation[k])
		}
	}
	if st.Positive == 0 {
		st.TargetMin, st.TargetMax = [2]float64{}, [2]float64{}
	}
	if len(recs) > 0 {
		st.FirstID, st.LastID = recs[0].ID, recs[len(recs)-1].ID
	}
	return st, nil
}

// WriteManifests writes the ids of each split, one per line, to
// out/train.txt and out/val.txt.
func WriteManifests(dir, out string, ratio float64) (train, val int, err error) {
	if ratio < 0 || ratio > 1 {
		return 0, 0, errors.New(errors.ErrCodeInvalidInput, "validation ratio must be in [0, 1], got %v", ratio)
	}
	ids, err := recorder.List(dir)
	if err != nil {
		return 0, 0, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeStorage, err, "create %s", out)
	}
	var trainIDs, valIDs []string
	for i, id := range ids {
		if IsValidation(i, len(ids), ratio) {
			valIDs = append(valIDs, id)
		} else {
			trainIDs = append(trainIDs, id)
		}
	}
	if err := writeLines(filepath.Join(out, TrainManifest), trainIDs); err != nil {
		return 0, 0, err
	}
	if err := writeLines(filepath.Join(out, ValidationManifest), valIDs); err != nil {
		return 0, 0, err
	}
	return len(trainIDs), len(valIDs), nil
}

func writeLines(path string, lines []string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Append(err, errors.Wrap(errors.ErrCodeStorage, cerr, "close %s", path))
		}
	}()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "write %s", path)
	}
	return nil
}

func recordPath(dir, id string) string {
	return filepath.Join(dir, id+recorder.MetadataExt)
}
