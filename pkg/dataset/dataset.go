// Package dataset turns a run directory into training tensors.
//
// Samples are read in id order (capture order). Sample i of n goes to the
// validation set when i <= n*ValRatio and to the training set otherwise, so
// the earliest captures are held out. Images are resized to Size x Size and
// laid out channel-major (CHW) as float32 in [0, 255]. Labels are
// [present, x, y] with x = y = 0 for negative samples.
package dataset

import (
	"context"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/recorder"
)

const (
	// DefaultSize is the square input resolution of the detector.
	DefaultSize = 224
	// DefaultValRatio is the share of samples held out for validation.
	DefaultValRatio = 0.05
	// Channels is the number of color planes per image.
	Channels = 3
	// LabelSize is the length of a label: present, x, y.
	LabelSize = 3
)

// Options configures Load.
type Options struct {
	Size     int
	ValRatio float64
	// Workers bounds concurrent image decodes; 0 means GOMAXPROCS.
	Workers int
	Filter  imaging.ResampleFilter
}

// DefaultOptions returns the detector's input settings.
func DefaultOptions() Options {
	return Options{
		Size:     DefaultSize,
		ValRatio: DefaultValRatio,
		Filter:   imaging.Lanczos,
	}
}

func (o Options) validate() error {
	if o.Size < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "image size must be positive")
	}
	if o.ValRatio < 0 || o.ValRatio > 1 {
		return errors.New(errors.ErrCodeInvalidInput, "validation ratio must be in [0, 1], got %v", o.ValRatio)
	}
	return nil
}

// Sample is one decoded training example.
type Sample struct {
	ID     string
	Pixels []float32 // Channels x Size x Size
	Label  [LabelSize]float32
}

// Split holds the two halves of a dataset.
type Split struct {
	Train      []Sample
	Validation []Sample
}

// IsValidation reports whether sample i of n is held out.
func IsValidation(i, n int, ratio float64) bool {
	return float64(i) <= float64(n)*ratio
}

// Label converts a record into [present, x, y].
func Label(rec recorder.Record) [LabelSize]float32 {
	if !rec.Positive() {
		return [LabelSize]float32{}
	}
	return [LabelSize]float32{1, float32(rec.TargetLocation[0]), float32(rec.TargetLocation[1])}
}

// Scan reads every record in dir in id order.
func Scan(dir string) ([]recorder.Record, error) {
	ids, err := recorder.List(dir)
	if err != nil {
		return nil, err
	}
	recs := make([]recorder.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := recorder.ReadRecord(recordPath(dir, id))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Load decodes every sample in dir and splits it.
func Load(ctx context.Context, dir string, opts Options) (*Split, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	recs, err := Scan(dir)
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, len(recs))
	g, ctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i, rec := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			px, err := decode(recorder.ImageFile(dir, rec), opts)
			if err != nil {
				return err
			}
			samples[i] = Sample{ID: rec.ID, Pixels: px, Label: Label(rec)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	split := &Split{}
	for i, s := range samples {
		if IsValidation(i, len(samples), opts.ValRatio) {
			split.Validation = append(split.Validation, s)
		} else {
			split.Train = append(split.Train, s)
		}
	}
	return split, nil
}

// decode loads one image, resizes it and converts it to CHW floats.
func decode(path string, opts Options) ([]float32, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "open image %s", path)
	}
	return CHW(imaging.Resize(img, opts.Size, opts.Size, opts.Filter)), nil
}

// CHW lays out an image as three planes of float32 values in [0, 255].
func CHW(img *image.NRGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, Channels*plane)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4:]
			i := y*w + x
			out[i] = float32(p[0])
			out[plane+i] = float32(p[1])
			out[2*plane+i] = float32(p[2])
		}
	}
	return out
}

// Batch flattens samples into an N x C x H x W input tensor and an N x 3
// label tensor.
func Batch(samples []Sample) (x, y []float32) {
	if len(samples) == 0 {
		return nil, nil
	}
	x = make([]float32, 0, len(samples)*len(samples[0].Pixels))
	y = make([]float32, 0, len(samples)*LabelSize)
	for _, s := range samples {
		x = append(x, s.Pixels...)
		y = append(y, s.Label[:]...)
	}
	return x, y
}
