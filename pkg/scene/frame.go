package scene

import (
	"fmt"
	"image"
	"image/color"
)

// Frame is a raw vision-sensor capture: tightly packed 8-bit RGB, rows
// ordered bottom-up as the simulator renders them.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

// Validate checks that the pixel buffer matches the resolution.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame resolution %dx%d", f.Width, f.Height)
	}
	if want := f.Width * f.Height * 3; len(f.Pixels) != want {
		return fmt.Errorf("frame %dx%d: got %d bytes, want %d", f.Width, f.Height, len(f.Pixels), want)
	}
	return nil
}

// Image converts the frame to a top-down RGBA image.
func (f Frame) Image() (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := (f.Height - 1 - y) * f.Width * 3
		for x := 0; x < f.Width; x++ {
			i := src + x*3
			img.SetRGBA(x, y, color.RGBA{R: f.Pixels[i], G: f.Pixels[i+1], B: f.Pixels[i+2], A: 0xff})
		}
	}
	return img, nil
}
