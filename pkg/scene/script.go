package scene

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
)

// ScriptArgs is the generic argument/return shape of a script call.
type ScriptArgs struct {
	Ints    []int     `json:"ints"`
	Floats  []float64 `json:"floats"`
	Strings []string  `json:"strings"`
	Buffer  []byte    `json:"buffer"`
}

// APIScript is the scene object carrying the helper script.
const APIScript = "RemotePyApi"

// Script functions implemented by the helper script.
const (
	FnSetLights     = "pySetLights"
	FnRotateObject  = "pyObjRotation"
	FnCreateTexture = "pyCreateTexture"
	FnSetTexture    = "pySetTexture"
	FnSetColor      = "pySetColor"
	FnRemoveObject  = "pyRemoveObj"
)

// Light switch values sent as the first int of FnSetLights.
const (
	lightsOff = 0
	lightsOn  = 1
)

// Color is an RGB triple with components in [0, 1].
type Color struct {
	R, G, B float64
}

// Gray returns a color with all three components set to v.
func Gray(v float64) Color { return Color{v, v, v} }

// LightsOff switches the given lights off.
//
//	ints:   [0, h0, h1, ...]
func LightsOff(ctx context.Context, c Control, lights []Handle) error {
	in := ScriptArgs{Ints: append([]int{lightsOff}, handleInts(lights)...)}
	_, err := c.CallScript(ctx, APIScript, FnSetLights, in)
	return err
}

// LightsOn switches lights on, one color per light.
//
//	ints:   [1, h0, h1, ...]
//	floats: [r0, g0, b0, r1, g1, b1, ...]
func LightsOn(ctx context.Context, c Control, lights []Handle, colors []Color) error {
	if len(lights) != len(colors) {
		return fmt.Errorf("lights on: %d handles, %d colors", len(lights), len(colors))
	}
	in := ScriptArgs{
		Ints:   append([]int{lightsOn}, handleInts(lights)...),
		Floats: make([]float64, 0, 3*len(colors)),
	}
	for _, col := range colors {
		in.Floats = append(in.Floats, col.R, col.G, col.B)
	}
	_, err := c.CallScript(ctx, APIScript, FnSetLights, in)
	return err
}

// RotateObject rotates h by radians about a world axis ("x", "y" or "z").
//
//	ints: [h]  floats: [radians]  strings: [axis]
func RotateObject(ctx context.Context, c Control, h Handle, radians float64, axis string) error {
	in := ScriptArgs{
		Ints:    []int{int(h)},
		Floats:  []float64{radians},
		Strings: []string{axis},
	}
	_, err := c.CallScript(ctx, APIScript, FnRotateObject, in)
	return err
}

// Texture is a texture created in the simulator and the shape that carries
// it. Removing the carrier frees the texture.
type Texture struct {
	ID      int
	Carrier Handle
}

// CreateTexture asks the simulator to load an image file as a texture.
// ok is false when the simulator rejected the file (it answers -1).
//
//	ints: [options, width, height]  strings: [path]
//	out ints: [textureID, carrierHandle]  (carrier may be omitted)
func CreateTexture(ctx context.Context, c Control, path string, options, width, height int) (tex Texture, ok bool, err error) {
	in := ScriptArgs{
		Ints:    []int{options, width, height},
		Strings: []string{path},
	}
	out, err := c.CallScript(ctx, APIScript, FnCreateTexture, in)
	if err != nil {
		return Texture{}, false, err
	}
	if len(out.Ints) == 0 || out.Ints[0] < 0 {
		return Texture{}, false, nil
	}
	tex = Texture{ID: out.Ints[0], Carrier: Invalid}
	if len(out.Ints) > 1 {
		tex.Carrier = Handle(out.Ints[1])
	}
	return tex, true, nil
}

// TextureMapping describes how a texture is laid onto a surface.
type TextureMapping struct {
	Repeat      int       // tiling/mapping mode, 0..15
	Orientation [3]int    // degrees per axis
	Offset      r3.Vector // texture-space offset
}

// SetTexture binds texture id to surface h.
//
//	ints:   [h, id, repeat, ox, oy, oz]
//	floats: [dx, dy, dz]
func SetTexture(ctx context.Context, c Control, h Handle, id int, m TextureMapping) error {
	in := ScriptArgs{
		Ints:   []int{int(h), id, m.Repeat, m.Orientation[0], m.Orientation[1], m.Orientation[2]},
		Floats: []float64{m.Offset.X, m.Offset.Y, m.Offset.Z},
	}
	_, err := c.CallScript(ctx, APIScript, FnSetTexture, in)
	return err
}

// SetColor sets the diffuse color and opacity (alpha in [0, 1]) of h.
//
//	ints: [h]  floats: [r, g, b, alpha]
func SetColor(ctx context.Context, c Control, h Handle, col Color, alpha float64) error {
	in := ScriptArgs{
		Ints:   []int{int(h)},
		Floats: []float64{col.R, col.G, col.B, alpha},
	}
	_, err := c.CallScript(ctx, APIScript, FnSetColor, in)
	return err
}

// RemoveObject deletes h from the scene.
//
//	ints: [h]
func RemoveObject(ctx context.Context, c Control, h Handle) error {
	_, err := c.CallScript(ctx, APIScript, FnRemoveObject, ScriptArgs{Ints: []int{int(h)}})
	return err
}

func handleInts(hs []Handle) []int {
	out := make([]int, len(hs))
	for i, h := range hs {
		out[i] = int(h)
	}
	return out
}
