package episode

import (
	"context"
	"math/rand/v2"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/domrand/pkg/lighting"
	"github.com/matzehuels/domrand/pkg/placement"
	"github.com/matzehuels/domrand/pkg/pose"
	"github.com/matzehuels/domrand/pkg/recorder"
	"github.com/matzehuels/domrand/pkg/scene"
	"github.com/matzehuels/domrand/pkg/texture"
)

// SceneNames are the scene objects an Episode addresses by name.
type SceneNames struct {
	Camera    string
	CameraRef string
	Sensor    string
	Plate     string
	Objects   []string
}

// DefaultSceneNames matches the tabletop pick scene.
func DefaultSceneNames() SceneNames {
	return SceneNames{
		Camera:    "Camera",
		CameraRef: "UR5",
		Sensor:    "Camera",
		Plate:     "plate",
		Objects:   []string{"obj0", "obj1", "obj2", "obj3", "obj4"},
	}
}

// LightCounts is the number of lights per category in the scene.
type LightCounts struct {
	Directional, Spot, Omni int
}

// Setup describes everything Build needs besides the simulator.
type Setup struct {
	Names     SceneNames
	Lights    LightCounts
	Lighting  lighting.Options
	Placement placement.Options
	Texture   texture.Options
	Camera    pose.Bounds
	// PlateJitter enables the plate Jitterer with bounds Plate.
	PlateJitter bool
	Plate       pose.Bounds
	Surfaces    []string
}

// DefaultSetup returns the collector's defaults for textures in textureDir.
func DefaultSetup(textureDir string) Setup {
	return Setup{
		Names:       DefaultSceneNames(),
		Lights:      LightCounts{4, 4, 4},
		Lighting:    lighting.DefaultOptions(),
		Placement:   placement.DefaultOptions(),
		Texture:     texture.DefaultOptions(textureDir),
		Camera:      pose.CameraBounds,
		PlateJitter: true,
		Plate:       pose.PlateBounds,
		Surfaces:    DefaultSurfaces,
	}
}

// Build resolves the scene handles and wires every component. All
// components draw from rng.
func Build(ctx context.Context, ctl scene.Control, s Setup, rng *rand.Rand, rec *recorder.Recorder, logger *log.Logger) (*Episode, error) {
	n := s.Names
	camRef, err := ctl.ObjectHandle(ctx, n.CameraRef)
	if err != nil {
		return nil, err
	}
	cam, err := ctl.ObjectHandle(ctx, n.Camera)
	if err != nil {
		return nil, err
	}
	sensor := cam
	if n.Sensor != n.Camera {
		if sensor, err = ctl.ObjectHandle(ctx, n.Sensor); err != nil {
			return nil, err
		}
	}
	plate, err := ctl.ObjectHandle(ctx, n.Plate)
	if err != nil {
		return nil, err
	}
	objects, err := scene.Handles(ctx, ctl, n.Objects)
	if err != nil {
		return nil, err
	}

	var c Components
	c.Recorder = rec
	if c.Camera, err = pose.New(ctx, ctl, cam, camRef, s.Camera, rng); err != nil {
		return nil, err
	}
	if s.PlateJitter {
		if c.Plate, err = pose.New(ctx, ctl, plate, scene.World, s.Plate, rng); err != nil {
			return nil, err
		}
	}
	bank, err := lighting.ResolveBank(ctx, ctl, s.Lights.Directional, s.Lights.Spot, s.Lights.Omni)
	if err != nil {
		return nil, err
	}
	if c.Lights, err = lighting.New(ctl, bank, rng, s.Lighting); err != nil {
		return nil, err
	}
	if c.Placer, err = placement.New(ctl, objects, plate, rng, s.Placement); err != nil {
		return nil, err
	}
	if c.Textures, err = texture.New(ctl, rng, s.Texture); err != nil {
		return nil, err
	}
	return New(ctl, sensor, c, s.Surfaces, logger)
}
