// Package config loads collector settings from TOML.
//
// A file only needs the keys it changes; Load decodes over [Default] and
// validates the result:
//
//	[sim]
//	url = "http://10.0.0.7:19997"
//
//	[run]
//	episodes = 20000
//	seed = 42
//
//	[index]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
package config

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/geo/r3"

	"github.com/matzehuels/domrand/pkg/buildinfo"
	"github.com/matzehuels/domrand/pkg/episode"
	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/index"
	"github.com/matzehuels/domrand/pkg/placement"
	"github.com/matzehuels/domrand/pkg/pose"
	"github.com/matzehuels/domrand/pkg/simclient"
	"github.com/matzehuels/domrand/pkg/texture"
)

// Config is the complete collector configuration.
type Config struct {
	Sim       Sim       `toml:"sim"`
	Run       Run       `toml:"run"`
	Index     Index     `toml:"index"`
	Placement Placement `toml:"placement"`
	Lighting  Lighting  `toml:"lighting"`
	Texture   Texture   `toml:"texture"`
	Jitter    Jitter    `toml:"jitter"`
	Server    Server    `toml:"server"`
}

// Sim locates the simulator and the scene it should load.
type Sim struct {
	URL       string   `toml:"url"`
	Timeout   Duration `toml:"timeout"`
	SceneDir  string   `toml:"scene_dir"`
	SceneFile string   `toml:"scene_file"`
	// SkipLoad keeps whatever scene the simulator already has open.
	SkipLoad bool `toml:"skip_load"`
}

// Run controls the collection loop and the output directory.
type Run struct {
	// Episodes is the number of episodes to attempt; 0 runs until stopped.
	Episodes int `toml:"episodes"`
	// Seed seeds every random draw; 0 seeds from the clock.
	Seed                uint64 `toml:"seed"`
	OutDir              string `toml:"out_dir"`
	DatasetVersion      int    `toml:"dataset_version"`
	WarmupSteps         int    `toml:"warmup_steps"`
	MaxConsecutiveSkips int    `toml:"max_consecutive_skips"`
	JPEGQuality         int    `toml:"jpeg_quality"`
}

// Index selects the sample index backend.
type Index struct {
	Backend         string `toml:"backend"`
	RedisURL        string `toml:"redis_url"`
	RedisStream     string `toml:"redis_stream"`
	RedisMaxLen     int64  `toml:"redis_max_len"`
	MongoURI        string `toml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection"`
}

// Placement configures the object placer.
type Placement struct {
	MinObjects    int     `toml:"min_objects"`
	MaxObjects    int     `toml:"max_objects"`
	MinSeparation float64 `toml:"min_separation"`
	MaxAttempts   int     `toml:"max_attempts"`
}

// Lighting configures the light randomizer.
type Lighting struct {
	Directional   int     `toml:"directional"`
	Spot          int     `toml:"spot"`
	Omni          int     `toml:"omni"`
	Span          float64 `toml:"span"`
	MaxHeight     float64 `toml:"max_height"`
	IndependentXY bool    `toml:"independent_xy"`
}

// Texture configures the texture cycler.
type Texture struct {
	Dir      string   `toml:"dir"`
	PoolSize int      `toml:"pool_size"`
	Pattern  string   `toml:"pattern"`
	Size     int      `toml:"size"`
	Surfaces []string `toml:"surfaces"`
}

// Jitter bounds the camera and plate perturbations. Angles are in degrees.
type Jitter struct {
	CameraPosition float64 `toml:"camera_position"`
	CameraAngle    float64 `toml:"camera_angle"`
	Plate          bool    `toml:"plate"`
	PlatePosition  float64 `toml:"plate_position"`
	PlateYaw       float64 `toml:"plate_yaw"`
}

// Server configures the status server.
type Server struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the settings of the tabletop pick collector.
func Default() Config {
	setup := episode.DefaultSetup("pictures")
	return Config{
		Sim: Sim{
			URL:       "http://127.0.0.1:19997",
			SceneDir:  "scenes",
			SceneFile: "UR5_pick_env.ttt",
		},
		Run: Run{
			OutDir:              ".",
			DatasetVersion:      buildinfo.DatasetVersion,
			WarmupSteps:         episode.DefaultWarmupSteps,
			MaxConsecutiveSkips: episode.DefaultCollectorOptions().MaxConsecutiveSkips,
			JPEGQuality:         95,
		},
		Index: Index{
			Backend:         index.BackendNone,
			RedisStream:     "domrand:samples",
			MongoDatabase:   "domrand",
			MongoCollection: "samples",
		},
		Placement: Placement{
			MinObjects:    setup.Placement.MinObjects,
			MaxObjects:    setup.Placement.MaxObjects,
			MinSeparation: setup.Placement.MinSeparation,
			MaxAttempts:   setup.Placement.MaxAttempts,
		},
		Lighting: Lighting{
			Directional:   setup.Lights.Directional,
			Spot:          setup.Lights.Spot,
			Omni:          setup.Lights.Omni,
			Span:          setup.Lighting.Span,
			MaxHeight:     setup.Lighting.MaxHeight,
			IndependentXY: setup.Lighting.IndependentXY,
		},
		Texture: Texture{
			Dir:      setup.Texture.Dir,
			PoolSize: setup.Texture.PoolSize,
			Pattern:  setup.Texture.Pattern,
			Size:     setup.Texture.Width,
			Surfaces: append([]string(nil), setup.Surfaces...),
		},
		Jitter: Jitter{
			CameraPosition: pose.CameraBounds.Position.X,
			CameraAngle:    degrees(pose.CameraBounds.Orientation.X),
			Plate:          true,
			PlatePosition:  pose.PlateBounds.Position.X,
			PlateYaw:       degrees(pose.PlateBounds.Orientation.Z),
		},
		Server: Server{Addr: "127.0.0.1:8080"},
	}
}

func degrees(rad float64) float64 { return math.Round(rad*180/math.Pi*1e9) / 1e9 }

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, errors.New(errors.ErrCodeNotFound, "config file %s does not exist", path)
		}
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return cfg, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown key %q", path, undec[0].String())
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeInvalidConfig, format, args...)
	}
	switch {
	case c.Sim.URL == "":
		return bad("sim.url is required")
	case !c.Sim.SkipLoad && c.Sim.SceneFile == "":
		return bad("sim.scene_file is required unless sim.skip_load is set")
	case c.Sim.Timeout.Duration < 0:
		return bad("sim.timeout must not be negative")
	case c.Run.Episodes < 0:
		return bad("run.episodes must not be negative")
	case c.Run.DatasetVersion < 0:
		return bad("run.dataset_version must not be negative")
	case c.Run.WarmupSteps < 0:
		return bad("run.warmup_steps must not be negative")
	case c.Run.MaxConsecutiveSkips < 0:
		return bad("run.max_consecutive_skips must not be negative")
	case c.Run.JPEGQuality < 1 || c.Run.JPEGQuality > 100:
		return bad("run.jpeg_quality must be in [1, 100], got %d", c.Run.JPEGQuality)
	case c.Texture.Dir == "":
		return bad("texture.dir is required")
	case c.Texture.Size <= 0:
		return bad("texture.size must be positive")
	case len(c.Texture.Surfaces) == 0:
		return bad("texture.surfaces must not be empty")
	case c.Jitter.CameraPosition < 0 || c.Jitter.CameraAngle < 0 || c.Jitter.PlatePosition < 0 || c.Jitter.PlateYaw < 0:
		return bad("jitter bounds must not be negative")
	}
	switch c.Index.Backend {
	case "", index.BackendNone, index.BackendFile:
	case index.BackendRedis:
		if c.Index.RedisURL == "" {
			return bad("index.redis_url is required for the redis backend")
		}
	case index.BackendMongo:
		if c.Index.MongoURI == "" {
			return bad("index.mongo_uri is required for the mongo backend")
		}
	default:
		return bad("unknown index.backend %q", c.Index.Backend)
	}
	p := c.Placement
	switch {
	case p.MinObjects < 1:
		return bad("placement.min_objects must be >= 1")
	case p.MaxObjects < 0 || p.MaxObjects > placement.Blocks:
		return bad("placement.max_objects must be in [0, %d]", placement.Blocks)
	case p.MaxObjects > 0 && p.MinObjects > p.MaxObjects:
		return bad("placement.min_objects exceeds max_objects")
	case p.MinSeparation < 0:
		return bad("placement.min_separation must not be negative")
	case p.MaxAttempts < 1:
		return bad("placement.max_attempts must be >= 1")
	case c.Texture.PoolSize < 1:
		return bad("texture.pool_size must be >= 1")
	}
	for _, name := range c.Texture.Surfaces {
		if _, ok := texture.DefaultSurfaces[name]; !ok && name != texture.TargetObjects {
			return bad("unknown texture surface %q", name)
		}
	}
	return nil
}

// ScenePath is the scene file the simulator loads.
func (c Config) ScenePath() string {
	return filepath.Join(c.Sim.SceneDir, c.Sim.SceneFile)
}

// RunDir is the output directory of this run.
func (c Config) RunDir() string {
	return filepath.Join(c.Run.OutDir, buildinfo.RunDir(c.Run.DatasetVersion))
}

// Setup converts the config into episode wiring.
func (c Config) Setup() episode.Setup {
	s := episode.DefaultSetup(c.Texture.Dir)

	s.Lights = episode.LightCounts{
		Directional: c.Lighting.Directional,
		Spot:        c.Lighting.Spot,
		Omni:        c.Lighting.Omni,
	}
	s.Lighting.Span = c.Lighting.Span
	s.Lighting.MaxHeight = c.Lighting.MaxHeight
	s.Lighting.IndependentXY = c.Lighting.IndependentXY

	s.Placement.MinObjects = c.Placement.MinObjects
	s.Placement.MaxObjects = c.Placement.MaxObjects
	s.Placement.MinSeparation = c.Placement.MinSeparation
	s.Placement.MaxAttempts = c.Placement.MaxAttempts

	s.Texture.PoolSize = c.Texture.PoolSize
	s.Texture.Pattern = c.Texture.Pattern
	s.Texture.Width, s.Texture.Height = c.Texture.Size, c.Texture.Size
	s.Surfaces = append([]string(nil), c.Texture.Surfaces...)

	cp, ca := c.Jitter.CameraPosition, c.Jitter.CameraAngle
	s.Camera = pose.Bounds{
		Position:    r3.Vector{X: cp, Y: cp, Z: cp},
		Orientation: pose.Degrees(ca, ca, ca),
	}
	s.PlateJitter = c.Jitter.Plate
	pp := c.Jitter.PlatePosition
	s.Plate = pose.Bounds{
		Position:    r3.Vector{X: pp, Y: pp},
		Orientation: pose.Degrees(0, 0, c.Jitter.PlateYaw),
	}
	return s
}

// IndexOptions converts the [index] section.
func (c Config) IndexOptions() index.Options {
	return index.Options{
		Backend:         c.Index.Backend,
		RedisURL:        c.Index.RedisURL,
		RedisStream:     c.Index.RedisStream,
		RedisMaxLen:     c.Index.RedisMaxLen,
		MongoURI:        c.Index.MongoURI,
		MongoDatabase:   c.Index.MongoDatabase,
		MongoCollection: c.Index.MongoCollection,
	}
}

// CollectorOptions converts the [run] section.
func (c Config) CollectorOptions() episode.CollectorOptions {
	o := episode.DefaultCollectorOptions()
	o.WarmupSteps = c.Run.WarmupSteps
	o.MaxEpisodes = c.Run.Episodes
	o.MaxConsecutiveSkips = c.Run.MaxConsecutiveSkips
	return o
}

// SimOptions converts the [sim] section.
func (c Config) SimOptions() simclient.Options {
	return simclient.Options{Timeout: c.Sim.Timeout.Duration}
}

// Encode writes c as TOML.
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode config")
	}
	return buf.Bytes(), nil
}
