package cli

import (
	"io"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/domrand/pkg/buildinfo"
	"github.com/matzehuels/domrand/pkg/config"
	"github.com/matzehuels/domrand/pkg/errors"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display and completions.
	appName = "domrand"

	// defaultConfigFile is read when --config is not given and the file exists.
	defaultConfigFile = "domrand.toml"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance writing logs to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "domrand collects domain-randomized training images from a robot simulator",
		Long: `domrand drives a running simulator through randomization episodes (camera and
plate jitter, lights, object placement, textures), captures one image per
episode and writes it with a JSON sidecar describing the target location.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.collectCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.datasetCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Config Helpers
// =============================================================================

// loadConfig reads path, or the defaults when path is empty and no
// domrand.toml exists in the working directory.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(defaultConfigFile)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, errors.ErrCodeNotFound) {
		return config.Default(), nil
	}
	return cfg, err
}

// newSeed returns seed, or a clock-derived seed when it is zero.
func newSeed(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	return uint64(time.Now().UnixNano())
}

// newRand returns the generator every component of a run draws from.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
}
