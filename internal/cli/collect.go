package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/domrand/pkg/api"
	"github.com/matzehuels/domrand/pkg/config"
	"github.com/matzehuels/domrand/pkg/dataset"
	"github.com/matzehuels/domrand/pkg/episode"
	"github.com/matzehuels/domrand/pkg/index"
	"github.com/matzehuels/domrand/pkg/observability"
	"github.com/matzehuels/domrand/pkg/recorder"
	"github.com/matzehuels/domrand/pkg/scene"
	"github.com/matzehuels/domrand/pkg/simclient"
)

// collectLogFile receives log output while the live view owns the terminal.
const collectLogFile = "collect.log"

// collectOpts holds the flags of the collect command. Zero values leave the
// configured value in place.
type collectOpts struct {
	configPath string
	episodes   int
	seed       uint64
	outDir     string
	simURL     string
	backend    string
	serve      string
	skipLoad   bool
	tui        bool
}

// collectCommand creates the collect command.
func (c *CLI) collectCommand() *cobra.Command {
	var opts collectOpts

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run randomization episodes and record samples",
		Long: `Connect to the simulator bridge, load the scene and run randomization
episodes. Every successful episode writes <id>.jpg and <id>.json into
<out>/random_dataset_V<version>/ and adds an entry to the configured index.

Interrupting the command stops the simulation and keeps every sample
written so far.`,
		Example: `  # 1000 episodes with a fixed seed
  domrand collect --episodes 1000 --seed 42

  # Run until stopped, with a live view and status server
  domrand collect --episodes 0 --tui --serve 127.0.0.1:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, &cfg); err != nil {
				return err
			}
			return c.runCollect(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./domrand.toml when present)")
	cmd.Flags().IntVarP(&opts.episodes, "episodes", "n", 0, "number of episodes, 0 runs until interrupted")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed, 0 seeds from the clock")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "output root; samples go to <out>/random_dataset_V<version>")
	cmd.Flags().StringVar(&opts.simURL, "sim", "", "simulator bridge URL")
	cmd.Flags().StringVar(&opts.backend, "index", "", "index backend (none, file, redis, mongo)")
	cmd.Flags().StringVar(&opts.serve, "serve", "", "also serve the status API on this address")
	cmd.Flags().BoolVar(&opts.skipLoad, "skip-load", false, "keep the scene the simulator already has open")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show a live progress view")

	return cmd
}

// apply copies explicitly set flags over cfg and validates the result.
func (o collectOpts) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("episodes") {
		cfg.Run.Episodes = o.episodes
	}
	if flags.Changed("seed") {
		cfg.Run.Seed = o.seed
	}
	if flags.Changed("out") {
		cfg.Run.OutDir = o.outDir
	}
	if flags.Changed("sim") {
		cfg.Sim.URL = o.simURL
	}
	if flags.Changed("index") {
		cfg.Index.Backend = o.backend
	}
	if flags.Changed("skip-load") {
		cfg.Sim.SkipLoad = o.skipLoad
	}
	return cfg.Validate()
}

// runCollect wires the simulator client, index, recorder and episode and
// runs the collector until it finishes or ctx ends.
func (c *CLI) runCollect(ctx context.Context, cfg config.Config, opts collectOpts) (err error) {
	logger := loggerFromContext(ctx)
	runDir := cfg.RunDir()

	if opts.tui {
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(runDir, collectLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		logger = newLogger(f, logger.GetLevel())
	}

	seed := newSeed(cfg.Run.Seed)
	logger.Info("starting collection", "run", runDir, "seed", seed, "episodes", cfg.Run.Episodes)

	client, err := simclient.New(cfg.Sim.URL, cfg.SimOptions())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, client.Close()) }()

	if !cfg.Sim.SkipLoad {
		path := cfg.ScenePath()
		if err := spin(ctx, os.Stderr, "Loading "+path, "Loaded "+path, func() error {
			return client.LoadScene(ctx, path)
		}); err != nil {
			return err
		}
	}

	prog := newProgress(logger)
	idx, err := index.Open(ctx, cfg.IndexOptions(), runDir)
	if err != nil {
		return err
	}
	prog.done("opened index", "backend", cfg.Index.Backend)

	counters := observability.NewCounters()
	observability.SetEpisodeHooks(counters)
	observability.SetRecorderHooks(counters)
	observability.SetSimHooks(counters)
	defer observability.Reset()

	rec, err := recorder.New(recorder.Options{
		Dir:     runDir,
		Quality: cfg.Run.JPEGQuality,
		Index:   idx,
		Logger:  logger,
	})
	if err != nil {
		return multierr.Append(err, idx.Close())
	}
	defer func() { err = multierr.Append(err, rec.Close()) }()

	ep, err := episode.Build(ctx, client, cfg.Setup(), newRand(seed), rec, logger)
	if err != nil {
		return err
	}

	sim := scene.NewSimulation(client, false)
	defer func() {
		// The run context may already be cancelled; stopping must still reach
		// the simulator.
		err = multierr.Append(err, sim.Close(context.WithoutCancel(ctx)))
	}()
	collector := episode.NewCollector(sim, ep, cfg.CollectorOptions(), logger)

	sum, stopped, err := c.collect(ctx, collector, counters, cfg, opts, logger)
	printSummary(sum)
	printFile(runDir)
	if stopped {
		printInfo("stopped after %d episodes", sum.Episodes)
		return err
	}
	if err == nil && sum.Recorded > 0 {
		fmt.Println()
		printNextStep("Inspect the run", "domrand dataset stats "+runDir)
	}
	return err
}

// collect runs the collector alongside the optional status server and live
// view. stopped reports that the live view ended the run early.
func (c *CLI) collect(ctx context.Context, collector *episode.Collector, counters *observability.Counters, cfg config.Config, opts collectOpts, logger *log.Logger) (episode.Summary, bool, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		sum     episode.Summary
		stopped atomic.Bool
	)

	g, gctx := errgroup.WithContext(runCtx)

	if opts.serve != "" {
		srv := api.New(api.Options{
			Dir:      cfg.RunDir(),
			Stats:    counters,
			ValRatio: dataset.DefaultValRatio,
			Logger:   logger,
		})
		g.Go(func() error { return srv.ListenAndServe(gctx, opts.serve) })
	}

	var program *tea.Program
	if opts.tui {
		program = tea.NewProgram(NewCollectModel(counters, cfg.Run.Episodes, cfg.RunDir()), tea.WithContext(runCtx))
		g.Go(func() error {
			final, err := program.Run()
			if m, ok := final.(CollectModel); ok && m.Stopped {
				stopped.Store(true)
				stop()
			}
			if stderrors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		// Collection ending stops the server and the live view.
		defer stop()
		var runErr error
		sum, runErr = collector.Run(gctx)
		if program != nil {
			program.Send(collectDoneMsg{err: runErr})
		}
		if stopped.Load() && stderrors.Is(runErr, context.Canceled) && ctx.Err() == nil {
			return nil
		}
		return runErr
	})

	err := g.Wait()
	return sum, stopped.Load(), err
}
