package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/domrand/pkg/api"
	"github.com/matzehuels/domrand/pkg/dataset"
)

// serveCommand creates the serve command. It exposes a finished or running
// run directory; live counters are only available from "collect --serve".
func (c *CLI) serveCommand() *cobra.Command {
	var (
		configPath string
		dir        string
		addr       string
		ratio      float64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a run directory over HTTP",
		Long: `Serve the samples of a run directory:

  GET /healthz
  GET /v1/dataset
  GET /v1/samples?limit=N
  GET /v1/samples/{id}
  GET /v1/samples/{id}/image`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.RunDir()
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := api.New(api.Options{Dir: dir, ValRatio: ratio, Logger: loggerFromContext(cmd.Context())})
			printInfo("Serving %s on http://%s", dir, addr)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: ./domrand.toml when present)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "run directory (default: from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: from config)")
	cmd.Flags().Float64Var(&ratio, "val-ratio", dataset.DefaultValRatio, "share of samples held out for validation")

	return cmd
}
