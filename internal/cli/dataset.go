package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/domrand/pkg/dataset"
)

// datasetCommand creates the dataset command group.
func (c *CLI) datasetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect and split recorded runs",
	}

	cmd.AddCommand(c.datasetStatsCommand())
	cmd.AddCommand(c.datasetSplitCommand())
	cmd.AddCommand(c.datasetVerifyCommand())

	return cmd
}

// runDirArg resolves the optional [dir] argument against the config.
func runDirArg(configPath string, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}
	return cfg.RunDir(), nil
}

// datasetStatsCommand creates the "dataset stats" subcommand.
func (c *CLI) datasetStatsCommand() *cobra.Command {
	var (
		configPath string
		ratio      float64
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "stats [dir]",
		Short: "Count samples, labels and split sizes of a run directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := runDirArg(configPath, args)
			if err != nil {
				return err
			}
			st, err := dataset.ComputeStats(dir, ratio)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			printKeyValue("directory", dir)
			printKeyValue("samples", fmt.Sprint(st.Samples))
			printKeyValue("positive", fmt.Sprintf("%d (%.1f%%)", st.Positive, 100*st.PositiveRatio()))
			printKeyValue("negative", fmt.Sprint(st.Negative))
			printKeyValue("train", fmt.Sprint(st.Train))
			printKeyValue("validation", fmt.Sprint(st.Validation))
			if st.Positive > 0 {
				printKeyValue("target x", fmt.Sprintf("%.3f .. %.3f", st.TargetMin[0], st.TargetMax[0]))
				printKeyValue("target y", fmt.Sprintf("%.3f .. %.3f", st.TargetMin[1], st.TargetMax[1]))
			}
			if st.FirstID != "" {
				printKeyValue("first", st.FirstID)
				printKeyValue("last", st.LastID)
			}
			if st.MissingImages > 0 {
				printWarning("%d samples have no image file", st.MissingImages)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file used when [dir] is omitted")
	cmd.Flags().Float64Var(&ratio, "val-ratio", dataset.DefaultValRatio, "share of samples held out for validation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stats as JSON")

	return cmd
}

// datasetSplitCommand creates the "dataset split" subcommand.
func (c *CLI) datasetSplitCommand() *cobra.Command {
	var (
		configPath string
		ratio      float64
		out        string
	)

	cmd := &cobra.Command{
		Use:   "split [dir]",
		Short: "Write train.txt and val.txt manifests for a run directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := runDirArg(configPath, args)
			if err != nil {
				return err
			}
			if out == "" {
				out = dir
			}
			train, val, err := dataset.WriteManifests(dir, out, ratio)
			if err != nil {
				return err
			}
			printSuccess("Split %d samples (%d train, %d validation)", train+val, train, val)
			printFile(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file used when [dir] is omitted")
	cmd.Flags().Float64Var(&ratio, "val-ratio", dataset.DefaultValRatio, "share of samples held out for validation")
	cmd.Flags().StringVarP(&out, "out", "o", "", "manifest directory (default: the run directory)")

	return cmd
}

// datasetVerifyCommand creates the "dataset verify" subcommand. It decodes
// every image the way training does and reports the tensor shapes.
func (c *CLI) datasetVerifyCommand() *cobra.Command {
	var (
		configPath string
		ratio      float64
		size       int
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "verify [dir]",
		Short: "Decode every sample and report the training tensor shapes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := runDirArg(configPath, args)
			if err != nil {
				return err
			}
			opts := dataset.DefaultOptions()
			opts.ValRatio = ratio
			opts.Size = size
			opts.Workers = workers

			var split *dataset.Split
			if err := spin(cmd.Context(), cmd.ErrOrStderr(), "Decoding "+dir, "Decoded "+dir, func() error {
				split, err = dataset.Load(cmd.Context(), dir, opts)
				return err
			}); err != nil {
				return err
			}

			printKeyValue("train", shape(split.Train, size))
			printKeyValue("validation", shape(split.Validation, size))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file used when [dir] is omitted")
	cmd.Flags().Float64Var(&ratio, "val-ratio", dataset.DefaultValRatio, "share of samples held out for validation")
	cmd.Flags().IntVar(&size, "size", dataset.DefaultSize, "square input resolution")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent decodes (default: GOMAXPROCS)")

	return cmd
}

// shape formats the input and label tensor shapes of samples.
func shape(samples []dataset.Sample, size int) string {
	n := len(samples)
	return fmt.Sprintf("x [%d %d %d %d]  y [%d %d]", n, dataset.Channels, size, size, n, dataset.LabelSize)
}
