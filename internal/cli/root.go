package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the domrand CLI with os.Args and returns the first command
// error.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the command context and reachable through
// loggerFromContext.
func Execute(ctx context.Context) error {
	c := New(os.Stderr, LogInfo)
	return c.Command().ExecuteContext(ctx)
}

// Command returns the root command with the persistent --verbose flag wired
// to the CLI logger.
func (c *CLI) Command() *cobra.Command {
	var verbose bool

	root := c.RootCommand()
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := LogInfo
		if verbose {
			level = LogDebug
		}
		c.SetLogLevel(level)
		cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	}
	return root
}
