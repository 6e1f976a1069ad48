// Package cli wires the shoppinglist commands.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/logger"
	"github.com/tphakala/shoppinglist/internal/telemetry"
)

// Version is set at link time.
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer
}

// NewRootCommand returns the shoppinglist command tree. Running the root
// command without a subcommand performs a build.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "shoppinglist",
		Short:         "Build and serve the shopping list web app",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), opts, buildFlags{})
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", conf.DefaultConfigFile, "path to the config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newBuildCommand(opts),
		newInitCommand(opts),
		newServeCommand(opts),
		newProxyCommand(opts),
	)
	return cmd
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	cmd := NewRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// load reads the config file and builds the logger.
func (o *rootOptions) load(requireFile bool) (*conf.Settings, logger.Logger, error) {
	settings, err := conf.Load(o.configPath, requireFile)
	if err != nil {
		return nil, nil, err
	}
	level := settings.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	return settings, logger.NewSlogLogger(o.stderr, logger.ParseLevel(level), nil), nil
}

// startTelemetry enables error reporting for long-running commands.
func startTelemetry(settings *conf.Settings, log logger.Logger) (func(), error) {
	return telemetry.Init(settings.Telemetry, Version, log)
}
