// Package commands implements the trendseer-admin CLI.
package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"trendseer/internal/app"
	"trendseer/internal/config"
	"trendseer/internal/observability"
)

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trendseer-admin",
		Short: "Operate a TrendSeer deployment",
		Long: `trendseer-admin manages the TrendSeer store and talks to a running server.

Examples:
  trendseer-admin migrate
  trendseer-admin selfcheck
  trendseer-admin memories search <user-id> "ai marketing"
  trendseer-admin memories export <user-id>
  trendseer-admin analyze "creator economy"
  trendseer-admin chat --url http://localhost:8080`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newMigrateCmd(),
		newSelfCheckCmd(),
		newMemoriesCmd(),
		newAnalyzeCmd(),
		newTrendsCmd(),
		newChatCmd(),
	)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")
	return rootCmd
}

// loadConfig reads the configuration and routes logs to stderr so command
// output stays parseable.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	observability.Init(observability.LogConfig{Level: level, Verbose: cfg.LogVerbose, Output: os.Stderr})
	return cfg, nil
}

// withApp builds the service graph, runs fn and closes the graph again.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
