package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trendseer/internal/app"
	"trendseer/internal/trends"
)

func newAnalyzeCmd() *cobra.Command {
	var industries []string
	cmd := &cobra.Command{
		Use:   "analyze <topic>",
		Short: "Run a trend analysis for a topic and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				analysis, err := a.Analyzer.Analyze(ctx, args[0], industries)
				var perr *trends.ParseError
				if errors.As(err, &perr) {
					fmt.Fprintln(cmd.ErrOrStderr(), perr.RawText)
				}
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(analysis)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&industries, "industry", "i", nil, "industries to focus the search on")
	return cmd
}

func newTrendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Trending topic tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Search the seed industries once and print the merged topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Refresher == nil {
					return fmt.Errorf("trend refresher is disabled: set TRENDS_SEED_INDUSTRIES")
				}
				snap := a.Refresher.Refresh(ctx)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			})
		},
	})
	return cmd
}
