package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"trendseer/internal/app"
	"trendseer/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users, memories and chat_history schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), cfg.DatabaseURL, cfg.DataDir)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.StoreBackend())
			return nil
		},
	}
}

func newSelfCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Validate store wiring without model or network calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Memory.RuntimeSelfCheck(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "memory runtime ok")
				return nil
			})
		},
	}
}
