package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"trendseer/internal/app"
	"trendseer/internal/memory"
)

func newMemoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "Inspect, export and restore user memories",
	}
	cmd.AddCommand(
		newMemoriesSearchCmd(),
		newMemoriesProfileCmd(),
		newMemoriesExportCmd(),
		newMemoriesImportCmd(),
	)
	return cmd
}

func newMemoriesSearchCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "search <user-id> <query>",
		Short: "Semantic search over one user's memories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if limit <= 0 {
					limit = a.Config.MaxMemories
				}
				matches := a.Memory.SearchSimilarMemories(ctx, args[0], args[1], limit)
				out := cmd.OutOrStdout()
				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(matches)
				}
				if len(matches) == 0 {
					fmt.Fprintln(out, "no relevant memories")
					return nil
				}
				for _, m := range matches {
					body, _ := json.Marshal(m.Content)
					fmt.Fprintf(out, "[%.2f] %s\n", m.Similarity, body)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max results (defaults to MAX_MEMORIES)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	return cmd
}

func newMemoriesProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <user-id>",
		Short: "Print the consolidated profile of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Memory.Profile(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			})
		},
	}
}

func newMemoriesExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <user-id>",
		Short: "Write a user's memories to a parquet file",
		Long: `Write a user's memories to a parquet file. Without --out the file is a new
snapshot under <DATA_DIR>/archive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				memories, err := a.Memory.Memories(ctx, args[0])
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					archive, err := memory.NewArchive(filepath.Join(a.Config.DataDir, "archive"))
					if err != nil {
						return err
					}
					if path, err = archive.Snapshot(args[0], memories); err != nil {
						return err
					}
				} else if err := memory.WriteFile(path, memories); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d memories to %s\n", len(memories), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}

func newMemoriesImportCmd() *cobra.Command {
	var latest string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Restore memories from a parquet export",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && latest == "" {
				return fmt.Errorf("a file or --latest <user-id> is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				path := ""
				if len(args) == 1 {
					path = args[0]
				} else {
					archive, err := memory.NewArchive(filepath.Join(a.Config.DataDir, "archive"))
					if err != nil {
						return err
					}
					if path, err = archive.Latest(latest); err != nil {
						return err
					}
					if path == "" {
						return fmt.Errorf("no snapshot for user %q", latest)
					}
				}
				memories, err := memory.ReadFile(path)
				if err != nil {
					return err
				}
				n, err := a.Memory.Restore(ctx, memories)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %d memories from %s\n", n, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&latest, "latest", "", "restore the newest snapshot of this user")
	return cmd
}
