package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newIndexCmd() *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index, or open the existing one",
		Long: `Loads, splits and embeds every PDF of the documents directory when no
index exists yet. With --rebuild the existing index is deleted first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := buildPipeline(a.cfg, a.logger, false)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Open(ctx, rebuild); err != nil {
				return fmt.Errorf("failed to initialize vector store: %w", err)
			}
			n, err := p.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Index ready: %d chunks in collection %q\n", n, a.cfg.VectorStore.Collection)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "delete the existing index first")
	return cmd
}
