package cmd

import (
	"github.com/spf13/cobra"
)

func statsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the stored notices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer d.close(ctx)

			store, err := d.openStore(ctx)
			if err != nil {
				return err
			}
			stats, err := store.Stats(ctx, d.cfg.Relevance.Threshold)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}
