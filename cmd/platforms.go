package cmd

import (
	"github.com/spf13/cobra"

	"tender-ingest/pkg/sources"
)

func platformsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List the enabled platforms and how they are read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close(cmd.Context())

			registry, err := sources.Build(d.cfg, d.log)
			if err != nil {
				return err
			}

			rows := make([]platformRow, 0, len(registry.Sites()))
			for _, site := range registry.Sites() {
				a, _ := registry.Get(site)
				pc := d.cfg.Platform(site)
				rows = append(rows, platformRow{
					Site:      site,
					Source:    sources.Describe(a),
					BaseURL:   pc.BaseURL,
					KeyEnv:    pc.APIKeyEnv,
					KeySet:    pc.APIKey != "",
					Schedules: pc.Schedules,
				})
			}
			renderPlatforms(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}
