package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tender-ingest/pkg/domain"
)

func crawlCommand() *cobra.Command {
	var (
		platforms []string
		keywords  []string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and print the report",
		Long: `Crawl the selected platforms once, starting from their watermarks, and
store new or changed notices. Watermarks of platforms that finished without a
platform-level error are advanced.

Examples:
  # Crawl every enabled platform
  tender-ingest crawl

  # Crawl two platforms with an extra search keyword
  tender-ingest crawl -p G2B -p TED -k "rapid test"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sites, err := domain.ParseSourceSites(platforms)
			if err != nil {
				return err
			}

			d, err := loadDeps()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer d.close(ctx)

			s, err := d.scheduler(ctx)
			if err != nil {
				return err
			}
			report := s.RunCrawl(ctx, sites, keywords)

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), report)
			}

			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d platforms failed: %v", len(failed), len(report.Platforms), failed)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "platform to crawl (repeatable, default all enabled)")
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "extra search keyword (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
