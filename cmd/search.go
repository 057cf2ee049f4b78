package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"tender-ingest/pkg/db"
	"tender-ingest/pkg/domain"
)

func searchCommand() *cobra.Command {
	var (
		q        db.SearchQuery
		platform string
		relevant bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search stored notices, newest first",
		Long: `Search stored notices by keyword, country, platform and relevance.

Examples:
  # Notices mentioning PCR
  tender-ingest search -q PCR

  # Relevant German notices
  tender-ingest search --country DE --relevant`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if platform != "" {
				site, err := domain.ParseSourceSite(platform)
				if err != nil {
					return err
				}
				q.Site = site
			}
			q.Country = strings.ToUpper(q.Country)

			d, err := loadDeps()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer d.close(ctx)

			if relevant && q.MinScore < d.cfg.Relevance.Threshold {
				q.MinScore = d.cfg.Relevance.Threshold
			}

			store, err := d.openStore(ctx)
			if err != nil {
				return err
			}
			notices, err := store.Search(ctx, q)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), notices)
			}
			renderNotices(cmd.OutOrStdout(), notices)
			return nil
		},
	}

	cmd.Flags().StringVarP(&q.Keyword, "query", "q", "", "keyword matched against title and description")
	cmd.Flags().StringVar(&q.Country, "country", "", "ISO country code")
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "platform")
	cmd.Flags().Float64Var(&q.MinScore, "min-score", 0, "minimum healthcare relevance score")
	cmd.Flags().BoolVar(&relevant, "relevant", false, "only notices at or above the configured relevance threshold")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", db.DefaultSearchLimit, "maximum number of results")
	cmd.Flags().BoolVar(&q.IncludePlaceholder, "include-placeholder", false, "include placeholder records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print notices as JSON")
	return cmd
}
