package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tender-ingest/pkg/logger"
)

func scheduleCommand() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the per-platform cron schedules until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer d.close(cmd.Context())

			s, err := d.scheduler(ctx)
			if err != nil {
				return err
			}
			if err := s.Start(ctx); err != nil {
				return err
			}

			if runNow {
				report := s.RunCrawl(ctx, nil, nil)
				renderReport(cmd.OutOrStdout(), report)
			}

			<-ctx.Done()
			d.log.Info("Shutdown requested, waiting for running crawls")
			s.Stop()

			for _, st := range s.Status() {
				if st.LastRun != nil {
					d.log.Info("Last run",
						logger.String("platform", string(st.Site)),
						logger.Int("fetched", st.LastRun.Fetched),
						logger.String("error", st.LastRun.Error))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "crawl every platform once before waiting for the schedules")
	return cmd
}
