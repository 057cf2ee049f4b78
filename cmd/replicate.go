package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tender-ingest/pkg/db"
	"tender-ingest/pkg/replication"
)

func replicateCommand() *cobra.Command {
	var (
		from, to  string
		batchSize int
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Copy notices and watermarks between storage backends",
		Long: `Copy every stored notice and watermark from one storage driver to another.
Both sides use the connection settings of the storage section.

Example:
  tender-ingest replicate --from mongo --to postgres`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if from == to {
				return errors.New("--from and --to must differ")
			}

			d, err := loadDeps()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer d.close(ctx)

			srcCfg, dstCfg := d.cfg.Storage, d.cfg.Storage
			srcCfg.Driver, dstCfg.Driver = from, to

			source, err := db.Open(ctx, srcCfg)
			if err != nil {
				return fmt.Errorf("open source %s: %w", from, err)
			}
			defer source.Close(ctx)

			target, err := db.Open(ctx, dstCfg)
			if err != nil {
				return fmt.Errorf("open target %s: %w", to, err)
			}
			defer target.Close(ctx)

			r, err := replication.NewReplicator(replication.Config{
				Source:    source,
				Target:    target,
				BatchSize: batchSize,
				Workers:   workers,
				Logger:    d.log,
			})
			if err != nil {
				return err
			}

			res, err := r.Replicate(ctx)
			renderReplication(cmd.OutOrStdout(), from, to, res)
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source storage driver")
	cmd.Flags().StringVar(&to, "to", "", "target storage driver")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "notices per batch")
	cmd.Flags().IntVar(&workers, "workers", 5, "parallel batch workers")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
