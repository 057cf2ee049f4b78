// Package cmd implements the tender-ingest command line: crawling, scheduling,
// searching the store and moving data between storage backends.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	debug         bool
	storageDriver string

	rootCmd = &cobra.Command{
		Use:           "tender-ingest",
		Short:         "Collects public-procurement tenders and scores their healthcare relevance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (defaults and environment only when empty)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&storageDriver, "storage", "", "override storage.driver (memory, postgres, supabase, mongo)")

	rootCmd.AddCommand(
		crawlCommand(),
		scheduleCommand(),
		searchCommand(),
		statsCommand(),
		replicateCommand(),
		platformsCommand(),
	)
}
