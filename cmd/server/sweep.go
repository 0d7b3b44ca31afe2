package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/birthday-reminder/internal/model"
	"github.com/sakif/birthday-reminder/internal/server"
	"github.com/sakif/birthday-reminder/internal/sweep"
)

var sweepDate string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one notification sweep and exit",
	Long: `Sends today's congratulations and reminders once, for use from cron.
Notices already delivered for the day are not sent again.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepDate, "date", "", "sweep as if today were this date (YYYY-MM-DD)")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	today := time.Now().In(cfg.Location)
	if sweepDate != "" {
		today, err = time.ParseInLocation(model.DateLayout, sweepDate, cfg.Location)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", sweepDate, err)
		}
	}

	store, err := server.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeper := sweep.NewSweeper(store, store, server.NewNotifier(cfg, os.Stdout, logger), logger)
	if _, err := sweeper.Run(cmd.Context(), today); err != nil {
		return err
	}
	_, err = sweeper.Prune(cmd.Context(), today)
	return err
}
