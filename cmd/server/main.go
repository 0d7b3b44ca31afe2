// Package main is the entry point for the birthday reminder service.
//
// The binary has three commands:
//
//	server [serve]          run the HTTP API and the notification sweeper
//	server sweep [--date]   run one notification sweep and exit
//	server import <file>    import a legacy plaintext birthday database
//
// Configuration comes from the environment (see internal/config), with an
// optional .env file loaded first.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/birthday-reminder/internal/config"
	"github.com/sakif/birthday-reminder/internal/logging"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Birthday reminder service",
	Long: `Keeps track of users' birthdays, lets users subscribe to each other,
and sends congratulations and reminders when a birthday comes around.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.AddCommand(serveCmd, sweepCmd, importCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger. The returned closer
// flushes the log file, if any.
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closer, err := logging.New(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return cfg, logger, closer, nil
}
