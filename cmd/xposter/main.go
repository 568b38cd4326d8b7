package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roostrcapital/xposter/internal/config"
	"github.com/roostrcapital/xposter/internal/queue"
	"github.com/roostrcapital/xposter/internal/storage"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "xposter",
	Short: "Publish the next queued post for the current slot",
	Long: `Publish exactly one queued post through the logged-in browser profile,
then record its URL in the queue and the posted log.

With no subcommand the slot is derived from the local time:
  09-12 morning, 12-16 midday, 16-19 afternoon, 19-23 evening.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, _ := cmd.Flags().GetString("slot")
		return runPublish(cmd.Context(), slot)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().String("slot", "", "publish for this slot instead of the one derived from the clock")

	rootCmd.AddCommand(queueCmd, logCmd, runsCmd, reconcileCmd, statusCmd, serveCmd, stopCmd, configCmd)
}

// reportedError has already been printed; main only sets the exit code.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			printError("%v", err)
		}
		os.Exit(1)
	}
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// app bundles what most commands need: config, queue files and the run
// journal.
type app struct {
	cfg     config.Config
	queue   *queue.Store
	journal *storage.Store
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)

	journal, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return &app{
		cfg:     cfg,
		queue:   queue.NewStore(cfg.Queue.File, cfg.Queue.LogFile),
		journal: journal,
	}, nil
}

func (a *app) Close() {
	if err := a.journal.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
