// Package cmd implements the stocklens command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"StockLens/internal/collector"
	"StockLens/internal/config"
	"StockLens/internal/logger"
	"StockLens/internal/report"
	"StockLens/internal/store"
)

var (
	cfgFile string
	verbose bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stocklens",
	Short: "Cached daily price series and company metadata",
	Long: `StockLens serves daily OHLCV series from a local store and falls back to
the market data provider on a miss, writing fetched bars back.

Commands:
    series   SYMBOL    - price series with 20/50/200-day moving averages
    info     SYMBOL    - company metadata and key statistics
    export   SYMBOL    - write a series to csv, json or parquet
    watch    add|rm|ls - manage the watchlist
    warm               - keep watchlist series warm on a cron schedule
    migrate            - create the database schema
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		var f *failure
		if errors.As(err, &f) {
			fmt.Fprintln(os.Stderr, f.Error())
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $CONFIG_PATH or configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(seriesCmd, infoCmd, exportCmd, watchCmd, warmCmd, migrateCmd)
}

func initConfig() error {
	path := cfgFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		c.Log.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := logger.Init(c.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg = c
	return nil
}

// app bundles the components a command works with.
type app struct {
	store  store.Store
	series *collector.Collector
	info   *collector.InfoFetcher
}

func openApp(ctx context.Context) (*app, error) {
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	fetcher := collector.NewFetcher(cfg.Provider)
	log.Debug().Str("driver", cfg.Database.Driver).Str("provider", fetcher.Name()).Msg("Components ready")

	return &app{
		store:  st,
		series: collector.NewCollector(st, fetcher, cfg.Fetch),
		info:   collector.NewInfoFetcher(fetcher, cfg.Fetch),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Close store")
	}
}

// failure is a request error shown to the user with the generic symbol message.
type failure struct {
	symbol string
	err    error
}

func (f *failure) Error() string { return report.FormatFailure(f.symbol, f.err) }
func (f *failure) Unwrap() error { return f.err }
