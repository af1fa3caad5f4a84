package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"StockLens/internal/scheduler"
)

var warmOnce bool

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Refresh every watchlist series on the warm.cron schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sched := scheduler.NewScheduler(ctx, a.series, a.store, cfg.Warm)

		if warmOnce {
			res, err := sched.RunNow(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "warmed %d symbols: %d fetched, %d cached, %d failed (%s)\n",
				res.Symbols, res.Fetched, res.Cached, len(res.Failures), res.Duration.Round(time.Millisecond))
			if len(res.Failures) > 0 {
				return fmt.Errorf("warm failed for %s", strings.Join(res.FailedSymbols(), ", "))
			}
			return nil
		}

		if err := sched.Register(cfg.Warm.Cron); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		log.Info().Str("cron", cfg.Warm.Cron).Msg("StockLens warmer is running. Press Ctrl+C to stop.")
		<-ctx.Done()
		log.Info().Msg("Shutdown signal received, stopping...")
		return nil
	},
}

func init() {
	warmCmd.Flags().BoolVar(&warmOnce, "once", false, "run one warm pass now and exit")
}
