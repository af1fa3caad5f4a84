package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"StockLens/internal/export"
)

var (
	exportPeriod string
	exportFormat string
	exportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export SYMBOL...",
	Short: "Write series with moving averages to csv, json or parquet files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		saver, err := export.NewSaver(exportFormat)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(exportDir, 0755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		for _, symbol := range args {
			series, err := a.series.GetSeries(cmd.Context(), symbol, exportPeriod)
			if err != nil {
				return &failure{symbol: symbol, err: err}
			}
			path, err := export.WriteSeries(exportDir, series, saver)
			if err != nil {
				return err
			}
			log.Info().Str("symbol", series.Symbol).Int("bars", series.Len()).Str("path", path).Msg("Exported series")
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportPeriod, "period", "p", "1y", "lookback: 1mo, 3mo, 6mo, 1y, 2y, 5y")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv, json or parquet")
	exportCmd.Flags().StringVarP(&exportDir, "dir", "o", "exports", "output directory")
}
