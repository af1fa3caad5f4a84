package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"StockLens/internal/report"
)

var (
	seriesPeriod string
	seriesTail   int
)

var seriesCmd = &cobra.Command{
	Use:   "series SYMBOL",
	Short: "Show a daily price series with moving averages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		series, err := a.series.GetSeries(cmd.Context(), args[0], seriesPeriod)
		if err != nil {
			return &failure{symbol: args[0], err: err}
		}
		fmt.Fprint(cmd.OutOrStdout(), report.FormatSeries(series, seriesTail))
		return nil
	},
}

func init() {
	seriesCmd.Flags().StringVarP(&seriesPeriod, "period", "p", "1y", "lookback: 1mo, 3mo, 6mo, 1y, 2y, 5y")
	seriesCmd.Flags().IntVarP(&seriesTail, "tail", "n", 10, "number of most recent bars to print (0 = all)")
}
