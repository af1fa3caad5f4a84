package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"StockLens/internal/report"
	"StockLens/internal/store"
)

var infoCmd = &cobra.Command{
	Use:   "info SYMBOL",
	Short: "Show company metadata and key statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.info.GetInfo(cmd.Context(), args[0])
		if err != nil {
			return &failure{symbol: args[0], err: err}
		}
		fmt.Fprint(cmd.OutOrStdout(), report.FormatInfo(store.NormalizeSymbol(args[0]), info))
		return nil
	},
}
