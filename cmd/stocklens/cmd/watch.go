package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"StockLens/internal/report"
)

var watchUser string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the watchlist used by the cache warmer",
}

var watchAddCmd = &cobra.Command{
	Use:   "add SYMBOL...",
	Short: "Add symbols to the watchlist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWatchlist(cmd, func(a *app, user string) error {
			for _, sym := range args {
				if err := a.store.AddToWatchlist(cmd.Context(), user, sym); err != nil {
					return err
				}
			}
			return printWatchlist(cmd, a, user)
		})
	},
}

var watchRmCmd = &cobra.Command{
	Use:     "rm SYMBOL...",
	Aliases: []string{"remove"},
	Short:   "Remove symbols from the watchlist",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWatchlist(cmd, func(a *app, user string) error {
			for _, sym := range args {
				if err := a.store.RemoveFromWatchlist(cmd.Context(), user, sym); err != nil {
					return err
				}
			}
			return printWatchlist(cmd, a, user)
		})
	},
}

var watchLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List the watchlist",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWatchlist(cmd, func(a *app, user string) error {
			return printWatchlist(cmd, a, user)
		})
	},
}

func init() {
	watchCmd.PersistentFlags().StringVarP(&watchUser, "user", "u", "", "watchlist owner email (default warm.user)")
	watchCmd.AddCommand(watchAddCmd, watchRmCmd, watchLsCmd)
}

func withWatchlist(cmd *cobra.Command, fn func(a *app, user string) error) error {
	user := watchUser
	if user == "" {
		user = cfg.Warm.User
	}
	if user == "" {
		return fmt.Errorf("no user: pass --user or set warm.user")
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, user)
}

func printWatchlist(cmd *cobra.Command, a *app, user string) error {
	list, err := a.store.Watchlist(cmd.Context(), user)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), report.FormatWatchlist(user, list))
	return nil
}
