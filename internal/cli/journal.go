package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/funtechnologywith-source/skew-hunter/internal/store"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

func newJournalCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Review recorded trades",
	}

	cmd.AddCommand(newJournalDaysCmd(app))
	cmd.AddCommand(newJournalDayCmd(app))
	return cmd
}

func newJournalDaysCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "days",
		Short: "Per-day summary, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := store.NewTradeJournal(app.Config.Store.JournalDB)
			if err != nil {
				return err
			}
			defer journal.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			days, err := journal.StatsByDay(ctx, limit)
			if err != nil {
				return err
			}
			if len(days) == 0 {
				fmt.Println("No trades recorded yet.")
				return nil
			}

			bold := color.New(color.Bold)
			bold.Printf("%-12s %7s %6s %12s\n", "Date", "Trades", "Wins", "P&L")
			for _, d := range days {
				fmt.Printf("%-12s %7d %6d %12s\n", d.Date, d.Trades, d.Wins, pnlString(d.TotalPnL))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 30, "number of days to show")
	return cmd
}

func newJournalDayCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "day [YYYY-MM-DD]",
		Short: "Trades for one day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := utils.NowIST().Format("2006-01-02")
			if len(args) == 1 {
				date = args[0]
			}

			journal, err := store.NewTradeJournal(app.Config.Store.JournalDB)
			if err != nil {
				return err
			}
			defer journal.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			trades, err := journal.TradesForDay(ctx, date)
			if err != nil {
				return err
			}
			if len(trades) == 0 {
				fmt.Printf("No trades on %s.\n", date)
				return nil
			}

			bold := color.New(color.Bold)
			bold.Printf("Trades on %s\n", date)
			var total float64
			for _, t := range trades {
				hold := time.Duration(t.HoldSeconds) * time.Second
				fmt.Printf("#%d %-24s %-4s qty %d  %.2f -> %.2f  %s (%s, held %s)\n",
					t.TradeID, t.Instrument, t.Side, t.Qty,
					t.EntryPrice, t.ExitPrice, pnlString(t.PnL), t.ExitReason, hold)
				total += t.PnL
			}
			fmt.Printf("\nDay total: %s over %d trades\n", pnlString(total), len(trades))
			return nil
		},
	}
}

func pnlString(v float64) string {
	s := fmt.Sprintf("%+.2f", v)
	if v > 0 {
		return color.GreenString(s)
	}
	if v < 0 {
		return color.RedString(s)
	}
	return s
}
