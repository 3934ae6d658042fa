package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/funtechnologywith-source/skew-hunter/internal/engine"
)

func newOrphanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphan",
		Short: "Inspect and resolve a crashed session's open trade",
		Long: `An open trade left behind by a crashed process is held as an orphan.
Until it is resolved the engine manages nothing and takes no entries.

  resume     adopt the trade with its stop state intact
  liquidate  close it now at the current market premium
  discard    drop the record without touching the broker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showOrphan(app)
		},
	}

	cmd.AddCommand(newOrphanActionCmd(app, engine.OrphanResume, "resume", "Adopt the orphan back into the engine"))
	cmd.AddCommand(newOrphanActionCmd(app, engine.OrphanLiquidate, "liquidate", "Close the orphan at the current premium"))
	cmd.AddCommand(newOrphanActionCmd(app, engine.OrphanDiscard, "discard", "Drop the orphan record, leaving any broker position"))
	return cmd
}

func showOrphan(app *App) error {
	rt, err := buildRuntime(app, true)
	if err != nil {
		return err
	}
	defer rt.close()

	t := rt.engine.Orphan()
	if t == nil {
		fmt.Println("No orphan trade pending.")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("Orphan trade #%d\n", t.ID)
	fmt.Printf("  instrument  %s\n", t.Instrument)
	fmt.Printf("  side        %s %d\n", t.Side, t.Strike)
	fmt.Printf("  entry       %.2f @ %s\n", t.EntryPrice, t.EntryTime.Format("15:04:05"))
	fmt.Printf("  qty         %d\n", t.EffectiveQty())
	fmt.Printf("  last mark   %.2f\n", t.CurrentLTP)
	fmt.Printf("  stop        %.2f (trailing %v)\n", t.CurrentStop, t.TrailingActive)
	fmt.Printf("  regime      %s (VIX %.1f)\n", t.Regime, t.EntryVIX)
	fmt.Printf("  channel     %s\n", t.Channel)
	fmt.Println()
	fmt.Println("Resolve with: skewhunter orphan resume|liquidate|discard")
	return nil
}

func newOrphanActionCmd(app *App, action engine.OrphanAction, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(app, true)
			if err != nil {
				return err
			}
			defer rt.close()

			if rt.engine.Orphan() == nil {
				fmt.Println("No orphan trade pending.")
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if action == engine.OrphanLiquidate {
				// Liquidation needs a live premium for the mark.
				rt.market.DetectExpiry(ctx, app.Config.Expiry)
				if err := rt.market.Refresh(ctx); err != nil {
					app.Logger.Warn().Err(err).Msg("Market refresh failed, using last saved mark")
				}
			}

			if err := rt.engine.ResolveOrphan(ctx, action); err != nil {
				return err
			}
			fmt.Printf("Orphan resolved: %s.\n", use)
			return nil
		},
	}
}
