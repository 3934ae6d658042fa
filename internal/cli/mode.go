package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
)

func newModeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mode [STRICT|BALANCED|RELAXED|next]",
		Short: "Show or switch the risk-threshold mode",
		Long: `Without an argument, prints the active mode. With a mode name the
config is rewritten to use it; "next" rotates
STRICT -> BALANCED -> RELAXED -> STRICT. A running engine picks the
change up on its next start.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current := app.Config.ActiveMode
			if len(args) == 0 {
				fmt.Printf("Active mode: %s\n", current)
				return nil
			}

			var next string
			switch strings.ToUpper(args[0]) {
			case "NEXT":
				next = nextMode(current)
			case config.ModeStrict, config.ModeBalanced, config.ModeRelaxed:
				next = strings.ToUpper(args[0])
			default:
				return fmt.Errorf("unknown mode %q", args[0])
			}

			configDir, _ := cmd.Flags().GetString("config")
			if err := config.SaveActiveMode(configDir, next); err != nil {
				return err
			}
			fmt.Printf("Mode: %s -> %s\n", current, next)
			return nil
		},
	}
}

func nextMode(current string) string {
	switch current {
	case config.ModeStrict:
		return config.ModeBalanced
	case config.ModeBalanced:
		return config.ModeRelaxed
	default:
		return config.ModeStrict
	}
}
