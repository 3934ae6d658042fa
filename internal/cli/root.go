// Package cli provides the skewhunter command-line interface.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	"github.com/funtechnologywith-source/skew-hunter/internal/logging"
)

// Version information.
const Version = "0.1.0"

// App holds dependencies shared across commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "skewhunter",
		Short: "NIFTY options skew trader",
		Long: `Skew Hunter is an intraday NIFTY options trading engine.

It scans the option chain for volume and IV-skew signals, manages a
single position with a VIX-regime trailing stop, and squares off
before the close. Execution can run off, on paper, or live through
Upstox or Dhan.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config")
			debug, _ := cmd.Flags().GetBool("debug")

			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			app.Config = cfg

			logCfg := logging.DefaultLogConfig()
			if debug {
				logCfg.Level = "debug"
				logging.SetDebugLevel()
			}
			app.Logger = logging.NewLoggerWithConfig(logCfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/skew-hunter)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newOrphanCmd(app))
	rootCmd.AddCommand(newModeCmd(app))
	rootCmd.AddCommand(newJournalCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Config loading is irrelevant here.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("skewhunter v%s\n", Version)
		},
	}
}
