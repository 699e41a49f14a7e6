package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ragle/driver-recon/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "driver-recon",
	Short: "Daily driver identity reconciliation and attendance classification",
	Long: "Reconciles drivers across the equipment billing workbook and the telematics " +
		"driving-history and activity-detail exports, assigns verification tiers, and " +
		"classifies each driver's attendance for a report date.",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		cfg = c
		zap.L().Debug("config loaded",
			zap.String("profile", c.Strictness.Profile),
			zap.String("store", c.Store.Driver),
		)
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
