package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/apps/citizenreports"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/database"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/logging"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
)

// StatsCmd returns the stats command
func StatsCmd() *cobra.Command {
	var appID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the report queue counters for one municipality",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appID == "" {
				return errors.New("--app-id is required")
			}
			cfg := config.Load()
			logging.Setup(cfg.IsProduction())

			if err := database.Connect(cfg); err != nil {
				return err
			}
			ctrl := citizenreports.NewController(database.DB, cfg, nil)
			printStats(cmd, appID, ctrl.Stats(cmd.Context(), appID))
			return nil
		},
	}

	cmd.Flags().StringVar(&appID, "app-id", "", "tenant app id")
	return cmd
}

func printStats(cmd *cobra.Command, appID string, s triage.Stats) {
	bold := color.New(color.Bold)
	cmd.Printf("%s %s\n", bold.Sprint("Reports for"), appID)
	if s.Degraded {
		cmd.Println(color.New(color.FgRed).Sprint("  storage unavailable: figures are incomplete"))
	}
	cmd.Printf("  total        %d\n", s.Total)
	cmd.Printf("  pending      %s\n", color.New(color.FgYellow).Sprint(s.Pending))
	cmd.Printf("  in progress  %s\n", color.New(color.FgBlue).Sprint(s.InProgress))
	cmd.Printf("  resolved     %s\n", color.New(color.FgGreen).Sprint(s.Resolved))
	cmd.Printf("  this month   %d (last month %d, %s)\n", s.ThisMonth, s.LastMonth, trend(s.MonthOverMonthPct))
	cmd.Printf("  avg resolution %.2fh\n", s.AvgResolutionHours)
}

func trend(pct float64) string {
	label := fmt.Sprintf("%+.2f%%", pct)
	switch {
	case pct > 0:
		return color.New(color.FgRed).Sprint(label)
	case pct < 0:
		return color.New(color.FgGreen).Sprint(label)
	}
	return label
}
