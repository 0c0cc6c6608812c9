package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/live"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/logging"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logging.Setup(cfg.IsProduction())

			// Migration only needs the plugin model lists.
			hub := live.NewHub(1)
			defer hub.Close()
			plugins := newPlugins(context.Background(), cfg, hub)

			if _, err := connect(cfg, plugins); err != nil {
				return err
			}
			for _, p := range plugins {
				cmd.Printf("%s %s (%d models)\n", color.New(color.FgGreen).Sprint("migrated"), p.ID(), len(p.Models()))
			}
			return nil
		},
	}
}
