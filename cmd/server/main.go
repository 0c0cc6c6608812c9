package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wastewatch",
		Short: "Citizen environmental report engagement and triage service",
		Long: `wastewatch serves the citizen report API: filing, voting and discussion
for residents, triage and official responses for municipality staff.
Configuration comes from the environment (and .env outside production).`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(MigrateCmd())
	rootCmd.AddCommand(StatsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
