package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Archive and purge old terminal attempts",
	Long: `Runs the configured retention policy: terminal attempts older than
the archive window move to the archive table, archived rows older than
the purge window are deleted. Zero windows disable each step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.MaintenanceCleanup(cfg.Maintenance())
		if err != nil {
			return err
		}
		fmt.Printf("Archived %d attempts, purged %d archived rows", stats.AttemptsArchived, stats.AttemptsPurged)
		if stats.DatabaseVacuumed {
			fmt.Print(", database vacuumed")
		}
		fmt.Println()
		return nil
	},
}
