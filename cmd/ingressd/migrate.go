package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the webhook_events migrations for the configured driver",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, dialect, err := openPersistence(settings)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		if err := migrate(cmd.Context(), client, dialect); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", dialect)
		return nil
	},
}
