package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply transient store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := LoadSettings(nil)
			if err != nil {
				return err
			}
			root.apply(&settings)
			if settings.Store.Driver == "" || settings.Store.Driver == driverMemory {
				return fmt.Errorf("migrate requires the sqlite or postgres store")
			}

			client, err := openClient(cmd.Context(), settings.Store)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			if err := client.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", settings.Store.Driver)
			return nil
		},
	}
}
