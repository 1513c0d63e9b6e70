package main

import (
	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every subcommand. Flags win over the
// CRMCONNECT_* environment.
type RootOptions struct {
	StoreDriver string
	StoreDSN    string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "crmconnect",
		Short:         "HubSpot OAuth connector",
		Long:          "Runs the CRM integration endpoints and manages the transient entry store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.StoreDriver, "store", "", "transient store driver (memory|sqlite|postgres)")
	cmd.PersistentFlags().StringVar(&opts.StoreDSN, "dsn", "", "database dsn for the sqlite and postgres stores")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func (o *RootOptions) apply(settings *Settings) {
	if o == nil || settings == nil {
		return
	}
	if o.StoreDriver != "" {
		settings.Store.Driver = o.StoreDriver
	}
	if o.StoreDSN != "" {
		settings.Store.DSN = o.StoreDSN
	}
}
