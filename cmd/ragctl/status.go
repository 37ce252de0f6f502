package main

import (
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted index metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			info, err := app.IndexUC.Reload(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}
