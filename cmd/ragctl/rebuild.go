package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newRebuildCmd(opts *rootOptions) *cobra.Command {
	var (
		async  bool
		reason string
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Build a new index from the configured source and swap it in",
		Long: `Loads every record, renders and chunks the documents, embeds the chunks
and publishes the new build atomically. A failed rebuild leaves the previous
index in place.

With --async the request is handed to a rebuild worker over NATS instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if async {
				if app.Events == nil {
					return errors.New("--async needs NATS_URL")
				}
				if err := app.Events.PublishRebuildRequested(cmd.Context(), reason); err != nil {
					return err
				}
				cmd.Println("rebuild requested")
				return nil
			}

			info, err := app.IndexUC.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "queue the rebuild for a worker")
	cmd.Flags().StringVar(&reason, "reason", "ragctl", "reason recorded with an async request")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
