package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the wiki HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}
