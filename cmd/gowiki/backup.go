package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBackupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write one snapshot of every page to the configured blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, logger, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			res, err := app.Backup(cmd.Context())
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			logger.Info("backup written",
				zap.String("uri", res.URI),
				zap.Int("pages", res.Pages),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
