package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/archive/internal/admin"
	"github.com/JonMunkholm/archive/internal/application"
)

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record in the archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return admin.ErrNotConfirmed
			}
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				res, err := admin.ClearArchive(ctx, app.Gateway, yes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", res.Succeeded)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deleting every record")
	return cmd
}
