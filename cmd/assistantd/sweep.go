package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge expired staging copies once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		defer a.Close()

		removed, err := sweepOnce(cmd.Context(), a)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d staged files\n", removed)
		return nil
	},
}

func sweepOnce(ctx context.Context, a *app) (int, error) {
	removed, err := a.manager.Sweep(ctx)
	if err != nil {
		return removed, fmt.Errorf("sweep staging: %w", err)
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Staging sweep complete")
	}
	return removed, nil
}
