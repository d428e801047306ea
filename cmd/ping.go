package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the triage service is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		client, err := a.apiClient(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to create triage client: %w", err)
		}

		ctx, cancel := requestContext(cmd.Context(), a.cfg.HTTPTimeout)
		defer cancel()
		h, err := client.Health(ctx)
		if err != nil {
			return fmt.Errorf("triage service at %s is unreachable: %w", client.BaseURL(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", client.BaseURL(), h.Status, h.Message)
		return nil
	},
}
