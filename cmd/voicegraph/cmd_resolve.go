package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fractionalquest/voicegraph/internal/models"
)

func resolveCmd() *cobra.Command {
	var deny bool

	cmd := &cobra.Command{
		Use:   "resolve <confirmation-id>",
		Short: "Approve or deny a pending confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("resolve: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			fastPath := newFastPath(cmd.Context(), logger)
			defer func() { _ = fastPath.Close(context.Background()) }()

			orch, err := newOrchestrator(st, fastPath, logger)
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}

			decision := models.DecisionApprove
			if deny {
				decision = models.DecisionDeny
			}

			rec, err := orch.ResolveConfirmation(cmd.Context(), args[0], decision)
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}

			if rec == nil {
				fmt.Println("Denied and discarded.")
				return nil
			}
			fmt.Printf("Committed %s/%s: %s\n", rec.Type, rec.NaturalKey, truncate(rec.Payload.Value, 60))
			return nil
		},
	}

	cmd.Flags().BoolVar(&deny, "deny", false, "deny instead of approve")
	return cmd
}
