package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	var userID string
	var userKind string

	cmd := &cobra.Command{
		Use:   "process [utterance...]",
		Short: "Process a voice utterance through the sync pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("process: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			fastPath := newFastPath(cmd.Context(), logger)
			defer func() { _ = fastPath.Close(context.Background()) }()

			orch, err := newOrchestrator(st, fastPath, logger)
			if err != nil {
				return fmt.Errorf("process: %w", err)
			}

			utterance := strings.Join(args, " ")
			result, err := orch.ProcessUtterance(cmd.Context(), userID, userKind, utterance)
			if err != nil {
				return fmt.Errorf("process: %w", err)
			}

			fmt.Printf("Committed: %d  Pending: %d  Rejected: %d\n",
				len(result.Committed), len(result.PendingConfirmations), result.Rejected)
			for _, rec := range result.Committed {
				fmt.Printf("  ✓ %s/%s: %s\n", rec.Type, rec.NaturalKey, truncate(rec.Payload.Value, 60))
			}
			for _, pc := range result.PendingConfirmations {
				fmt.Printf("  ? [%s] %s - %s\n", pc.ID, truncate(pc.Fact.Payload.Value, 40), pc.Reason)
			}
			for _, e := range result.Errors {
				fmt.Printf("  ! %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID the utterance belongs to (required)")
	cmd.Flags().StringVar(&userKind, "kind", "candidate", "user kind: candidate or client")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
