package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func pendingCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending confirmations for a user, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("pending: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			fastPath := newFastPath(cmd.Context(), logger)
			defer func() { _ = fastPath.Close(context.Background()) }()

			orch, err := newOrchestrator(st, fastPath, logger)
			if err != nil {
				return fmt.Errorf("pending: %w", err)
			}

			pending, err := orch.ListPending(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("pending: %w", err)
			}

			if len(pending) == 0 {
				fmt.Println("No pending confirmations.")
				return nil
			}
			for _, pc := range pending {
				fmt.Printf("%s  %-20s %.2f  %s\n", pc.ID, pc.Fact.Type, pc.Fact.Confidence, truncate(pc.Reason, 70))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
