package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func rebuildCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild a user's fast-path graph from the store of record",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("rebuild: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			fastPath := newFastPath(cmd.Context(), logger)
			defer func() { _ = fastPath.Close(context.Background()) }()

			orch, err := newOrchestrator(st, fastPath, logger)
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}

			n, err := orch.RebuildGraph(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}

			fmt.Printf("Rebuilt %d node(s).\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
