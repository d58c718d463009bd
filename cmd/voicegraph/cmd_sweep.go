package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending confirmations past their deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("sweep: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			fastPath := newFastPath(cmd.Context(), logger)
			defer func() { _ = fastPath.Close(context.Background()) }()

			orch, err := newOrchestrator(st, fastPath, logger)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			n, err := orch.SweepExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			fmt.Printf("Expired %d confirmation(s).\n", n)
			return nil
		},
	}
	return cmd
}
