package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("stats: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			fmt.Printf("Canonical records: %d\n", stats.TotalRecords)
			for rt, n := range stats.RecordsByType {
				fmt.Printf("  %-20s %d\n", rt, n)
			}
			fmt.Println("Confirmations:")
			for status, n := range stats.ConfirmationsByStatus {
				fmt.Printf("  %-20s %d\n", status, n)
			}
			return nil
		},
	}
	return cmd
}
