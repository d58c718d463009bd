package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fractionalquest/voicegraph/internal/graph"
)

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the durable store and the fast-path graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ok := true

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				fmt.Printf("durable store: FAIL (%v)\n", err)
				ok = false
			} else {
				fmt.Println("durable store: ok")
				_ = st.Close()
			}

			if !cfg.Neo4j.Enabled {
				fmt.Println("fast-path graph: disabled")
			} else {
				w, gerr := graph.NewNeo4jWriter(cmd.Context(), cfg.Neo4j.URI, cfg.Neo4j.Username,
					cfg.Neo4j.Password, cfg.Neo4j.Database, logger)
				if gerr != nil {
					// Degraded, not fatal: the pipeline runs without the cache.
					fmt.Printf("fast-path graph: unavailable (%v)\n", gerr)
				} else {
					fmt.Println("fast-path graph: ok")
					_ = w.Close(context.Background())
				}
			}

			if !ok {
				return errors.New("health check failed")
			}
			return nil
		},
	}
	return cmd
}
