package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fractionalquest/voicegraph/internal/models"
)

// Neo4jWriter implements Writer on a Neo4j database. Nodes carry a :Fact
// label and are MERGEd by key, so writes are idempotent.
type Neo4jWriter struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jWriter connects to Neo4j and verifies connectivity.
func NewNeo4jWriter(ctx context.Context, uri, username, password, database string, logger *slog.Logger) (*Neo4jWriter, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", uri, err)
	}

	logger.Info("connected to neo4j", "uri", uri, "database", database)
	return &Neo4jWriter{driver: driver, database: database, logger: logger}, nil
}

func (w *Neo4jWriter) UpsertNode(ctx context.Context, node models.GraphNode) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: w.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		props := map[string]any{
			"key":        node.Key,
			"user_id":    node.UserID,
			"type":       string(node.Type),
			"label":      node.Label,
			"confidence": node.Confidence,
			"validated":  node.Validated,
		}
		for k, v := range node.Attrs {
			props["attr_"+k] = v
		}
		return tx.Run(ctx, `
			MERGE (n:Fact {key: $key})
			SET n = $props`,
			map[string]any{"key": node.Key, "props": props})
	})
	if err != nil {
		return fmt.Errorf("upserting graph node %s: %w", node.Key, err)
	}

	w.logger.Debug("upserted graph node", "key", node.Key, "validated", node.Validated)
	return nil
}

func (w *Neo4jWriter) UpsertEdge(ctx context.Context, edge models.GraphEdge) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: w.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Relationship properties must be scalars; attrs are flattened.
		props := map[string]any{}
		for k, v := range edge.Attrs {
			props["attr_"+k] = v
		}
		return tx.Run(ctx, `
			MATCH (a:Fact {key: $from}), (b:Fact {key: $to})
			MERGE (a)-[r:RELATES {label: $label}]->(b)
			SET r += $props`,
			map[string]any{
				"from":  edge.FromKey,
				"to":    edge.ToKey,
				"label": edge.Label,
				"props": props,
			})
	})
	if err != nil {
		return fmt.Errorf("upserting graph edge %s->%s: %w", edge.FromKey, edge.ToKey, err)
	}
	return nil
}

func (w *Neo4jWriter) DeleteNode(ctx context.Context, key string) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: w.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (n:Fact {key: $key})
			DETACH DELETE n`,
			map[string]any{"key": key})
	})
	if err != nil {
		return fmt.Errorf("deleting graph node %s: %w", key, err)
	}

	w.logger.Debug("deleted graph node", "key", key)
	return nil
}

func (w *Neo4jWriter) Close(ctx context.Context) error {
	return w.driver.Close(ctx)
}
