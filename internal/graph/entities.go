// Package graph reads the tracked-entity graph: competitors and topics the
// user watches, stored in Neo4j alongside their links to leads.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/trigger"
)

// EntityGraph implements trigger.EntitySource over Neo4j.
type EntityGraph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New creates the entity graph client.
func New(uri, user, password string, logger *zap.Logger) (*EntityGraph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &EntityGraph{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (g *EntityGraph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (g *EntityGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// TrackEntity upserts a tracked competitor or topic for a user.
func (g *EntityGraph) TrackEntity(ctx context.Context, userID string, e trigger.TrackedEntity) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (u:User {id: $userId})
		 MERGE (e:Entity {id: $id})
		 SET e.name = $name, e.kind = $kind
		 MERGE (u)-[:TRACKS]->(e)`,
		map[string]any{
			"userId": userID,
			"id":     e.ID,
			"name":   e.Name,
			"kind":   e.Kind,
		})
	if err != nil {
		return fmt.Errorf("track entity %s: %w", e.ID, err)
	}
	return nil
}

// ListTrackedEntities returns every entity the user tracks.
func (g *EntityGraph) ListTrackedEntities(ctx context.Context, userID string) ([]trigger.TrackedEntity, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (u:User {id: $userId})-[:TRACKS]->(e:Entity)
		 RETURN e.id AS id, e.name AS name, e.kind AS kind
		 ORDER BY e.name`,
		map[string]any{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("list tracked entities: %w", err)
	}

	var entities []trigger.TrackedEntity
	for result.Next(ctx) {
		rec := result.Record()
		e := trigger.TrackedEntity{}
		if v, ok := rec.Get("id"); ok {
			e.ID, _ = v.(string)
		}
		if v, ok := rec.Get("name"); ok {
			e.Name, _ = v.(string)
		}
		if v, ok := rec.Get("kind"); ok {
			e.Kind, _ = v.(string)
		}
		entities = append(entities, e)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked entities: %w", err)
	}
	return entities, nil
}
