package history

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

type sessionAdapter struct{ sess neo4j.SessionWithContext }

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error { return a.sess.Close(ctx) }

// Graph writes records into a service graph:
//
//	(:Rider)-[:RIDES {odometer_km}]->(:Profile)
//	(:Rider)-[:SERVICED {km, action, condition, at}]->(:Component {id, profile})
type Graph struct {
	newSession func(ctx context.Context, mode neo4j.AccessMode) runner
}

// NewGraph creates a graph sink over a driver.
func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{newSession: func(ctx context.Context, mode neo4j.AccessMode) runner {
		return &sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})}
	}}
}

const cypherService = `
MERGE (u:Rider {hash: $user})
MERGE (p:Profile {id: $profile})
MERGE (u)-[:RIDES]->(p)
MERGE (c:Component {id: $component, profile: $profile})
MERGE (p)-[:HAS]->(c)
MERGE (u)-[s:SERVICED {id: $id}]->(c)
SET s.km = $km, s.recommended_km = $recommended, s.action = $action, s.condition = $condition, s.at = $at`

const cypherOdometer = `
MERGE (u:Rider {hash: $user})
MERGE (p:Profile {id: $profile})
MERGE (u)-[r:RIDES]->(p)
SET r.odometer_km = $km, r.updated_at = $at`

const cypherHistory = `
MATCH (:Rider {hash: $user})-[s:SERVICED]->(c:Component {profile: $profile})
RETURN c.id AS component, max(s.km) AS km`

func (g *Graph) run(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) (result, func(), error) {
	sess := g.newSession(ctx, mode)
	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		sess.Close(ctx)
		return nil, nil, fmt.Errorf("history: graph: %w", err)
	}
	return res, func() { sess.Close(ctx) }, nil
}

// Append implements Sink. Appending the same record twice is a no-op.
func (g *Graph) Append(ctx context.Context, r Record) error {
	cypher := cypherService
	params := map[string]any{
		"user":        r.UserHash,
		"profile":     r.ProfileID,
		"component":   r.ComponentID,
		"id":          r.ID,
		"km":          r.DoneKm,
		"recommended": r.RecommendedKm,
		"action":      r.Action,
		"condition":   r.Condition,
		"at":          r.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.IsOdometerUpdate() {
		cypher = cypherOdometer
	}
	res, done, err := g.run(ctx, neo4j.AccessModeWrite, cypher, params)
	if err != nil {
		return err
	}
	defer done()
	if _, err := res.Consume(ctx); err != nil {
		return fmt.Errorf("history: graph append: %w", err)
	}
	return nil
}

// History rebuilds a rider's last service odometer per component.
func (g *Graph) History(ctx context.Context, userHash, profileID string) (domain.ServiceHistory, error) {
	res, done, err := g.run(ctx, neo4j.AccessModeRead, cypherHistory,
		map[string]any{"user": userHash, "profile": profileID})
	if err != nil {
		return nil, err
	}
	defer done()

	h := domain.ServiceHistory{}
	for res.Next(ctx) {
		rec := res.Record()
		comp, _ := rec.Get("component")
		km, _ := rec.Get("km")
		id, ok := comp.(string)
		if !ok {
			continue
		}
		switch v := km.(type) {
		case float64:
			h[id] = v
		case int64:
			h[id] = float64(v)
		}
	}
	if _, err := res.Consume(ctx); err != nil {
		return nil, fmt.Errorf("history: graph history: %w", err)
	}
	return h, nil
}
