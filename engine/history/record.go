// Package history records completed services and odometer updates. Records
// go to an append-only JSON Lines log that doubles as the wear model's
// training set, and optionally to NATS and a Neo4j service graph.
package history

import (
	"context"
	"math"
	"time"
)

// Markers used by odometer-only records.
const (
	ActionOdometerUpdate = "ODOMETER_UPDATE"
	ComponentNone        = "N/A"
	ConditionOperational = "operational"
)

// Record is one line of the history log.
type Record struct {
	ID            string    `json:"id"`
	ReportedAt    time.Time `json:"reported_at"`
	UserHash      string    `json:"user_hash"`
	ProfileID     string    `json:"profile_id"`
	ComponentID   string    `json:"component_id"`
	Action        string    `json:"action"`
	RecommendedKm float64   `json:"recommended_km"`
	DoneKm        float64   `json:"done_km"`
	Condition     string    `json:"condition"`
	ReceivedAt    time.Time `json:"received_at"`
}

// IsOdometerUpdate reports whether r carries no maintenance.
func (r Record) IsOdometerUpdate() bool { return r.Action == ActionOdometerUpdate }

// Sink persists records.
type Sink interface {
	Append(ctx context.Context, r Record) error
}

// Recommend returns the interval multiple closest to doneKm, never less
// than one interval. Halves round to even. A non-positive interval or
// distance yields 0.
func Recommend(intervalKm, doneKm float64) float64 {
	if intervalKm <= 0 || doneKm <= 0 {
		return 0
	}
	cycle := math.RoundToEven(doneKm / intervalKm)
	if cycle < 1 {
		cycle = 1
	}
	return intervalKm * cycle
}
