package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-upkeep/engine/catalog"
	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// CatalogSource yields the catalog in effect.
type CatalogSource interface {
	Current() *catalog.Catalog
}

// Recorder validates, enriches and stores events. The primary sink must
// accept a record for the call to succeed; secondary sinks are best effort.
type Recorder struct {
	src       CatalogSource
	resolver  catalog.Resolver
	primary   Sink
	secondary []Sink
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewRecorder creates a Recorder writing to primary and then to secondary.
func NewRecorder(src CatalogSource, primary Sink, logger *slog.Logger, secondary ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		src:       src,
		resolver:  catalog.NewResolver(),
		primary:   primary,
		secondary: secondary,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// recurringInterval looks up the component's steady-state interval. The
// profile id may be a loose spelling.
func (r *Recorder) recurringInterval(profileID, componentID string) (string, float64) {
	cat := r.src.Current()
	id, _, err := r.resolver.Resolve(cat, profileID, nil)
	if err != nil {
		return profileID, 0
	}
	p, _ := cat.Profile(id)
	if comp, ok := p.Component(componentID); ok {
		return id, comp.Schedule.Recurring
	}
	return id, 0
}

// RecordService stores a completed service with the recommended distance
// the app would have suggested.
func (r *Recorder) RecordService(ctx context.Context, rep domain.ServiceReport) (Record, error) {
	if err := domain.ValidateReport(rep); err != nil {
		return Record{}, err
	}
	action := domain.ActionReplace
	if rep.Action != "" {
		action, _ = domain.ParseAction(rep.Action)
	}
	condition := strings.TrimSpace(rep.Condition)
	if l, ok := domain.ParseWearLabel(condition); ok {
		condition = string(l)
	}

	profileID, interval := r.recurringInterval(rep.ProfileID, rep.ComponentID)
	if interval == 0 {
		r.logger.Debug("report for untracked component", "profile", rep.ProfileID, "component", rep.ComponentID)
	}

	now := r.now()
	reported := rep.ReportedAt
	if reported.IsZero() {
		reported = now
	}
	rec := Record{
		ID:            r.newID(),
		ReportedAt:    reported,
		UserHash:      rep.UserHash,
		ProfileID:     profileID,
		ComponentID:   rep.ComponentID,
		Action:        string(action),
		RecommendedKm: Recommend(interval, rep.DoneKm),
		DoneKm:        rep.DoneKm,
		Condition:     condition,
		ReceivedAt:    now,
	}
	return rec, r.store(ctx, rec)
}

// RecordOdometer stores an odometer reading without maintenance.
func (r *Recorder) RecordOdometer(ctx context.Context, u domain.OdometerUpdate) (Record, error) {
	if err := domain.ValidateOdometerUpdate(u); err != nil {
		return Record{}, err
	}
	now := r.now()
	profileID, _ := r.recurringInterval(u.ProfileID, "")
	rec := Record{
		ID:          r.newID(),
		ReportedAt:  now,
		UserHash:    u.UserHash,
		ProfileID:   profileID,
		ComponentID: ComponentNone,
		Action:      ActionOdometerUpdate,
		DoneKm:      u.OdometerKm,
		Condition:   ConditionOperational,
		ReceivedAt:  now,
	}
	return rec, r.store(ctx, rec)
}

func (r *Recorder) store(ctx context.Context, rec Record) error {
	if err := r.primary.Append(ctx, rec); err != nil {
		return fmt.Errorf("history: record %s: %w", rec.ID, err)
	}
	for _, s := range r.secondary {
		if err := s.Append(ctx, rec); err != nil {
			r.logger.Warn("secondary history sink failed", "record", rec.ID, "sink", fmt.Sprintf("%T", s), "err", err)
		}
	}
	return nil
}
