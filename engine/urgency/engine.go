// Package urgency turns an odometer reading and a sparse service history into
// a ranked list of per-component maintenance diagnostics.
package urgency

import (
	"context"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/wessley-upkeep/engine/catalog"
	"github.com/WessleyAI/wessley-upkeep/engine/domain"
	"github.com/WessleyAI/wessley-upkeep/engine/tracker"
	"github.com/WessleyAI/wessley-upkeep/pkg/metrics"
)

var tracer = otel.Tracer("wessley-upkeep/urgency")

// Classifier refines a diagnostic with a wear verdict.
type Classifier interface {
	Classify(ctx context.Context, accruedKm, targetKm float64) (domain.Verdict, error)
}

// CatalogSource yields the catalog in effect. *catalog.Store implements it.
type CatalogSource interface {
	Current() *catalog.Catalog
}

// Defaults for Options.
const (
	DefaultClassifierTimeout = 800 * time.Millisecond
	DefaultMaxConcurrency    = 4
)

// Options configures an Engine.
type Options struct {
	// Classifier may be nil: every verdict is then UNAVAILABLE.
	Classifier Classifier
	// Timeout bounds each classifier call.
	Timeout time.Duration
	// MaxConcurrency bounds classifier calls in flight per request.
	MaxConcurrency int
	Logger         *slog.Logger
	Metrics        *metrics.Registry
}

// Engine is stateless per request and safe for concurrent use.
type Engine struct {
	src        CatalogSource
	classifier Classifier
	timeout    time.Duration
	fanout     int
	logger     *slog.Logger
	reg        *metrics.Registry
}

// New creates an Engine over src.
func New(src CatalogSource, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultClassifierTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Engine{
		src:        src,
		classifier: opts.Classifier,
		timeout:    opts.Timeout,
		fanout:     opts.MaxConcurrency,
		logger:     opts.Logger,
		reg:        opts.Metrics,
	}
}

// ClassifierEnabled reports whether a classifier is configured.
func (e *Engine) ClassifierEnabled() bool { return e.classifier != nil }

// Diagnose evaluates every component of the profile. An unknown profile
// yields an empty list. Results are ranked by severity.
func (e *Engine) Diagnose(ctx context.Context, profileID string, odometerKm float64, history domain.ServiceHistory) []domain.DiagnosticResult {
	return e.diagnose(ctx, e.src.Current(), profileID, odometerKm, history)
}

func (e *Engine) diagnose(ctx context.Context, cat *catalog.Catalog, profileID string, odometerKm float64, history domain.ServiceHistory) []domain.DiagnosticResult {
	ctx, span := tracer.Start(ctx, "urgency.Diagnose")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", profileID), attribute.Float64("odometer_km", odometerKm))

	p, ok := cat.Profile(profileID)
	if !ok {
		e.logger.Warn("diagnose: unknown profile", "profile", profileID)
		return []domain.DiagnosticResult{}
	}

	for comp := range history {
		if _, known := p.Component(comp); !known {
			e.logger.Debug("diagnose: history entry for unknown component ignored", "profile", profileID, "component", comp)
		}
	}

	results := make([]domain.DiagnosticResult, len(p.Components))
	pending := 0
	for i, comp := range p.Components {
		results[i] = evaluate(comp, odometerKm, history)
		if results[i].Origin.Pending() {
			pending++
		}
	}
	e.classify(ctx, profileID, results)

	Rank(results)
	span.SetAttributes(attribute.Int("diagnostics", len(results)), attribute.Int("pending_milestones", pending))
	return results
}

// evaluate runs the milestone walk for one component.
func evaluate(comp *catalog.Component, odometerKm float64, history domain.ServiceHistory) domain.DiagnosticResult {
	last, serviced := history.LastServiced(comp.ID)
	prog := tracker.Track(comp.Schedule, odometerKm, last, serviced)
	task := comp.TaskFor(prog.TargetKm)
	frac := prog.Fraction()
	return domain.DiagnosticResult{
		ComponentID:   comp.ID,
		Name:          task.Name,
		Action:        task.Action,
		AccruedKm:     prog.AccruedKm,
		TargetKm:      prog.TargetKm,
		UsageFraction: frac,
		UsagePercent:  math.Round(frac*1000) / 10,
		Origin:        prog.Origin,
		Stage:         prog.Stage,
		Verdict:       domain.Unavailable,
		Notes:         task.Notes,
	}
}

// classify fills verdicts in place. Failures leave UNAVAILABLE.
func (e *Engine) classify(ctx context.Context, profileID string, results []domain.DiagnosticResult) {
	if e.classifier == nil {
		return
	}
	unavailable := e.reg.Counter("upkeep_verdicts_unavailable_total", "Diagnostics returned without a wear verdict.")

	var g errgroup.Group
	g.SetLimit(e.fanout)
	for i := range results {
		r := &results[i]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			v, err := e.classifier.Classify(cctx, r.AccruedKm, r.TargetKm)
			if err != nil {
				unavailable.Inc()
				e.logger.Warn("wear classifier unavailable",
					"profile", profileID, "component", r.ComponentID, "err", err)
				return nil
			}
			if !v.Available() {
				unavailable.Inc()
				return nil
			}
			r.Verdict = v
			return nil
		})
	}
	_ = g.Wait()
}
