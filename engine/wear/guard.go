package wear

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
	"github.com/WessleyAI/wessley-upkeep/pkg/metrics"
	"github.com/WessleyAI/wessley-upkeep/pkg/resilience"
)

var tracer = otel.Tracer("wessley-upkeep/wear")

// Guard wraps a classifier with a circuit breaker, label validation, tracing
// and metrics. It returns errors; callers decide how to degrade.
type Guard struct {
	inner   Classifier
	name    string
	breaker *resilience.Breaker
	logger  *slog.Logger
	reg     *metrics.Registry
}

// GuardOpts configures a Guard.
type GuardOpts struct {
	// Name identifies the backend in metrics and spans.
	Name    string
	Breaker resilience.BreakerOpts
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// NewGuard wraps inner.
func NewGuard(inner Classifier, opts GuardOpts) *Guard {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	g := &Guard{inner: inner, name: opts.Name, logger: opts.Logger, reg: opts.Metrics}

	state := g.reg.Gauge("upkeep_classifier_breaker_state",
		"Breaker state of the wear classifier (0 closed, 1 open, 2 half-open).", "backend", g.name)
	bo := opts.Breaker
	notify := bo.OnStateChange
	bo.OnStateChange = func(from, to resilience.State) {
		state.Set(float64(to))
		g.logger.Warn("classifier breaker state change", "backend", g.name, "from", from.String(), "to", to.String())
		if notify != nil {
			notify(from, to)
		}
	}
	g.breaker = resilience.NewBreaker(bo)
	return g
}

// BreakerState reports the breaker state for health checks.
func (g *Guard) BreakerState() resilience.State { return g.breaker.State() }

// Classify implements Classifier.
func (g *Guard) Classify(ctx context.Context, accruedKm, targetKm float64) (domain.Verdict, error) {
	ctx, span := tracer.Start(ctx, "wear.Classify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("wear.backend", g.name),
		attribute.Float64("wear.accrued_km", accruedKm),
		attribute.Float64("wear.target_km", targetKm),
	)

	lat := g.reg.Histogram("upkeep_classifier_duration_seconds", "Wear classifier latency.", nil, "backend", g.name)
	start := time.Now()
	v, err := resilience.Do(ctx, g.breaker, func(ctx context.Context) (domain.Verdict, error) {
		v, err := g.inner.Classify(ctx, accruedKm, targetKm)
		if err != nil {
			return v, err
		}
		if !domain.ValidWearLabels[v.Label] {
			return domain.Unavailable, fmt.Errorf("%w: %q", domain.ErrClassifierInvalidLabel, v.Label)
		}
		v.Confidence = clamp01(v.Confidence)
		return v, nil
	})
	lat.Since(start)

	if err != nil {
		g.reg.Counter("upkeep_classifier_failures_total", "Wear classifier failures.", "backend", g.name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Unavailable, fmt.Errorf("wear: %s: %w", g.name, err)
	}
	g.reg.Counter("upkeep_classifier_verdicts_total", "Wear classifier verdicts by label.",
		"backend", g.name, "label", string(v.Label)).Inc()
	span.SetAttributes(attribute.String("wear.label", string(v.Label)))
	return v, nil
}
