package urgency

import (
	"context"
	"log/slog"

	"github.com/WessleyAI/wessley-upkeep/engine/catalog"
	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// Status classifies the outcome of an assessment.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusEmpty       Status = "empty"
	StatusClientError Status = "client_error"
	StatusError       Status = "error"
)

// Outcome is the typed result of Assess.
type Outcome struct {
	Status      Status
	ProfileID   string
	Match       catalog.MatchKind
	Brand       string
	Model       string
	Diagnostics []domain.DiagnosticResult
	// Err is set for client and server errors.
	Err error
}

// Service validates a query, resolves the vehicle and runs the engine.
type Service struct {
	engine   *Engine
	src      CatalogSource
	resolver catalog.Resolver
	logger   *slog.Logger
}

// NewService wires the engine with a resolver.
func NewService(engine *Engine, src CatalogSource, resolver catalog.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, src: src, resolver: resolver, logger: logger}
}

// Assess handles one diagnosis query end to end.
func (s *Service) Assess(ctx context.Context, q domain.Query) Outcome {
	if err := domain.ValidateQuery(q); err != nil {
		return Outcome{Status: StatusClientError, Err: err}
	}

	cat := s.src.Current()
	id, how, err := s.resolver.Resolve(cat, q.VehicleID, q.DisplacementCC)
	if err != nil {
		if domain.IsClientError(err) {
			return Outcome{Status: StatusClientError, Err: err}
		}
		s.logger.Error("assess: resolve failed", "vehicle", q.VehicleID, "err", err)
		return Outcome{Status: StatusError, Err: err}
	}
	if how != catalog.MatchExact {
		s.logger.Info("assess: vehicle resolved", "vehicle", q.VehicleID, "profile", id, "match", string(how))
	}

	out := Outcome{ProfileID: id, Match: how}
	var hist domain.ServiceHistory
	if p, ok := cat.Profile(id); ok {
		out.Brand, out.Model = p.Brand, p.Model
		if hist, err = s.scopeHistory(p, q.History); err != nil {
			return Outcome{Status: StatusClientError, Err: err}
		}
	}
	out.Diagnostics = s.engine.diagnose(ctx, cat, id, q.OdometerKm, hist)
	out.Status = StatusSuccess
	if len(out.Diagnostics) == 0 {
		out.Status = StatusEmpty
	}
	return out
}

// scopeHistory keeps the entries that name a component of p. Anything else,
// blank keys included, is dropped unvalidated.
func (s *Service) scopeHistory(p *catalog.Profile, h domain.ServiceHistory) (domain.ServiceHistory, error) {
	scoped := make(domain.ServiceHistory, len(h))
	for comp, km := range h {
		if _, known := p.Component(comp); !known {
			s.logger.Debug("assess: history entry for unknown component ignored", "profile", p.ID, "component", comp)
			continue
		}
		if err := domain.ValidateHistoryEntry(comp, km); err != nil {
			return nil, err
		}
		scoped[comp] = km
	}
	return scoped, nil
}
