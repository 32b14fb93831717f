package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/WessleyAI/wessley-upkeep/engine/catalog"
	"github.com/WessleyAI/wessley-upkeep/engine/domain"
	"github.com/WessleyAI/wessley-upkeep/engine/history"
	"github.com/WessleyAI/wessley-upkeep/engine/urgency"
	"github.com/WessleyAI/wessley-upkeep/pkg/mid"
	"github.com/WessleyAI/wessley-upkeep/pkg/resilience"
)

const maxBodyBytes = 1 << 20

// historyLookup rebuilds a rider's service history, e.g. from the graph.
type historyLookup interface {
	History(ctx context.Context, userHash, profileID string) (domain.ServiceHistory, error)
}

type breakerStater interface {
	BreakerState() resilience.State
}

// server holds the handler dependencies.
type server struct {
	svc      *urgency.Service
	store    *catalog.Store
	resolver catalog.Resolver
	recorder *history.Recorder
	// Optional.
	histories historyLookup
	breaker   breakerStater
	logger    *slog.Logger
}

// routes registers every endpoint. Write routes go through writeMW.
func (s *server) routes(mux *http.ServeMux, authMW, writeMW mid.Middleware) {
	protect := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	write := func(h http.HandlerFunc) http.Handler { return authMW(writeMW(h)) }

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("POST /api/diagnose", protect(s.handleDiagnose))
	mux.Handle("GET /api/profiles", protect(s.handleProfiles))
	mux.Handle("GET /api/profiles/{id}/components", protect(s.handleComponents))
	mux.Handle("POST /api/reports", write(s.handleReport))
	mux.Handle("POST /api/odometer", write(s.handleOdometer))
	mux.Handle("POST /api/admin/catalog/reload", write(s.handleReload))
}

// --- Responses ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "code", code, "err", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps validation failures to 400 and everything else to 500.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Wrapped.Error(), Field: ve.Field})
	case domain.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", mid.RequestIDFrom(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "", domain.ErrInvalidRequest)
	}
	return nil
}

// --- Handlers ---

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	classifier := "disabled"
	if s.breaker != nil {
		classifier = s.breaker.BreakerState().String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"profiles":   s.store.Current().Len(),
		"classifier": classifier,
	})
}

// historyInput accepts either {"component": km} or
// [{"component_id": ..., "serviced_at_km": ...}].
type historyInput domain.ServiceHistory

type historyEntry struct {
	ComponentID  string  `json:"component_id"`
	ServicedAtKm float64 `json:"serviced_at_km"`
}

func (h *historyInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	out := historyInput{}
	if len(b) > 0 && b[0] == '[' {
		var list []historyEntry
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		for _, e := range list {
			// Later entries win, matching object semantics.
			out[e.ComponentID] = e.ServicedAtKm
		}
	} else {
		m := map[string]float64{}
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		for k, v := range m {
			out[k] = v
		}
	}
	*h = out
	return nil
}

// DiagnoseRequest is the JSON body for POST /api/diagnose.
type DiagnoseRequest struct {
	VehicleID      string       `json:"vehicle_id"`
	DisplacementCC *float64     `json:"displacement_cc,omitempty"`
	OdometerKm     *float64     `json:"odometer_km"`
	History        historyInput `json:"history,omitempty"`
	// UserHash loads the rider's stored history when History is empty.
	UserHash string `json:"user_hash,omitempty"`
}

type profileInfo struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
}

// DiagnoseResponse is the JSON response for POST /api/diagnose.
type DiagnoseResponse struct {
	Status      urgency.Status            `json:"status"`
	ProfileID   string                    `json:"profile_id"`
	Match       catalog.MatchKind         `json:"match"`
	Profile     profileInfo               `json:"profile"`
	OdometerKm  float64                   `json:"odometer_km"`
	Diagnostics []domain.DiagnosticResult `json:"diagnostics"`
}

func (s *server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req DiagnoseRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.OdometerKm == nil {
		s.writeError(w, r, domain.NewValidationError("odometer_km", "", domain.ErrInvalidOdometer))
		return
	}
	q := domain.Query{
		VehicleID:      req.VehicleID,
		DisplacementCC: req.DisplacementCC,
		OdometerKm:     *req.OdometerKm,
		History:        domain.ServiceHistory(req.History),
	}
	if len(q.History) == 0 && req.UserHash != "" {
		q.History = s.storedHistory(r.Context(), req.UserHash, q)
	}

	out := s.svc.Assess(r.Context(), q)
	switch out.Status {
	case urgency.StatusClientError, urgency.StatusError:
		s.writeError(w, r, out.Err)
		return
	}
	writeJSON(w, http.StatusOK, DiagnoseResponse{
		Status:      out.Status,
		ProfileID:   out.ProfileID,
		Match:       out.Match,
		Profile:     profileInfo{Brand: out.Brand, Model: out.Model},
		OdometerKm:  q.OdometerKm,
		Diagnostics: out.Diagnostics,
	})
}

// storedHistory is best effort: any failure yields no history.
func (s *server) storedHistory(ctx context.Context, userHash string, q domain.Query) domain.ServiceHistory {
	if s.histories == nil {
		return nil
	}
	id, _, err := s.resolver.Resolve(s.store.Current(), q.VehicleID, q.DisplacementCC)
	if err != nil {
		return nil
	}
	h, err := s.histories.History(ctx, userHash, id)
	if err != nil {
		s.logger.Warn("stored history unavailable", "profile", id, "err", err)
		return nil
	}
	return h
}

func (s *server) handleProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Current().Summaries())
}

func (s *server) handleComponents(w http.ResponseWriter, r *http.Request) {
	var cc *float64
	if raw := r.URL.Query().Get("displacement_cc"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, r, domain.NewValidationError("displacement_cc", raw, domain.ErrInvalidDisplacement))
			return
		}
		cc = &v
	}
	cat := s.store.Current()
	id, _, err := s.resolver.Resolve(cat, r.PathValue("id"), cc)
	if errors.Is(err, domain.ErrDisplacementRequired) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: domain.ErrProfileNotFound.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, _ := cat.Profile(id)
	writeJSON(w, http.StatusOK, p.Options())
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	var rep domain.ServiceReport
	if err := decode(w, r, &rep); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.recorder.RecordService(r.Context(), rep)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *server) handleOdometer(w http.ResponseWriter, r *http.Request) {
	var u domain.OdometerUpdate
	if err := decode(w, r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.recorder.RecordOdometer(r.Context(), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Reload()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	warnings := make([]string, 0, len(c.Warnings()))
	for _, e := range c.Warnings() {
		warnings = append(warnings, e.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": c.Len(), "warnings": warnings})
}
