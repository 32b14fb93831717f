// Package wear implements wear classifiers: a banded ratio model loaded from
// a JSON artifact, remote clients over NATS and gRPC, a nearest-neighbour
// classifier backed by Qdrant, and a Guard that adds a circuit breaker and
// metrics around any of them.
//
// Every classifier takes the accrued usage and the active target of one
// component and answers with one of LIKE_NEW, NORMAL_WEAR, HEAVILY_WORN or
// CRITICAL_FAILURE plus a confidence in [0, 1].
package wear

import (
	"context"
	"fmt"
	"math"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// Classifier predicts the wear state of one component.
type Classifier interface {
	Classify(ctx context.Context, accruedKm, targetKm float64) (domain.Verdict, error)
}

// Features are the model inputs derived from a (accrued, target) pair.
type Features struct {
	DoneKm        float64 `json:"done_km"`
	RecommendedKm float64 `json:"recommended_km"`
	Ratio         float64 `json:"ratio"`
	Diff          float64 `json:"diff"`
}

// Derive computes ratio and difference. The target must be positive.
func Derive(accruedKm, targetKm float64) (Features, error) {
	if math.IsNaN(targetKm) || targetKm <= 0 {
		return Features{}, fmt.Errorf("wear: target must be positive, got %v", targetKm)
	}
	if math.IsNaN(accruedKm) || accruedKm < 0 {
		return Features{}, fmt.Errorf("wear: accrued must be non-negative, got %v", accruedKm)
	}
	return Features{
		DoneKm:        accruedKm,
		RecommendedKm: targetKm,
		Ratio:         accruedKm / targetKm,
		Diff:          accruedKm - targetKm,
	}, nil
}

// Request is the wire form of a classification request.
type Request struct {
	AccruedKm float64 `json:"accrued_km"`
	TargetKm  float64 `json:"target_km"`
}

// Response is the wire form of a classification answer. Error is set
// instead of a label when the remote classifier could not answer.
type Response struct {
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// verdict validates a wire response.
func (r Response) verdict() (domain.Verdict, error) {
	if r.Error != "" {
		return domain.Unavailable, fmt.Errorf("%w: %s", domain.ErrClassifierUnavailable, r.Error)
	}
	label, ok := domain.ParseWearLabel(r.Label)
	if !ok {
		return domain.Unavailable, fmt.Errorf("%w: %q", domain.ErrClassifierInvalidLabel, r.Label)
	}
	return domain.Verdict{Label: label, Confidence: clamp01(r.Confidence)}, nil
}

// Serve answers one wire request with c. It is shared by the NATS and gRPC
// servers.
func Serve(ctx context.Context, c Classifier, req Request) Response {
	v, err := c.Classify(ctx, req.AccruedKm, req.TargetKm)
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Label: string(v.Label), Confidence: v.Confidence}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
