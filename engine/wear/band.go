package wear

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// Band assigns Label to usage ratios up to MaxRatio. A zero MaxRatio marks
// the open-ended last band.
type Band struct {
	MaxRatio float64          `json:"max_ratio,omitempty"`
	Label    domain.WearLabel `json:"label"`
}

// BandModel classifies by usage ratio. Confidence is 1 well inside a band
// and falls to 0.5 at a boundary between two bands.
type BandModel struct {
	Version string `json:"version"`
	Bands   []Band `json:"bands"`
	// EdgeWidth is the ratio distance from a boundary at which confidence
	// reaches 1. Zero selects 0.1.
	EdgeWidth float64 `json:"edge_width,omitempty"`
}

// DefaultBandModel mirrors the label bands the training data was generated
// with.
func DefaultBandModel() *BandModel {
	return &BandModel{
		Version: "bands-v1",
		Bands: []Band{
			{MaxRatio: 0.90, Label: domain.WearLikeNew},
			{MaxRatio: 1.10, Label: domain.WearNormal},
			{MaxRatio: 1.30, Label: domain.WearHeavilyWorn},
			{Label: domain.WearCriticalFailure},
		},
	}
}

// LoadBandModel reads a JSON model artifact.
func LoadBandModel(path string) (*BandModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wear: read model %s: %w", path, err)
	}
	var m BandModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wear: decode model %s: %w", path, err)
	}
	for i := range m.Bands {
		label, ok := domain.ParseWearLabel(string(m.Bands[i].Label))
		if !ok {
			return nil, fmt.Errorf("wear: model %s band %d: %w: %q", path, i, domain.ErrClassifierInvalidLabel, m.Bands[i].Label)
		}
		m.Bands[i].Label = label
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("wear: model %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks that bands are increasing and end open-ended.
func (m *BandModel) Validate() error {
	if len(m.Bands) == 0 {
		return fmt.Errorf("no bands")
	}
	prev := 0.0
	for i, b := range m.Bands {
		if !domain.ValidWearLabels[b.Label] {
			return fmt.Errorf("band %d: %w: %q", i, domain.ErrClassifierInvalidLabel, b.Label)
		}
		last := i == len(m.Bands)-1
		if last {
			if b.MaxRatio != 0 {
				return fmt.Errorf("last band must be open-ended, got max %v", b.MaxRatio)
			}
			break
		}
		if b.MaxRatio <= prev {
			return fmt.Errorf("band %d: max %v is not increasing", i, b.MaxRatio)
		}
		prev = b.MaxRatio
	}
	return nil
}

// Classify implements Classifier.
func (m *BandModel) Classify(_ context.Context, accruedKm, targetKm float64) (domain.Verdict, error) {
	f, err := Derive(accruedKm, targetKm)
	if err != nil {
		return domain.Unavailable, err
	}
	edge := m.EdgeWidth
	if edge <= 0 {
		edge = 0.1
	}

	idx := len(m.Bands) - 1
	for i, b := range m.Bands[:len(m.Bands)-1] {
		if f.Ratio <= b.MaxRatio {
			idx = i
			break
		}
	}

	dist := math.Inf(1)
	if idx > 0 {
		dist = f.Ratio - m.Bands[idx-1].MaxRatio
	}
	if idx < len(m.Bands)-1 {
		dist = math.Min(dist, m.Bands[idx].MaxRatio-f.Ratio)
	}
	conf := 0.5 + 0.5*math.Min(1, dist/edge)
	return domain.Verdict{Label: m.Bands[idx].Label, Confidence: conf}, nil
}
