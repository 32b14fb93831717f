package catalog

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// MatchKind records how a requested vehicle id was resolved.
type MatchKind string

const (
	MatchExact      MatchKind = "exact"
	MatchNormalized MatchKind = "normalized"
	MatchFallback   MatchKind = "fallback"
)

// Default generic profiles used when a vehicle is not in the catalog.
const (
	DefaultSmallGeneric = "Generica_Trabajo_150cc"
	DefaultLargeGeneric = "Generica_Urbana_250cc"
	DefaultSmallMaxCC   = 150
)

// Normalize lower-cases an id and strips whitespace and the separators
// _ - . / so that "Hero Hunk 160R 4V" and "Hero_Hunk_160R_4V" meet.
func Normalize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '_', '-', '.', '/':
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Resolver maps a requested vehicle id to a catalog profile.
type Resolver struct {
	SmallGeneric string
	LargeGeneric string
	// SmallMaxCC is the inclusive displacement ceiling of SmallGeneric.
	SmallMaxCC float64
}

// NewResolver returns a resolver with the default generic profiles.
func NewResolver() Resolver {
	return Resolver{
		SmallGeneric: DefaultSmallGeneric,
		LargeGeneric: DefaultLargeGeneric,
		SmallMaxCC:   DefaultSmallMaxCC,
	}
}

// Resolve tries an exact key, then the normalized index, then the generic
// profile matching the displacement. Without a match and without a
// displacement it returns domain.ErrDisplacementRequired.
func (r Resolver) Resolve(c *Catalog, requestedID string, displacementCC *float64) (string, MatchKind, error) {
	if _, ok := c.profiles[requestedID]; ok {
		return requestedID, MatchExact, nil
	}
	if id, ok := c.normalized[Normalize(requestedID)]; ok && id != "" {
		return id, MatchNormalized, nil
	}
	if displacementCC == nil {
		return "", "", domain.NewValidationError("displacement_cc", requestedID, domain.ErrDisplacementRequired)
	}
	if *displacementCC <= 0 {
		return "", "", domain.NewValidationError("displacement_cc", fmt.Sprint(*displacementCC), domain.ErrInvalidDisplacement)
	}

	id := r.LargeGeneric
	if *displacementCC <= r.SmallMaxCC {
		id = r.SmallGeneric
	}
	if _, ok := c.profiles[id]; !ok {
		return "", "", fmt.Errorf("catalog: resolve: generic %q: %w", id, domain.ErrProfileNotFound)
	}
	return id, MatchFallback, nil
}
