package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Query is a diagnosis request after transport decoding.
type Query struct {
	VehicleID string
	// DisplacementCC is nil when the caller did not send one.
	DisplacementCC *float64
	OdometerKm     float64
	History        ServiceHistory
}

// ServiceReport is a completed-service event submitted by a rider.
type ServiceReport struct {
	UserHash    string    `json:"user_hash"`
	ProfileID   string    `json:"profile_id"`
	ComponentID string    `json:"component_id"`
	Action      string    `json:"action"`
	DoneKm      float64   `json:"done_km"`
	Condition   string    `json:"condition"`
	ReportedAt  time.Time `json:"reported_at"`
}

// OdometerUpdate records odometer progress without any maintenance.
type OdometerUpdate struct {
	UserHash   string  `json:"user_hash"`
	ProfileID  string  `json:"profile_id"`
	OdometerKm float64 `json:"odometer_km"`
}

func formatKm(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func validKm(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// ValidateQuery validates a diagnosis query. Displacement presence is checked
// by the resolver, which knows whether the vehicle id matched the catalog.
// History entries are checked per component once the profile is known, see
// ValidateHistoryEntry.
func ValidateQuery(q Query) error {
	if strings.TrimSpace(q.VehicleID) == "" {
		return NewValidationError("vehicle_id", q.VehicleID, ErrVehicleRequired)
	}
	if !validKm(q.OdometerKm) {
		return NewValidationError("odometer_km", formatKm(q.OdometerKm), ErrInvalidOdometer)
	}
	if d := q.DisplacementCC; d != nil && (math.IsNaN(*d) || math.IsInf(*d, 0) || *d <= 0) {
		return NewValidationError("displacement_cc", formatKm(*d), ErrInvalidDisplacement)
	}
	return nil
}

// ValidateHistoryEntry validates the history entry of a component that belongs
// to the resolved profile. Entries for other components are never validated.
func ValidateHistoryEntry(comp string, km float64) error {
	if strings.TrimSpace(comp) == "" {
		return NewValidationError("history", comp, ErrComponentRequired)
	}
	if !validKm(km) {
		return NewValidationError("history."+comp, formatKm(km), ErrInvalidHistoryEntry)
	}
	return nil
}

// ValidateReport validates a service report. An empty action defaults to
// REPLACE and an empty condition is allowed.
func ValidateReport(r ServiceReport) error {
	if strings.TrimSpace(r.ProfileID) == "" {
		return NewValidationError("profile_id", r.ProfileID, ErrVehicleRequired)
	}
	if strings.TrimSpace(r.ComponentID) == "" {
		return NewValidationError("component_id", r.ComponentID, ErrComponentRequired)
	}
	if r.Action != "" {
		if _, ok := ParseAction(r.Action); !ok {
			return NewValidationError("action", r.Action, ErrUnknownAction)
		}
	}
	if !validKm(r.DoneKm) {
		return NewValidationError("done_km", formatKm(r.DoneKm), ErrInvalidOdometer)
	}
	if r.Condition != "" {
		if _, ok := ParseWearLabel(r.Condition); !ok {
			return NewValidationError("condition", r.Condition, ErrUnknownCondition)
		}
	}
	return nil
}

// ValidateOdometerUpdate validates an odometer-only update.
func ValidateOdometerUpdate(u OdometerUpdate) error {
	if strings.TrimSpace(u.ProfileID) == "" {
		return NewValidationError("profile_id", u.ProfileID, ErrVehicleRequired)
	}
	if !validKm(u.OdometerKm) {
		return NewValidationError("odometer_km", formatKm(u.OdometerKm), ErrInvalidOdometer)
	}
	return nil
}
