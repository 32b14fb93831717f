// Package domain defines the core maintenance types shared by the catalog,
// the urgency engine and the service history log. It also hosts request
// validation used at the API boundary.
package domain

import "strings"

// Action is the maintenance verb a task prescribes.
type Action string

const (
	ActionReplace   Action = "REPLACE"
	ActionLubricate Action = "LUBRICATE"
	ActionClean     Action = "CLEAN"
	ActionInspect   Action = "INSPECT"
)

// actionAliases maps every accepted catalog spelling to its canonical action.
// Manufacturer schedules were transcribed in Spanish, so both forms load.
var actionAliases = map[string]Action{
	"REPLACE":      ActionReplace,
	"REEMPLAZAR":   ActionReplace,
	"LUBRICATE":    ActionLubricate,
	"LUBRICAR":     ActionLubricate,
	"CLEAN":        ActionClean,
	"LIMPIAR":      ActionClean,
	"INSPECT":      ActionInspect,
	"INSPECCIONAR": ActionInspect,
}

// ParseAction resolves a catalog or report action string.
func ParseAction(s string) (Action, bool) {
	a, ok := actionAliases[strings.ToUpper(strings.TrimSpace(s))]
	return a, ok
}

// Origin explains which policy branch produced an accrued-usage figure.
type Origin string

const (
	OriginTheoretical      Origin = "THEORETICAL"
	OriginHistorical       Origin = "HISTORICAL"
	OriginPendingBreakIn   Origin = "PENDING_BREAK_IN"
	OriginPendingMilestone Origin = "PENDING_MILESTONE"
)

// Pending reports whether the origin belongs to an uncleared milestone.
func (o Origin) Pending() bool {
	return o == OriginPendingBreakIn || o == OriginPendingMilestone
}

// WearLabel is the categorical verdict of the wear classifier.
type WearLabel string

const (
	WearLikeNew         WearLabel = "LIKE_NEW"
	WearNormal          WearLabel = "NORMAL_WEAR"
	WearHeavilyWorn     WearLabel = "HEAVILY_WORN"
	WearCriticalFailure WearLabel = "CRITICAL_FAILURE"
	WearUnavailable     WearLabel = "UNAVAILABLE"
)

// ValidWearLabels is the closed set a classifier may return.
var ValidWearLabels = map[WearLabel]bool{
	WearLikeNew: true, WearNormal: true, WearHeavilyWorn: true, WearCriticalFailure: true,
}

// wearAliases accepts the Spanish labels used by the legacy training data.
var wearAliases = map[string]WearLabel{
	"como_nuevo":      WearLikeNew,
	"desgaste_normal": WearNormal,
	"muy_desgastado":  WearHeavilyWorn,
	"fallo_critico":   WearCriticalFailure,
}

// ParseWearLabel normalizes a label coming from a model or a service report.
func ParseWearLabel(s string) (WearLabel, bool) {
	s = strings.TrimSpace(s)
	if l, ok := wearAliases[strings.ToLower(s)]; ok {
		return l, true
	}
	l := WearLabel(strings.ToUpper(s))
	return l, ValidWearLabels[l]
}

// Verdict is a classifier outcome for one component.
type Verdict struct {
	Label      WearLabel `json:"label"`
	Confidence float64   `json:"confidence"`
}

// Unavailable is the verdict used whenever the classifier cannot answer.
var Unavailable = Verdict{Label: WearUnavailable, Confidence: 0}

// Available reports whether the verdict came from a working classifier.
func (v Verdict) Available() bool { return v.Label != WearUnavailable && v.Label != "" }

// IntervalSpec is a task's service interval as written in the catalog.
type IntervalSpec struct {
	// Km is the recurring distance. Zero means no distance-based interval.
	Km float64 `json:"km,omitempty" yaml:"km,omitempty"`
	// BreakInKm lists first-occurrence milestones, strictly increasing and
	// below Km.
	BreakInKm []float64 `json:"break_in_km,omitempty" yaml:"break_in_km,omitempty"`
	// Months is a calendar interval. Calendar tasks are ignored by the
	// odometer-driven engine.
	Months int `json:"months,omitempty" yaml:"months,omitempty"`
}

// MaintenanceTask is one scheduled action for one component.
type MaintenanceTask struct {
	ComponentID string       `json:"component_id" yaml:"component_id"`
	Name        string       `json:"name" yaml:"name"`
	Action      Action       `json:"action" yaml:"action"`
	Interval    IntervalSpec `json:"interval" yaml:"interval"`
	Notes       string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// MaintenanceProfile describes one vehicle class's maintenance schedule.
type MaintenanceProfile struct {
	ID             string            `json:"id" yaml:"-"`
	Brand          string            `json:"brand" yaml:"brand"`
	Model          string            `json:"model" yaml:"model"`
	DisplacementCC float64           `json:"displacement_cc,omitempty" yaml:"displacement_cc,omitempty"`
	Generic        bool              `json:"generic,omitempty" yaml:"generic,omitempty"`
	Tasks          []MaintenanceTask `json:"tasks" yaml:"tasks"`
}

// ServiceHistory maps a component id to the odometer reading at which it was
// last serviced. A missing key means never serviced, not serviced at zero.
type ServiceHistory map[string]float64

// LastServiced returns the last service odometer for a component, if known.
func (h ServiceHistory) LastServiced(componentID string) (float64, bool) {
	if h == nil {
		return 0, false
	}
	km, ok := h[componentID]
	return km, ok
}

// DiagnosticResult is the urgency assessment of one component.
type DiagnosticResult struct {
	ComponentID   string  `json:"component_id"`
	Name          string  `json:"name"`
	Action        Action  `json:"action"`
	AccruedKm     float64 `json:"accrued_km"`
	TargetKm      float64 `json:"target_km"`
	UsageFraction float64 `json:"usage_fraction"`
	UsagePercent  float64 `json:"usage_percent"`
	Origin        Origin  `json:"origin"`
	// Stage is the 1-based index of the pending milestone, or 0 once the
	// recurring interval applies.
	Stage   int     `json:"stage"`
	Verdict Verdict `json:"verdict"`
	Notes   string  `json:"notes,omitempty"`
}
