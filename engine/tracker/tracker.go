// Package tracker walks a component through its service milestones and
// measures how much usage has accrued toward the one currently active.
//
// A component's lifecycle is a finite sequence of states computed fresh for
// every request: PENDING m1 -> ... -> PENDING mn -> RECURRING. Nothing is
// persisted between calls; the supplied odometer and service history fully
// determine the position in the sequence.
package tracker

import (
	"fmt"
	"math"
	"sort"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// EarlyServiceTolerance is the fraction of a milestone at which a service
// still counts as having cleared it (a service up to 10% early is accepted).
const EarlyServiceTolerance = 0.90

// epsilon is an absolute tolerance in km that absorbs float noise in the
// tolerance product (0.9*500 and the like). It is far below any real reading,
// so a service at 0.899*m still misses milestone m.
const epsilon = 1e-9

// Schedule is the distance-based interval sequence of one component.
type Schedule struct {
	// Milestones are break-in distances, strictly increasing, each below
	// Recurring.
	Milestones []float64 `json:"milestones,omitempty"`
	// Recurring is the steady-state interval applied once every milestone is
	// cleared.
	Recurring float64 `json:"recurring"`
}

// NewSchedule builds a schedule from a set of distances. Duplicates collapse;
// the largest distance becomes the recurring interval and the rest become
// milestones.
func NewSchedule(distances ...float64) (Schedule, error) {
	if len(distances) == 0 {
		return Schedule{}, fmt.Errorf("tracker: empty schedule")
	}
	sorted := make([]float64, 0, len(distances))
	for _, d := range distances {
		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return Schedule{}, fmt.Errorf("tracker: non-positive distance %v", d)
		}
		sorted = append(sorted, d)
	}
	sort.Float64s(sorted)
	uniq := sorted[:1]
	for _, d := range sorted[1:] {
		if d != uniq[len(uniq)-1] {
			uniq = append(uniq, d)
		}
	}
	s := Schedule{Recurring: uniq[len(uniq)-1]}
	if len(uniq) > 1 {
		s.Milestones = append([]float64(nil), uniq[:len(uniq)-1]...)
	}
	return s, nil
}

// Validate checks the schedule invariants.
func (s Schedule) Validate() error {
	if math.IsNaN(s.Recurring) || s.Recurring <= 0 {
		return fmt.Errorf("tracker: recurring interval must be positive, got %v", s.Recurring)
	}
	prev := 0.0
	for i, m := range s.Milestones {
		if math.IsNaN(m) || m <= prev {
			return fmt.Errorf("tracker: milestone %d (%v) is not strictly increasing", i+1, m)
		}
		prev = m
	}
	if prev >= s.Recurring {
		return fmt.Errorf("tracker: last milestone %v must be below recurring interval %v", prev, s.Recurring)
	}
	return nil
}

// StateKind distinguishes milestone states from the steady state.
type StateKind int

const (
	StatePending   StateKind = iota // a break-in milestone not yet cleared
	StateRecurring                  // all milestones cleared
)

func (k StateKind) String() string {
	switch k {
	case StatePending:
		return "pending"
	case StateRecurring:
		return "recurring"
	default:
		return "unknown"
	}
}

// State is one position in a component lifecycle.
type State struct {
	Kind StateKind
	// Stage is the 1-based milestone index for pending states, 0 for the
	// recurring state.
	Stage  int
	Target float64
}

// Lifecycle lists the states of a schedule in order.
func Lifecycle(s Schedule) []State {
	states := make([]State, 0, len(s.Milestones)+1)
	for i, m := range s.Milestones {
		states = append(states, State{Kind: StatePending, Stage: i + 1, Target: m})
	}
	return append(states, State{Kind: StateRecurring, Target: s.Recurring})
}

// Cleared reports whether a service at lastKm satisfies milestone m.
func Cleared(milestone, lastKm float64) bool {
	return lastKm+epsilon >= EarlyServiceTolerance*milestone
}

// Active returns the state the component is currently chasing. Without
// history no milestone can be cleared.
func Active(s Schedule, lastKm float64, serviced bool) State {
	states := Lifecycle(s)
	for _, st := range states[:len(states)-1] {
		if !serviced || !Cleared(st.Target, lastKm) {
			return st
		}
	}
	return states[len(states)-1]
}

// Progress is the outcome of tracking one component.
type Progress struct {
	AccruedKm float64
	TargetKm  float64
	Origin    domain.Origin
	Stage     int
}

// Fraction returns accrued usage over the active target; values above 1 mean
// overdue.
func (p Progress) Fraction() float64 {
	if p.TargetKm <= 0 {
		return 0
	}
	return p.AccruedKm / p.TargetKm
}

// Track computes the active target and accrued usage.
//
// Without history the component is assumed never serviced and usage is
// measured from the vehicle's first kilometre. The odometer is never reduced
// modulo the interval: an overdue component stays overdue until a service
// record proves otherwise.
func Track(s Schedule, odometerKm, lastKm float64, serviced bool) Progress {
	st := Active(s, lastKm, serviced)

	accrued := odometerKm
	if serviced {
		accrued = odometerKm - lastKm
	}
	if accrued < 0 {
		accrued = 0
	}

	p := Progress{AccruedKm: accrued, TargetKm: st.Target, Stage: st.Stage}
	switch {
	case st.Kind == StatePending && st.Stage == 1:
		p.Origin = domain.OriginPendingBreakIn
	case st.Kind == StatePending:
		p.Origin = domain.OriginPendingMilestone
	case serviced:
		p.Origin = domain.OriginHistorical
	default:
		p.Origin = domain.OriginTheoretical
	}
	return p
}
