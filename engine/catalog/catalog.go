// Package catalog holds the manufacturer maintenance schedules and resolves
// loosely typed vehicle identifiers to a profile.
//
// A Catalog is immutable once built. Tasks that share a component id are
// grouped into one milestone Schedule; tasks that violate the interval rules
// are excluded with a warning instead of failing the whole load.
package catalog

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
	"github.com/WessleyAI/wessley-upkeep/engine/tracker"
)

// Component is every distance-based task of one component id inside a
// profile, grouped into a single schedule.
type Component struct {
	ID string
	// Tasks are the contributing tasks in catalog order.
	Tasks    []domain.MaintenanceTask
	Schedule tracker.Schedule
	// byDistance maps each schedule distance to the task that prescribes it.
	byDistance map[float64]int
}

// TaskFor returns the task whose distance is target, falling back to the
// task of the recurring interval.
func (c *Component) TaskFor(target float64) domain.MaintenanceTask {
	if i, ok := c.byDistance[target]; ok {
		return c.Tasks[i]
	}
	return c.Tasks[c.byDistance[c.Schedule.Recurring]]
}

// Label is the display name of the component's steady-state task.
func (c *Component) Label() string {
	return c.TaskFor(c.Schedule.Recurring).Name
}

// Profile is a maintenance profile with its tasks grouped per component.
type Profile struct {
	domain.MaintenanceProfile
	// Components are in order of first appearance in the task list.
	Components []*Component
	// Calendar lists tasks with only a months interval. They are kept for
	// listing but never tracked against the odometer.
	Calendar []domain.MaintenanceTask
}

// Component looks up a grouped component by id.
func (p *Profile) Component(id string) (*Component, bool) {
	for _, c := range p.Components {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Catalog is an immutable set of profiles.
type Catalog struct {
	profiles map[string]*Profile
	order    []string
	// normalized maps a normalized key to the catalog key it came from.
	normalized map[string]string
	warnings   []error
}

// New validates and groups raw profiles. Invalid tasks are dropped and
// reported through Warnings; a catalog with no profiles is an error.
func New(raw []domain.MaintenanceProfile, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(raw) == 0 {
		return nil, domain.ErrCatalogEmpty
	}

	c := &Catalog{
		profiles:   make(map[string]*Profile, len(raw)),
		normalized: make(map[string]string, len(raw)),
	}
	for _, mp := range raw {
		if mp.ID == "" {
			c.warn(logger, &domain.IntegrityError{Reason: "profile without id"})
			continue
		}
		if _, dup := c.profiles[mp.ID]; dup {
			c.warn(logger, &domain.IntegrityError{ProfileID: mp.ID, Reason: "duplicate profile id, keeping the first"})
			continue
		}
		p := c.build(mp, logger)
		c.profiles[mp.ID] = p
		c.order = append(c.order, mp.ID)

		key := Normalize(mp.ID)
		if prev, taken := c.normalized[key]; taken {
			logger.Warn("normalized profile key collision",
				"key", key, "kept", prev, "shadowed", mp.ID)
			continue
		}
		c.normalized[key] = mp.ID
	}
	if len(c.profiles) == 0 {
		return nil, domain.ErrCatalogEmpty
	}
	return c, nil
}

func (c *Catalog) warn(logger *slog.Logger, err error) {
	c.warnings = append(c.warnings, err)
	logger.Warn("catalog task excluded", "err", err)
}

func (c *Catalog) build(mp domain.MaintenanceProfile, logger *slog.Logger) *Profile {
	p := &Profile{MaintenanceProfile: mp}
	p.Tasks = nil

	type group struct {
		comp      *Component
		distances []float64
	}
	groups := map[string]*group{}

	for _, t := range mp.Tasks {
		action, ok := domain.ParseAction(string(t.Action))
		if !ok {
			c.warn(logger, &domain.IntegrityError{ProfileID: mp.ID, ComponentID: t.ComponentID,
				Reason: fmt.Sprintf("unknown action %q", t.Action)})
			continue
		}
		t.Action = action
		if err := checkTask(t); err != "" {
			c.warn(logger, &domain.IntegrityError{ProfileID: mp.ID, ComponentID: t.ComponentID, Reason: err})
			continue
		}
		p.Tasks = append(p.Tasks, t)

		if t.Interval.Km == 0 {
			logger.Debug("calendar-only task not tracked", "profile", mp.ID, "component", t.ComponentID)
			p.Calendar = append(p.Calendar, t)
			continue
		}

		g, ok := groups[t.ComponentID]
		if !ok {
			g = &group{comp: &Component{ID: t.ComponentID, byDistance: map[float64]int{}}}
			groups[t.ComponentID] = g
			p.Components = append(p.Components, g.comp)
		}
		idx := len(g.comp.Tasks)
		g.comp.Tasks = append(g.comp.Tasks, t)
		// A task's own recurring distance outranks a break-in value another
		// task listed for the same distance.
		if prev, seen := g.comp.byDistance[t.Interval.Km]; !seen || g.comp.Tasks[prev].Interval.Km != t.Interval.Km {
			g.comp.byDistance[t.Interval.Km] = idx
		}
		g.distances = append(g.distances, t.Interval.Km)
		for _, b := range t.Interval.BreakInKm {
			if _, seen := g.comp.byDistance[b]; !seen {
				g.comp.byDistance[b] = idx
			}
			g.distances = append(g.distances, b)
		}
	}

	kept := p.Components[:0]
	for _, comp := range p.Components {
		g := groups[comp.ID]
		s, err := tracker.NewSchedule(g.distances...)
		if err == nil {
			err = s.Validate()
		}
		if err != nil {
			c.warn(logger, &domain.IntegrityError{ProfileID: mp.ID, ComponentID: comp.ID, Reason: err.Error()})
			continue
		}
		comp.Schedule = s
		kept = append(kept, comp)
	}
	p.Components = kept
	return p
}

// checkTask returns a non-empty reason when a task breaks the interval rules.
func checkTask(t domain.MaintenanceTask) string {
	if strings.TrimSpace(t.ComponentID) == "" {
		return "missing component id"
	}
	iv := t.Interval
	if math.IsNaN(iv.Km) || math.IsInf(iv.Km, 0) || iv.Km < 0 {
		return fmt.Sprintf("invalid km %v", iv.Km)
	}
	if iv.Months < 0 {
		return fmt.Sprintf("invalid months %d", iv.Months)
	}
	if iv.Km == 0 {
		if iv.Months == 0 {
			return "no interval"
		}
		if len(iv.BreakInKm) > 0 {
			return "break-in milestones without a km interval"
		}
		return ""
	}
	prev := 0.0
	for _, b := range iv.BreakInKm {
		if math.IsNaN(b) || b <= prev {
			return fmt.Sprintf("break-in %v is not strictly increasing", b)
		}
		if b >= iv.Km {
			return fmt.Sprintf("break-in %v is not below km %v", b, iv.Km)
		}
		prev = b
	}
	return ""
}

// Profile returns the profile stored under the exact id.
func (c *Catalog) Profile(id string) (*Profile, bool) {
	p, ok := c.profiles[id]
	return p, ok
}

// IDs returns the profile ids in catalog order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of profiles.
func (c *Catalog) Len() int { return len(c.order) }

// Warnings returns the integrity violations found while building.
func (c *Catalog) Warnings() []error {
	return append([]error(nil), c.warnings...)
}

// Summaries lists brand and model per profile in catalog order.
func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(c.order))
	for _, id := range c.order {
		p := c.profiles[id]
		out = append(out, Summary{
			ID:             id,
			Brand:          p.Brand,
			Model:          p.Model,
			DisplacementCC: p.DisplacementCC,
			Generic:        p.Generic,
			Components:     len(p.Components),
		})
	}
	return out
}

// Summary is the listing view of a profile.
type Summary struct {
	ID             string  `json:"id"`
	Brand          string  `json:"brand"`
	Model          string  `json:"model"`
	DisplacementCC float64 `json:"displacement_cc,omitempty"`
	Generic        bool    `json:"generic,omitempty"`
	Components     int     `json:"components"`
}
