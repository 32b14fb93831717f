package catalog

// Option is one selectable component of a profile.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// GenericSuffix marks labels taken from a generic fallback profile.
const GenericSuffix = " (Genérico)"

// Options lists a profile's components once each, in catalog order,
// including calendar-only ones. Labels of generic profiles carry
// GenericSuffix.
func (p *Profile) Options() []Option {
	seen := map[string]bool{}
	out := make([]Option, 0, len(p.Components)+len(p.Calendar))
	add := func(id, label string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if p.Generic {
			label += GenericSuffix
		}
		out = append(out, Option{ID: id, Label: label})
	}
	for _, c := range p.Components {
		add(c.ID, c.Label())
	}
	for _, t := range p.Calendar {
		add(t.ComponentID, t.Name)
	}
	return out
}
