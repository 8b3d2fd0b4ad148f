package standards

import (
	"sort"

	"github.com/vinayprograms/compliancekit/errors"
)

// GetRequirementsByType returns every requirement of type t, ordered by id.
func (l *Library) GetRequirementsByType(t RequirementType) []Requirement {
	return l.filterRequirements(func(r Requirement) bool { return r.Type == t })
}

// GetRequirementsByCriticality returns every requirement at level c, ordered by id.
func (l *Library) GetRequirementsByCriticality(c Criticality) []Requirement {
	return l.filterRequirements(func(r Requirement) bool { return r.Criticality == c })
}

func (l *Library) filterRequirements(keep func(Requirement) bool) []Requirement {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Requirement
	for _, s := range l.standards {
		for _, r := range s.Requirements {
			if keep(r) {
				out = append(out, r.Clone())
			}
		}
	}
	sortRequirements(out)
	return out
}

// FindRelatedRequirements returns the requirements that id lists as related
// and those that list id, across all standards. Dangling references are skipped.
func (l *Library) FindRelatedRequirements(id string) ([]Requirement, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	req, ok := l.requirementLocked(id)
	if !ok {
		return nil, errors.NotFound("requirement not found: "+id, errors.WithMetadata("requirement_id", id))
	}

	seen := map[string]bool{id: true}
	var out []Requirement
	for _, rel := range req.RelatedRequirements {
		if seen[rel] {
			continue
		}
		if r, ok := l.requirementLocked(rel); ok {
			seen[rel] = true
			out = append(out, r.Clone())
		}
	}
	for _, s := range l.standards {
		for _, r := range s.Requirements {
			if seen[r.ID] {
				continue
			}
			for _, rel := range r.RelatedRequirements {
				if rel == id {
					seen[r.ID] = true
					out = append(out, r.Clone())
					break
				}
			}
		}
	}
	sortRequirements(out)
	return out, nil
}

func (l *Library) requirementLocked(id string) (Requirement, bool) {
	sid, ok := l.requirements[id]
	if !ok {
		return Requirement{}, false
	}
	s, ok := l.standards[sid]
	if !ok {
		return Requirement{}, false
	}
	for _, r := range s.Requirements {
		if r.ID == id {
			return r, true
		}
	}
	return Requirement{}, false
}

func sortRequirements(reqs []Requirement) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })
}

// Stats summarises the library contents.
type Stats struct {
	TotalStandards    int                     `json:"totalStandards"`
	TotalRequirements int                     `json:"totalRequirements"`
	ByCategory        map[Category]int        `json:"byCategory"`
	ByType            map[RequirementType]int `json:"byType"`
	ByCriticality     map[Criticality]int     `json:"byCriticality"`
}

// GetLibraryStats counts standards per category and requirements per type
// and criticality. It always reads the store, never the cache.
func (l *Library) GetLibraryStats() Stats {
	st := Stats{
		ByCategory:    make(map[Category]int),
		ByType:        make(map[RequirementType]int),
		ByCriticality: make(map[Criticality]int),
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, s := range l.standards {
		st.TotalStandards++
		st.ByCategory[s.Category]++
		for _, r := range s.Requirements {
			st.TotalRequirements++
			st.ByType[r.Type]++
			st.ByCriticality[r.Criticality]++
		}
	}
	return st
}
