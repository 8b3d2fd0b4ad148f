// Package standards stores compliance standards and their requirements.
//
// The [Library] keeps standards in memory, serves reads through a bounded
// FIFO cache, filters and sorts them for search, and maintains a bleve
// full-text index over names, descriptions and requirement text.
//
// Every value handed out by the library is a deep copy. Mutations validate
// the whole standard first and either apply completely or not at all.
package standards

import (
	"slices"
	"strings"
	"time"
)

// Category classifies a standard.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryPrivacy       Category = "privacy"
	CategoryFinancial     Category = "financial"
	CategoryHealthcare    Category = "healthcare"
	CategoryQuality       Category = "quality"
	CategoryEnvironmental Category = "environmental"
	CategoryGeneral       Category = "general"
)

var categories = []Category{
	CategorySecurity, CategoryPrivacy, CategoryFinancial, CategoryHealthcare,
	CategoryQuality, CategoryEnvironmental, CategoryGeneral,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool { return slices.Contains(categories, c) }

// RequirementType classifies a requirement.
type RequirementType string

const (
	TypePolicy        RequirementType = "policy"
	TypeProcedure     RequirementType = "procedure"
	TypeControl       RequirementType = "control"
	TypeDocumentation RequirementType = "documentation"
	TypeTraining      RequirementType = "training"
	TypeTechnical     RequirementType = "technical"
	TypeGovernance    RequirementType = "governance"
)

var requirementTypes = []RequirementType{
	TypePolicy, TypeProcedure, TypeControl, TypeDocumentation,
	TypeTraining, TypeTechnical, TypeGovernance,
}

// Valid reports whether t is one of the fixed requirement types.
func (t RequirementType) Valid() bool { return slices.Contains(requirementTypes, t) }

// Criticality ranks how severe a missed requirement is.
type Criticality string

const (
	CriticalityLow      Criticality = "low"
	CriticalityMedium   Criticality = "medium"
	CriticalityHigh     Criticality = "high"
	CriticalityCritical Criticality = "critical"
)

var criticalities = []Criticality{CriticalityLow, CriticalityMedium, CriticalityHigh, CriticalityCritical}

// Valid reports whether c is a known criticality.
func (c Criticality) Valid() bool { return slices.Contains(criticalities, c) }

// Rank orders criticalities from low (1) to critical (4). Unknown values rank 0.
func (c Criticality) Rank() int { return slices.Index(criticalities, c) + 1 }

// Categories returns the fixed category set.
func Categories() []Category { return slices.Clone(categories) }

// RequirementTypes returns the fixed requirement type set.
func RequirementTypes() []RequirementType { return slices.Clone(requirementTypes) }

// Criticalities returns the criticality levels, lowest first.
func Criticalities() []Criticality { return slices.Clone(criticalities) }

// Applicability limits which organizations a standard applies to. An empty
// list, or one containing "all", applies to everyone.
type Applicability struct {
	OrganizationTypes []string `json:"organizationTypes,omitempty"`
	Industries        []string `json:"industries,omitempty"`
	Regions           []string `json:"regions,omitempty"`
	Sizes             []string `json:"sizes,omitempty"`
}

// Requirement is one checkable clause of a standard.
type Requirement struct {
	ID                  string          `json:"id"`
	StandardID          string          `json:"standardId"`
	Section             string          `json:"section,omitempty"`
	Title               string          `json:"title"`
	Description         string          `json:"description,omitempty"`
	Criticality         Criticality     `json:"criticality"`
	Type                RequirementType `json:"type"`
	RelatedRequirements []string        `json:"relatedRequirements,omitempty"`
	Tags                []string        `json:"tags,omitempty"`
}

// Standard is a versioned compliance framework.
type Standard struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	ShortName     string        `json:"shortName,omitempty"`
	Description   string        `json:"description,omitempty"`
	Version       string        `json:"version"`
	Category      Category      `json:"category"`
	Authority     string        `json:"authority,omitempty"`
	EffectiveDate time.Time     `json:"effectiveDate,omitempty"`
	Requirements  []Requirement `json:"requirements"`
	Applicability Applicability `json:"applicability"`
}

// Clone returns a deep copy.
func (r Requirement) Clone() Requirement {
	r.RelatedRequirements = slices.Clone(r.RelatedRequirements)
	r.Tags = slices.Clone(r.Tags)
	return r
}

// Clone returns a deep copy.
func (a Applicability) Clone() Applicability {
	return Applicability{
		OrganizationTypes: slices.Clone(a.OrganizationTypes),
		Industries:        slices.Clone(a.Industries),
		Regions:           slices.Clone(a.Regions),
		Sizes:             slices.Clone(a.Sizes),
	}
}

// Clone returns a deep copy.
func (s Standard) Clone() Standard {
	s.Requirements = cloneRequirements(s.Requirements)
	s.Applicability = s.Applicability.Clone()
	return s
}

func cloneRequirements(reqs []Requirement) []Requirement {
	if reqs == nil {
		return nil
	}
	out := make([]Requirement, len(reqs))
	for i, r := range reqs {
		out[i] = r.Clone()
	}
	return out
}

// Requirement returns the requirement with id, if the standard has it.
func (s Standard) Requirement(id string) (Requirement, bool) {
	for _, r := range s.Requirements {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return Requirement{}, false
}

// matchesAny applies the "empty or all means everyone" rule.
func matchesAny(values []string, want string) bool {
	if want == "" || len(values) == 0 {
		return true
	}
	for _, v := range values {
		if strings.EqualFold(v, "all") || strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
