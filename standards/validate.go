package standards

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/compliancekit/errors"
)

// Validate checks a standard and all of its requirements. Missing fields
// yield INVALID_INPUT; values outside the fixed sets, requirements that
// point at another standard and repeated requirement ids yield CONSISTENCY.
func Validate(s Standard) error {
	var missing []string
	if strings.TrimSpace(s.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(s.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(s.Version) == "" {
		missing = append(missing, "version")
	}
	if s.Category == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return errors.Validation("standard is missing "+strings.Join(missing, ", "),
			errors.WithMetadata("standard_id", s.ID),
			errors.WithMetadata("fields", strings.Join(missing, ",")))
	}
	if !s.Category.Valid() {
		return errors.Consistency(fmt.Sprintf("standard %s has unknown category %q", s.ID, s.Category),
			errors.WithMetadata("standard_id", s.ID),
			errors.WithMetadata("field", "category"))
	}

	seen := make(map[string]bool, len(s.Requirements))
	for i, r := range s.Requirements {
		if err := validateRequirement(s.ID, i, r); err != nil {
			return err
		}
		if seen[r.ID] {
			return errors.Consistency(fmt.Sprintf("standard %s repeats requirement %s", s.ID, r.ID),
				errors.WithMetadata("standard_id", s.ID),
				errors.WithMetadata("requirement_id", r.ID))
		}
		seen[r.ID] = true
	}
	return nil
}

func validateRequirement(standardID string, index int, r Requirement) error {
	var missing []string
	if strings.TrimSpace(r.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(r.StandardID) == "" {
		missing = append(missing, "standardId")
	}
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return errors.Validation(fmt.Sprintf("requirement %d of %s is missing %s", index, standardID, strings.Join(missing, ", ")),
			errors.WithMetadata("standard_id", standardID),
			errors.WithMetadata("fields", strings.Join(missing, ",")))
	}

	md := []errors.Option{
		errors.WithMetadata("standard_id", standardID),
		errors.WithMetadata("requirement_id", r.ID),
	}
	switch {
	case r.StandardID != standardID:
		return errors.Consistency(fmt.Sprintf("requirement %s belongs to %s, not %s", r.ID, r.StandardID, standardID), md...)
	case !r.Type.Valid():
		return errors.Consistency(fmt.Sprintf("requirement %s has unknown type %q", r.ID, r.Type),
			append(md, errors.WithMetadata("field", "type"))...)
	case !r.Criticality.Valid():
		return errors.Consistency(fmt.Sprintf("requirement %s has unknown criticality %q", r.ID, r.Criticality),
			append(md, errors.WithMetadata("field", "criticality"))...)
	}
	return nil
}
