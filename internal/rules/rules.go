// Package rules defines the compliance playbook vocabulary: rules, the
// per-rule mapping status produced by the rule mapper, and identifier
// normalization for reconciling loosely-typed generation output against
// the known rule set.
package rules

import "strings"

// Rule is a single compliance requirement from a playbook. Immutable input.
type Rule struct {
	ID      string `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
	Example string `json:"example,omitempty" yaml:"example,omitempty"`
}

// Status classifies how a rule relates to the document outline.
type Status string

const (
	// StatusMapped means the rule applies to one or more existing sections.
	StatusMapped Status = "mapped"
	// StatusNotApplicable means no section is affected by the rule.
	StatusNotApplicable Status = "not_applicable"
	// StatusNeedsNewSection means the rule requires a brand-new section.
	StatusNeedsNewSection Status = "needs_new_section"
)

// RuleStatus is the merged mapping outcome for one rule. After both mapper
// passes there is exactly one RuleStatus per input rule.
type RuleStatus struct {
	RuleID            string   `json:"ruleId"`
	Status            Status   `json:"status"`
	Locations         []string `json:"locations,omitempty"`
	SuggestedLocation string   `json:"suggestedLocation,omitempty"`
	SuggestedHeading  string   `json:"suggestedHeading,omitempty"`
	Reason            string   `json:"reason,omitempty"`
}

// NewSectionLocation is the insertion request derived from a
// needs_new_section status.
type NewSectionLocation struct {
	RuleID            string `json:"ruleId"`
	SuggestedLocation string `json:"suggestedLocation"`
	SuggestedHeading  string `json:"suggestedHeading,omitempty"`
}

// NewSectionLocations extracts the insertion requests from a merged status
// set, preserving order.
func NewSectionLocations(statuses []RuleStatus) []NewSectionLocation {
	var out []NewSectionLocation
	for _, st := range statuses {
		if st.Status != StatusNeedsNewSection {
			continue
		}
		out = append(out, NewSectionLocation{
			RuleID:            st.RuleID,
			SuggestedLocation: st.SuggestedLocation,
			SuggestedHeading:  st.SuggestedHeading,
		})
	}
	return out
}

// ByID indexes rules by their id.
func ByID(rs []Rule) map[string]Rule {
	m := make(map[string]Rule, len(rs))
	for _, r := range rs {
		m[r.ID] = r
	}
	return m
}

// NormalizeID reconciles a rule identifier returned by generation against
// the known rule set. The cleaned id is returned as-is on an exact match;
// otherwise the first known id related by substring containment (in either
// direction) wins. Unmatched ids pass through unchanged so callers can
// filter them out when no Rule object exists for them.
func NormalizeID(raw string, known []Rule) string {
	cleaned := strings.TrimSpace(raw)
	if len(cleaned) >= 5 && strings.EqualFold(cleaned[:5], "rule ") {
		cleaned = strings.TrimSpace(cleaned[5:])
	}
	if cleaned == "" {
		return cleaned
	}

	for _, r := range known {
		if r.ID == cleaned {
			return cleaned
		}
	}
	for _, r := range known {
		if strings.Contains(r.ID, cleaned) || strings.Contains(cleaned, r.ID) {
			return r.ID
		}
	}
	return cleaned
}

// Summary counts statuses by kind for the mapping response.
type Summary struct {
	MappedRules        int `json:"mappedRules"`
	NotApplicableRules int `json:"notApplicableRules"`
	NeedsNewSection    int `json:"needsNewSection"`
}

// Summarize tallies a merged status set.
func Summarize(statuses []RuleStatus) Summary {
	var s Summary
	for _, st := range statuses {
		switch st.Status {
		case StatusMapped:
			s.MappedRules++
		case StatusNeedsNewSection:
			s.NeedsNewSection++
		default:
			s.NotApplicableRules++
		}
	}
	return s
}
