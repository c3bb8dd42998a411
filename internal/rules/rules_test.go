package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	known := []Rule{{ID: "7"}, {ID: "7a"}}

	t.Run("strips Rule prefix", func(t *testing.T) {
		assert.Equal(t, "7", NormalizeID("Rule 7", known))
		assert.Equal(t, "7", NormalizeID("rule 7", known))
		assert.Equal(t, "7", NormalizeID("  RULE 7  ", known))
	})

	t.Run("exact match wins over containment", func(t *testing.T) {
		// "7" is contained in "7a" but the exact match must win.
		assert.Equal(t, "7", NormalizeID("7", known))
	})

	t.Run("containment match in either direction", func(t *testing.T) {
		assert.Equal(t, "7a", NormalizeID("7a-extra", []Rule{{ID: "7a"}}))
		assert.Equal(t, "data-retention-v2", NormalizeID("retention", []Rule{{ID: "data-retention-v2"}}))
	})

	t.Run("first containment match wins", func(t *testing.T) {
		// Deliberately not the most specific match.
		assert.Equal(t, "1", NormalizeID("10x", []Rule{{ID: "1"}, {ID: "10"}}))
	})

	t.Run("unmatched id passes through", func(t *testing.T) {
		assert.Equal(t, "99", NormalizeID("Rule 99", []Rule{{ID: "xyz"}}))
	})

	t.Run("empty id never containment-matches", func(t *testing.T) {
		assert.Equal(t, "", NormalizeID("Rule ", known))
	})
}

func TestNewSectionLocations(t *testing.T) {
	statuses := []RuleStatus{
		{RuleID: "1", Status: StatusMapped, Locations: []string{"2."}},
		{RuleID: "2", Status: StatusNeedsNewSection, SuggestedLocation: "After Section 3.", SuggestedHeading: "Audits"},
		{RuleID: "3", Status: StatusNotApplicable},
		{RuleID: "4", Status: StatusNeedsNewSection, SuggestedLocation: "After Section 3."},
	}

	locs := NewSectionLocations(statuses)
	assert.Equal(t, []NewSectionLocation{
		{RuleID: "2", SuggestedLocation: "After Section 3.", SuggestedHeading: "Audits"},
		{RuleID: "4", SuggestedLocation: "After Section 3."},
	}, locs)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]RuleStatus{
		{Status: StatusMapped},
		{Status: StatusMapped},
		{Status: StatusNotApplicable},
		{Status: StatusNeedsNewSection},
	})
	assert.Equal(t, Summary{MappedRules: 2, NotApplicableRules: 1, NeedsNewSection: 1}, s)
}
