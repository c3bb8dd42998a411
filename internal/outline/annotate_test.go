package outline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/rules"
)

func TestAnnotate(t *testing.T) {
	tree := testTree()
	statuses := []rules.RuleStatus{
		{RuleID: "r1", Status: rules.StatusMapped, Locations: []string{"1.1.", "3."}},
		{RuleID: "r2", Status: rules.StatusMapped, Locations: []string{"3."}},
		{RuleID: "r3", Status: rules.StatusNotApplicable, Locations: []string{"2."}},
		{RuleID: "r4", Status: rules.StatusNeedsNewSection, SuggestedLocation: "After Section 2."},
	}

	annotated := Annotate(tree, statuses)

	t.Run("stamps mapped rule ids per node", func(t *testing.T) {
		assert.Equal(t, []string{"r1"}, Find(annotated, "1.1.").Rules)
		assert.Equal(t, []string{"r1", "r2"}, Find(annotated, "3.").Rules)
	})

	t.Run("non-mapped statuses contribute nothing", func(t *testing.T) {
		assert.Nil(t, Find(annotated, "2.").Rules)
	})

	t.Run("input tree is untouched", func(t *testing.T) {
		if diff := cmp.Diff(testTree(), tree); diff != "" {
			t.Errorf("input outline mutated (-want +got):\n%s", diff)
		}
	})

	t.Run("locations are matched canonically", func(t *testing.T) {
		loose := Annotate(tree, []rules.RuleStatus{
			{RuleID: "r9", Status: rules.StatusMapped, Locations: []string{"1.1"}},
		})
		assert.Equal(t, []string{"r9"}, Find(loose, "1.1.").Rules)
	})
}

func TestProcessingOrder(t *testing.T) {
	t.Run("children strictly before parents", func(t *testing.T) {
		// Outline 1., 1.1., 2. with a rule mapped to both 1. and 1.1.
		tree := []*SectionNode{
			{SectionNumber: "1.", Text: "a", Children: []*SectionNode{
				{SectionNumber: "1.1.", Text: "b", Level: 1},
			}},
			{SectionNumber: "2.", Text: "c"},
		}
		statuses := []rules.RuleStatus{
			{RuleID: "r1", Status: rules.StatusMapped, Locations: []string{"1.", "1.1."}},
		}
		assert.Equal(t, []string{"1.1.", "1."}, ProcessingOrder(tree, statuses))
	})

	t.Run("only sections carrying mapped rules qualify", func(t *testing.T) {
		order := ProcessingOrder(testTree(), []rules.RuleStatus{
			{RuleID: "r1", Status: rules.StatusMapped, Locations: []string{"3.", "1.2."}},
			{RuleID: "r2", Status: rules.StatusNeedsNewSection, SuggestedLocation: "After Section 2."},
		})
		assert.Equal(t, []string{"1.2.", "3."}, order)
	})

	t.Run("no ancestor precedes a qualifying descendant", func(t *testing.T) {
		tree := testTree()
		statuses := []rules.RuleStatus{
			{RuleID: "r1", Status: rules.StatusMapped, Locations: []string{"1.", "1.1.", "1.1.1.", "3.", "3.1."}},
		}
		order := ProcessingOrder(tree, statuses)
		require.Equal(t, []string{"1.1.1.", "1.1.", "1.", "3.1.", "3."}, order)
	})
}
