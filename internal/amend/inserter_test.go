package amend

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/rules"
)

func insertRules() []rules.Rule {
	return []rules.Rule{
		{ID: "r1", Content: "data retention"},
		{ID: "r2", Content: "audit rights"},
		{ID: "r3", Content: "subprocessors"},
	}
}

func TestInserter_GroupsByAnchor(t *testing.T) {
	client := &fakeClient{handler: func(system, user string) (string, error) {
		// One section object per rule listed in the prompt.
		n := strings.Count(user, "- Rule ")
		var sections []string
		for i := 0; i < n; i++ {
			sections = append(sections, fmt.Sprintf(`{"sectionNumber": "ignored", "text": "drafted %d"}`, i))
		}
		return fmt.Sprintf(`{"sections": [%s]}`, strings.Join(sections, ",")), nil
	}}
	ins := NewInserter(client, nil, Config{})

	locs := []rules.NewSectionLocation{
		{RuleID: "r1", SuggestedLocation: "After Section 1.1.", SuggestedHeading: "Retention"},
		{RuleID: "r2", SuggestedLocation: "After Section 2."},
		{RuleID: "r3", SuggestedLocation: "After Section 1.1."},
	}
	results := ins.Run(context.Background(), schedulerOutline(), locs, insertRules(), "job", nil)
	require.Len(t, results, 2)

	t.Run("one call per distinct anchor", func(t *testing.T) {
		assert.Len(t, client.order, 2)
	})

	t.Run("rules sharing an anchor share a group", func(t *testing.T) {
		assert.Equal(t, "After Section 1.1.", results[0].Anchor)
		assert.Equal(t, []string{"r1", "r3"}, results[0].RuleIDs)
		assert.Equal(t, "After Section 2.", results[1].Anchor)
		assert.Equal(t, []string{"r2"}, results[1].RuleIDs)
	})

	t.Run("sections renumbered as lettered continuations", func(t *testing.T) {
		require.True(t, results[0].Success)
		require.Len(t, results[0].Sections, 2)
		assert.Equal(t, "1.1.A", results[0].Sections[0].SectionNumber)
		assert.Equal(t, "1.1.B", results[0].Sections[1].SectionNumber)
		assert.Equal(t, "r1", results[0].Sections[0].RuleID)
		assert.Equal(t, "r3", results[0].Sections[1].RuleID)

		require.True(t, results[1].Success)
		require.Len(t, results[1].Sections, 1)
		assert.Equal(t, "2.A", results[1].Sections[0].SectionNumber)
	})
}

func TestInserter_AnchorFailuresAreIsolated(t *testing.T) {
	client := &fakeClient{handler: func(system, user string) (string, error) {
		return `{"sections": [{"text": "drafted"}]}`, nil
	}}
	ins := NewInserter(client, nil, Config{})

	locs := []rules.NewSectionLocation{
		{RuleID: "r1", SuggestedLocation: "After Section 42."},
		{RuleID: "r2", SuggestedLocation: "After Section 2."},
	}
	results := ins.Run(context.Background(), schedulerOutline(), locs, insertRules(), "job", nil)
	require.Len(t, results, 2)

	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "not found")

	assert.True(t, results[1].Success)
}

func TestInserter_CallFailureCaptured(t *testing.T) {
	client := &fakeClient{handler: func(system, user string) (string, error) {
		return "", fmt.Errorf("provider unavailable")
	}}
	ins := NewInserter(client, nil, Config{})

	results := ins.Run(context.Background(), schedulerOutline(), []rules.NewSectionLocation{
		{RuleID: "r1", SuggestedLocation: "After Section 2."},
	}, insertRules(), "job", nil)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "provider unavailable")
}

func TestInserter_NoLocations(t *testing.T) {
	ins := NewInserter(&fakeClient{handler: func(string, string) (string, error) {
		return "", fmt.Errorf("no call expected")
	}}, nil, Config{})
	assert.Nil(t, ins.Run(context.Background(), schedulerOutline(), nil, insertRules(), "job", nil))
}
