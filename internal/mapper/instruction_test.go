package mapper

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/prompt"
	"redline/internal/rules"
)

func TestMapInstructions(t *testing.T) {
	instructions := []string{
		"Cap liability at twelve months of fees",
		"Add a governing-law carve-out",
		"Tighten the confidentiality survival period",
	}

	client := &fakeClient{handler: func(system, user string) (string, error) {
		if system == prompt.SecondPassSystem {
			return `{"results": [{"index": 1, "additionalLocations": ["3."]}]}`, nil
		}
		return `{"results": [
			{"index": 0, "status": "mapped", "locations": ["2.", "2"]},
			{"index": 1, "status": "needs_new_section", "locations": []},
			{"index": 7, "status": "mapped", "locations": ["1."]}
		]}`, nil
	}}

	m := New(client, nil, DefaultConfig())
	statuses, err := m.MapInstructions(context.Background(), mappingOutline(), instructions, "job", nil)
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	t.Run("keyed by position", func(t *testing.T) {
		for i, st := range statuses {
			assert.Equal(t, i, st.Index)
		}
	})

	t.Run("locations deduplicated and canonicalized", func(t *testing.T) {
		assert.Equal(t, rules.StatusMapped, statuses[0].Status)
		assert.Equal(t, []string{"2."}, statuses[0].Locations)
	})

	t.Run("never needs_new_section", func(t *testing.T) {
		// The first pass tried to answer needs_new_section; instructions
		// only map or fall out.
		for _, st := range statuses {
			assert.NotEqual(t, rules.StatusNeedsNewSection, st.Status)
		}
	})

	t.Run("second pass upgrades by index", func(t *testing.T) {
		assert.Equal(t, rules.StatusMapped, statuses[1].Status)
		assert.Equal(t, []string{"3."}, statuses[1].Locations)
	})

	t.Run("out-of-range indices are dropped, gaps default to not_applicable", func(t *testing.T) {
		assert.Equal(t, rules.StatusNotApplicable, statuses[2].Status)
	})
}

func TestMapInstructions_BatchFailureIsFatal(t *testing.T) {
	client := &fakeClient{handler: func(system, user string) (string, error) {
		if strings.Contains(user, "## Instructions") {
			return "not json", nil
		}
		return `{"results": []}`, nil
	}}
	m := New(client, nil, DefaultConfig())
	_, err := m.MapInstructions(context.Background(), mappingOutline(), []string{"x"}, "job", nil)
	require.Error(t, err)
}
