package console

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/action"
)

func TestFilters_RegisterFilterThenMatches(t *testing.T) {
	f := NewFilters()
	require.NoError(t, f.RegisterFilter(context.Background(), action.Filter{
		Pattern: "buy bitcoin", Type: "spam", Priority: 1,
	}))

	assert.True(t, f.Matches("buy bitcoin", "spam"))
	assert.False(t, f.Matches("buy bitcoin", "other_type"))
	assert.False(t, f.Matches("unrelated", "spam"))
}

func TestFilters_MatchesFalseWhenNothingRegistered(t *testing.T) {
	f := NewFilters()
	assert.False(t, f.Matches("anything", "spam"))
}
