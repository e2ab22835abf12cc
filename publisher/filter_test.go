package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPadFilter(t *testing.T) {
	filter, err := NewPadFilter([]string{"team-*", "notes"}, []string{"*-draft"})
	require.NoError(t, err)
	require.NotNil(t, filter)

	assert.Len(t, filter.includeGlobs, 2)
	assert.Len(t, filter.excludeGlobs, 1)
}

func TestNewPadFilterEmptyPatterns(t *testing.T) {
	filter, err := NewPadFilter(nil, nil)
	require.NoError(t, err)

	assert.True(t, filter.Match("any"))
	assert.True(t, filter.Match(""))
}

func TestPadFilterInclude(t *testing.T) {
	filter, err := NewPadFilter([]string{"team-*"}, nil)
	require.NoError(t, err)

	assert.True(t, filter.Match("team-alpha"))
	assert.False(t, filter.Match("personal"))
}

func TestPadFilterExcludeWins(t *testing.T) {
	filter, err := NewPadFilter([]string{"team-*"}, []string{"*-draft"})
	require.NoError(t, err)

	assert.True(t, filter.Match("team-alpha"))
	assert.False(t, filter.Match("team-alpha-draft"))
	assert.False(t, filter.Match("solo-draft"))
}

func TestPadFilterInvalidPattern(t *testing.T) {
	_, err := NewPadFilter([]string{"[invalid"}, nil)
	assert.Error(t, err)

	_, err = NewPadFilter(nil, []string{"[invalid"})
	assert.Error(t, err)
}

func TestPadFilterCharacterClass(t *testing.T) {
	filter, err := NewPadFilter([]string{"pad[0-9]"}, nil)
	require.NoError(t, err)

	assert.True(t, filter.Match("pad1"))
	assert.False(t, filter.Match("padx"))
}
