package bundles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Len(t, Names, Count)

	seen := make(map[string]bool)
	for _, name := range Names {
		assert.False(t, seen[name], "duplicate bundle name: %s", name)
		seen[name] = true
	}
}

func TestIndex(t *testing.T) {
	i, err := Index("CST_left")
	require.NoError(t, err)
	assert.Equal(t, "CST_left", Names[i])

	_, err = Index("not_a_bundle")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("CC_3"))
	assert.False(t, Valid("CC_8"))
}

func TestEndingNames(t *testing.T) {
	names := EndingNames()
	require.Len(t, names, 2*Count)

	// Beginning and end regions stay adjacent per bundle.
	assert.Equal(t, Names[0]+"_b", names[0])
	assert.Equal(t, Names[0]+"_e", names[1])
	assert.Equal(t, Names[Count-1]+"_e", names[2*Count-1])
}
