package edge

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutedSet_MarkAndContains(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".edge_executed_commands.json")
	s := NewExecutedSet(path)

	assert.False(t, s.Contains("cmd-1"))
	require.NoError(t, s.Mark("cmd-1", time.Now().UTC()))
	assert.True(t, s.Contains("cmd-1"))
}

func TestExecutedSet_PersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".edge_executed_commands.json")
	s := NewExecutedSet(path)
	require.NoError(t, s.Mark("cmd-1", time.Now().UTC()))

	reloaded := NewExecutedSet(path)
	assert.True(t, reloaded.Contains("cmd-1"))
}

func TestExecutedSet_CapsAtNewest1000Entries(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".edge_executed_commands.json")
	s := NewExecutedSet(path)

	base := time.Now().UTC()
	for i := 0; i < 1005; i++ {
		require.NoError(t, s.Mark("cmd-"+strconv.Itoa(i), base.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, 1000, s.Len())
	// The oldest 5 entries should have been evicted.
	assert.False(t, s.Contains("cmd-0"))
	assert.True(t, s.Contains("cmd-1004"))
}

func TestExecutedSet_MissingFileStartsEmpty(t *testing.T) {
	s := NewExecutedSet(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains("anything"))
}
