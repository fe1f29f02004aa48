package checksumstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Get("a:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set("a:1", "abc"))
	v, ok, err := m.Get("a:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestMemory_SetAllMergesLastWriterWins(t *testing.T) {
	m := NewMemorySeeded(map[string]string{"a:1": "old", "b:1": "keep"})
	require.NoError(t, m.SetAll(map[string]string{"a:1": "new"}))

	all, err := m.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a:1": "new", "b:1": "keep"}, all)
}

func TestDump_SortedKeys(t *testing.T) {
	m := NewMemorySeeded(map[string]string{"b:1": "2", "a:1": "1"})
	out, err := Dump(m)
	require.NoError(t, err)
	assert.Equal(t, `{"a:1":"1","b:1":"2"}`, out)
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checksums.json")

	a := NewFile(path)
	require.NoError(t, a.Set("x:1", "fp1"))
	require.NoError(t, a.Set("y:1", "fp2"))

	b := NewFile(path)
	all, err := b.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x:1": "fp1", "y:1": "fp2"}, all)
}

func TestFile_GetAllOnMissingFileIsEmpty(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	all, err := f.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLayered_OverlayShadowsPersistentAndDoesNotMutateIt(t *testing.T) {
	persistent := NewMemorySeeded(map[string]string{"a:1": "persisted"})
	layered := NewLayered(persistent)

	v, ok, err := layered.Get("a:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", v)

	require.NoError(t, layered.Set("a:1", "just-built"))
	v, ok, err = layered.Get("a:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "just-built", v)

	persisted, err := persistent.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a:1": "persisted"}, persisted)
}

func TestLayered_GetAllMergesOverlayOverPersistent(t *testing.T) {
	persistent := NewMemorySeeded(map[string]string{"a:1": "old", "b:1": "unchanged"})
	layered := NewLayered(persistent)
	require.NoError(t, layered.Set("a:1", "new"))

	all, err := layered.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a:1": "new", "b:1": "unchanged"}, all)
}
