package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIgnoreFile(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(contents), 0o644))
}

func TestLoad_NoFile(t *testing.T) {
	m, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.False(t, m.Ignored("anything"))
}

func TestLoad_MatchesEverything(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "**\n")

	m, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, m.Ignored("a"))
	assert.True(t, m.Ignored("nested/file.txt"))
}

func TestLoad_ReincludeWithBang(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "*.log\n!important.log\n")

	m, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, m.Ignored("debug.log"))
	assert.False(t, m.Ignored("important.log"))
}

func TestLoad_CommentsAndBlankLinesIgnored(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "# a comment\n\n*.tmp\n")

	m, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, m.Ignored("scratch.tmp"))
	assert.False(t, m.Ignored("keep.txt"))
}

func TestLoad_DoubleStarCrossesDirectories(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "**/*.cache\n")

	m, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, m.Ignored("deep/nested/dir/x.cache"))
	assert.False(t, m.Ignored("deep/nested/dir/x.keep"))
}
