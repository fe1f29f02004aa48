package buildconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNew_Basic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Dockerfile"), "FROM base:1\nCOPY app.py /app/\n")
	writeFile(t, filepath.Join(dir, "app.py"), "print('hi')\n")

	cfg, err := New("myimage:latest", filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)

	assert.Equal(t, "myimage:latest", cfg.Identifier())
	assert.Equal(t, "myimage", cfg.Name())
	assert.Equal(t, "latest", cfg.Tag())
	assert.Equal(t, "base:1", cfg.ParentReference())
	assert.Equal(t, []string{"base:1"}, cfg.RequiredIdentifiers())
	assert.Equal(t, []string{"latest"}, cfg.Tags())
	assert.False(t, cfg.AlwaysPublish())
}

func TestNew_NoFromRejected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Dockerfile"), "RUN echo hi\n")

	_, err := New("myimage:latest", filepath.Join(dir, "Dockerfile"))
	require.Error(t, err)
}

func TestNew_ExtraTagsIncludeOwnTag(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Dockerfile"), "FROM base:1\n")

	cfg, err := New("myimage:v2", filepath.Join(dir, "Dockerfile"), WithTags([]string{"stable", "v2"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "stable"}, cfg.Tags())
}

func TestUsedFiles_ExpandsDirectoryAndHonoursIgnore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Dockerfile"), "FROM base:1\nCOPY app.py data/ /app/\n")
	writeFile(t, filepath.Join(dir, "app.py"), "print('hi')\n")
	writeFile(t, filepath.Join(dir, "data", "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "data", "b.log"), "b")
	writeFile(t, filepath.Join(dir, ".dockerignore"), "*.log\n")

	cfg, err := New("myimage:latest", filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)

	used, err := cfg.UsedFiles()
	require.NoError(t, err)

	rels := make([]string, 0, len(used))
	for _, p := range used {
		rel, rerr := filepath.Rel(dir, p)
		require.NoError(t, rerr)
		rels = append(rels, rel)
	}
	assert.ElementsMatch(t, []string{"app.py", filepath.Join("data", "a.txt")}, rels)
}

func TestUsedFiles_SkipsURLSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Dockerfile"), "FROM base:1\nADD https://example.com/file.tar.gz /app/\n")

	cfg, err := New("myimage:latest", filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)

	used, err := cfg.UsedFiles()
	require.NoError(t, err)
	assert.Empty(t, used)
}
