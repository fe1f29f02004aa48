package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFixture(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "thrifty-builder.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeDockerfile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("FROM scratch\n"), 0o644))
}

func TestLoad_ParsesImagesRegistriesAndStorage(t *testing.T) {
	dir := t.TempDir()
	writeDockerfile(t, dir, "Dockerfile")

	body := `
docker:
  images:
    - name: team/app:latest
      dockerfile: Dockerfile
      tags:
        - team/app:stable
      always_upload: true
  registries:
    - url: registry.example.com
      username: alice
      password: secret
checksum_storage:
  type: local
  path: checksums.json
`
	path := writeConfigFixture(t, dir, body)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Images, 1)
	assert.Equal(t, "team/app:latest", cfg.Images[0].Identifier)
	assert.Equal(t, filepath.Join(dir, "Dockerfile"), cfg.Images[0].DockerfilePath)
	assert.Equal(t, []string{"team/app:stable"}, cfg.Images[0].Tags)
	assert.True(t, cfg.Images[0].AlwaysPublish)

	require.Len(t, cfg.Registries, 1)
	assert.Equal(t, "registry.example.com", cfg.Registries[0].URL)
	assert.Equal(t, "alice", cfg.Registries[0].Username)

	assert.Equal(t, StorageLocal, cfg.ChecksumStorage.Type)
	assert.Equal(t, filepath.Join(dir, "checksums.json"), cfg.ChecksumStorage.Path)
}

func TestLoad_DefaultsStorageTypeToStdio(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir, "docker:\n  images: []\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorageStdio, cfg.ChecksumStorage.Type)
}

func TestLoad_ExpandsEnvironmentTemplates(t *testing.T) {
	t.Setenv("THRIFTY_TEST_TOKEN", "sekret-token")

	dir := t.TempDir()
	body := `
checksum_storage:
  type: consul
  url: consul.example.com
  token: "${THRIFTY_TEST_TOKEN}"
`
	path := writeConfigFixture(t, dir, body)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sekret-token", cfg.ChecksumStorage.Token)
}

func TestResolvePath_RelativeJoinsAgainstBase(t *testing.T) {
	assert.Equal(t, filepath.Join("/configs", "checksums.json"), resolvePath("/configs", "checksums.json"))
}

func TestResolvePath_AbsoluteUnchanged(t *testing.T) {
	assert.Equal(t, "/abs/checksums.json", resolvePath("/configs", "/abs/checksums.json"))
}

func TestResolvePath_EmptyStaysEmpty(t *testing.T) {
	assert.Equal(t, "", resolvePath("/configs", ""))
}

func TestBuildContainer_ConstructsConfigsInOrder(t *testing.T) {
	dir := t.TempDir()
	writeDockerfile(t, dir, "Dockerfile.a")
	writeDockerfile(t, dir, "Dockerfile.b")

	cfg := &Config{
		Images: []ImageConfig{
			{Identifier: "a:latest", DockerfilePath: filepath.Join(dir, "Dockerfile.a")},
			{Identifier: "b:latest", DockerfilePath: filepath.Join(dir, "Dockerfile.b")},
		},
	}

	container, err := cfg.BuildContainer()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:latest", "b:latest"}, container.Identifiers())
}
