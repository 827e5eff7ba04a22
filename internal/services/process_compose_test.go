package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPathAbsentReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", ConfigPath(dir))
}

func TestConfigPathPresent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "service-config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("version: '0.5'\n"), 0o644))
	assert.Equal(t, p, ConfigPath(dir))
}

func TestSocketExists(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "services.sock")
	assert.False(t, SocketExists(p))

	require.NoError(t, os.WriteFile(p, nil, 0o644))
	assert.True(t, SocketExists(p))
}

func TestBinaryHonorsEnvOverride(t *testing.T) {
	t.Setenv(binEnvVar, "/custom/process-compose")
	assert.Equal(t, "/custom/process-compose", binary())
}

func TestBinaryDefaultsToPath(t *testing.T) {
	t.Setenv(binEnvVar, "")
	assert.Equal(t, "process-compose", binary())
}

func TestDownFailsCleanlyWhenBinaryMissing(t *testing.T) {
	t.Setenv(binEnvVar, "/nonexistent/process-compose-binary-xyz")
	err := Down(filepath.Join(t.TempDir(), "services.sock"))
	require.Error(t, err)
}
