package activations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAbsentRegistryIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	path := RegistryPath(dir, "/some/env")

	reg, lock, err := Read(path)
	require.NoError(t, err)
	assert.Nil(t, reg)
	require.NoError(t, lock.Unlock())
}

// R1: write(read(path).0, path).then(read(path)) yields the same registry.
func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := RegistryPath(dir, "/some/env")

	reg, lock, err := Read(path)
	require.NoError(t, err)
	require.Nil(t, reg)

	reg = &Registry{Version: SchemaVersion}
	checked, err := reg.CheckVersion()
	require.NoError(t, err)
	checked.StartOrAttach(42, "/store/path", nil)

	require.NoError(t, Write(reg, path, lock))

	reread, lock2, err := Read(path)
	require.NoError(t, err)
	defer lock2.Unlock()
	require.NotNil(t, reread)
	assert.Equal(t, reg.Version, reread.Version)
	assert.Equal(t, reg.Activations, reread.Activations)
}

func TestRegistryDirNamespacesByEnvironmentPath(t *testing.T) {
	dir := t.TempDir()
	p1 := RegistryPath(dir, "/env/one")
	p2 := RegistryPath(dir, "/env/two")
	assert.NotEqual(t, p1, p2)

	// Same path always resolves to the same directory.
	assert.Equal(t, p1, RegistryPath(dir, "/env/one"))
}

func TestWriteAtomicallyNeverLeavesPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")

	require.NoError(t, WriteAtomically(path, []byte("hello")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, WriteAtomically(path, []byte("world!!")))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "world!!", string(data))

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// I5 / whole-registry teardown: rename-then-remove leaves nothing behind and
// logs nothing when both registry files are present.
func TestRemoveRegistryDirRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	regDir := filepath.Join(dir, "env-hash")
	require.NoError(t, os.MkdirAll(regDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(regDir, "activations.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(regDir, "activations.lock"), []byte(""), 0o644))

	var logged []string
	logf := func(format string, args ...any) {
		logged = append(logged, format)
	}

	require.NoError(t, RemoveRegistryDir(regDir, logf))
	_, err := os.Stat(regDir)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, logged)
}
