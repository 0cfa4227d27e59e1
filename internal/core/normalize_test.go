package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusbridge/internal/core"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNormalize_WrapperUnwrap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "MyMod", "meshes", "a.nif"), "x")

	got, err := core.Normalize(root, "MyMod", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "MyMod"), got)

	// The install root directly contains meshes/
	_, err = os.Stat(filepath.Join(got, "meshes", "a.nif"))
	assert.NoError(t, err)
}

func TestNormalize_WrapperAndDataUnwrap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Mod", "Data", "meshes", "a.nif"), "x")

	got, err := core.Normalize(root, "Mod", false)
	require.NoError(t, err)
	// Both the wrapper and the Data folder are stepped through
	assert.Equal(t, filepath.Join(root, "Mod", "Data"), got)
	_, err = os.Stat(filepath.Join(got, "meshes", "a.nif"))
	assert.NoError(t, err)
}

func TestNormalize_KnownDataFolderStopsUnwrap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "meshes", "a.nif"), "x")

	got, err := core.Normalize(root, "whatever", false)
	require.NoError(t, err)
	// A lone meshes/ folder is mod content, not packaging
	assert.Equal(t, root, got)
}

func TestNormalize_ReadmeDoesNotBlockUnwrap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "readme.txt"), "hello")
	writeFile(t, filepath.Join(root, "Wrapped", "textures", "t.dds"), "x")

	got, err := core.Normalize(root, "other", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Wrapped"), got)
}

func TestNormalize_SignificantFileBlocksUnwrap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "plugin.esp"), "TES4")
	writeFile(t, filepath.Join(root, "Extras", "x.dds"), "x")

	got, err := core.Normalize(root, "other", false)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestNormalize_VariantSelection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Version A", "a.esp"), "a")
	writeFile(t, filepath.Join(root, "Version B", "b.esp"), "b")
	writeFile(t, filepath.Join(root, "readme.txt"), "readme")

	got, err := core.Normalize(root, "Version B", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Version B"), got)
}

func TestNormalize_VariantSelectionCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "version b", "b.esp"), "b")
	writeFile(t, filepath.Join(root, "Version A", "a.esp"), "a")

	got, err := core.Normalize(root, "Version B", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "version b"), got)
}

func TestNormalize_VariantSkippedForFomod(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Version A", "a.esp"), "a")
	writeFile(t, filepath.Join(root, "Version B", "b.esp"), "b")

	got, err := core.Normalize(root, "Version B", true)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestFixBackslashFilenames(t *testing.T) {
	root := t.TempDir()
	// A literal archive entry named "SKSE\Plugins\foo.dll"
	writeFile(t, filepath.Join(root, `SKSE\Plugins\foo.dll`), "dll")

	require.NoError(t, core.FixBackslashFilenames(root))

	data, err := os.ReadFile(filepath.Join(root, "SKSE", "Plugins", "foo.dll"))
	require.NoError(t, err)
	assert.Equal(t, "dll", string(data))
	_, err = os.Stat(filepath.Join(root, `SKSE\Plugins\foo.dll`))
	assert.True(t, os.IsNotExist(err))
}

func TestFlattenData(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "DATA", "meshes", "a.nif"), "x")
	writeFile(t, filepath.Join(root, "top.esp"), "esp")

	require.NoError(t, core.FlattenData(root))

	_, err := os.Stat(filepath.Join(root, "meshes", "a.nif"))
	assert.NoError(t, err)
	assert.Equal(t, "", findChild(t, root, "DATA"))
}

func TestFlattenData_MergesIntoExisting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Meshes", "keep.nif"), "keep")
	writeFile(t, filepath.Join(root, "Data", "meshes", "new.nif"), "new")

	require.NoError(t, core.FlattenData(root))

	_, err := os.Stat(filepath.Join(root, "Meshes", "keep.nif"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "Meshes", "new.nif"))
	assert.NoError(t, err)
}

func TestNormalize_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Mod", "Data", "meshes", "a.nif"), "x")

	first, err := core.Normalize(root, "Mod", false)
	require.NoError(t, err)
	second, err := core.Normalize(first, "Mod", false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func findChild(t *testing.T, dir, name string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() == name {
			return e.Name()
		}
	}
	return ""
}
