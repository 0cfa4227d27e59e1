package mo2_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusbridge/internal/mo2"
)

func TestInstance_EnsureLayout(t *testing.T) {
	root := t.TempDir()
	inst := mo2.New(root)

	require.NoError(t, inst.EnsureLayout("TestProfile"))

	for _, dir := range []string{
		filepath.Join(root, "mods"),
		filepath.Join(root, "downloads"),
		filepath.Join(root, "profiles", "TestProfile"),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestInstance_WriteModlist(t *testing.T) {
	root := t.TempDir()
	inst := mo2.New(root)
	require.NoError(t, inst.EnsureLayout("Default"))

	require.NoError(t, inst.WriteModlist("Default", []string{"Winner-1-1", "Loser-2-2"}))

	data, err := os.ReadFile(filepath.Join(root, "profiles", "Default", "modlist.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "#"))
	assert.True(t, strings.HasPrefix(lines[1], "#"))
	assert.Equal(t, "+Winner-1-1", lines[2])
	assert.Equal(t, "+Loser-2-2", lines[3])
}

func TestInstance_WritePlugins_RoundTrip(t *testing.T) {
	root := t.TempDir()
	inst := mo2.New(root)
	require.NoError(t, inst.EnsureLayout("Default"))

	order := []string{"Skyrim.esm", "SkyUI_SE.esp", "Patch.esp"}
	require.NoError(t, inst.WritePlugins("Default", order))

	path := filepath.Join(root, "profiles", "Default", "plugins.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "#"))

	// Parse(write(order)) preserves the order of enabled lines
	parsed, err := mo2.ReadPluginsFile(path)
	require.NoError(t, err)
	assert.Equal(t, order, parsed)
}

func TestGamePath_StockGame(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Stock Game"), 0755))

	inst := mo2.New(root)
	assert.Equal(t, filepath.Join(root, "Stock Game"), inst.GamePath())
}

func TestGamePath_FromINI(t *testing.T) {
	root := t.TempDir()
	gameDir := filepath.Join(root, "game-install")
	require.NoError(t, os.MkdirAll(gameDir, 0755))

	ini := "[General]\ngameName=Skyrim Special Edition\ngamePath=@ByteArray(" + gameDir + ")\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "ModOrganizer.ini"), []byte(ini), 0644))

	inst := mo2.New(root)
	assert.Equal(t, gameDir, inst.GamePath())
}

func TestGamePath_FromINIPlain(t *testing.T) {
	root := t.TempDir()
	gameDir := filepath.Join(root, "plain-install")
	require.NoError(t, os.MkdirAll(gameDir, 0755))

	ini := "gamePath=" + gameDir + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "ModOrganizer.ini"), []byte(ini), 0644))

	inst := mo2.New(root)
	assert.Equal(t, gameDir, inst.GamePath())
}
