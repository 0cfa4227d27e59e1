package fomod_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusbridge/internal/domain"
	"nexusbridge/internal/fomod"
)

const simpleConfig = `<?xml version="1.0" encoding="UTF-8"?>
<!-- installer definition -->
<config xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <moduleName position='Left' colour='000000'>Simple Mod</moduleName>
  <requiredInstallFiles>
    <file source="core.esp" destination="core.esp" priority="0"/>
    <folder source="textures" destination="textures"/>
  </requiredInstallFiles>
  <installSteps order="Explicit">
    <installStep name="Options">
      <optionalFileGroups order="Explicit">
        <group name="Main" type="SelectExactlyOne">
          <plugins order="Explicit">
            <plugin name="Full">
              <description>  everything  </description>
              <files><file source="full.esp"/></files>
              <conditionFlags><flag name="mode">full</flag></conditionFlags>
            </plugin>
          </plugins>
        </group>
      </optionalFileGroups>
    </installStep>
  </installSteps>
</config>`

func TestParseModuleConfig(t *testing.T) {
	config, err := fomod.ParseModuleConfig([]byte(simpleConfig))
	require.NoError(t, err)

	assert.Equal(t, "Simple Mod", config.ModuleName)
	require.NotNil(t, config.RequiredInstallFiles)
	require.Len(t, config.RequiredInstallFiles.Files, 1)
	assert.Equal(t, "core.esp", config.RequiredInstallFiles.Files[0].Source)
	require.Len(t, config.RequiredInstallFiles.Folders, 1)

	require.Len(t, config.InstallSteps, 1)
	step := config.InstallSteps[0]
	assert.Equal(t, "Options", step.Name)
	require.Len(t, step.Groups, 1)
	require.Len(t, step.Groups[0].Plugins, 1)

	plugin := step.Groups[0].Plugins[0]
	assert.Equal(t, "Full", plugin.Name)
	assert.Equal(t, "everything", plugin.Description, "descriptions are trimmed")
	require.Len(t, plugin.ConditionFlags, 1)
	assert.Equal(t, "mode", plugin.ConditionFlags[0].Name)
	assert.Equal(t, "full", plugin.ConditionFlags[0].Value)
}

func TestParseModuleConfig_UTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(simpleConfig)...)
	config, err := fomod.ParseModuleConfig(data)
	require.NoError(t, err)
	assert.Equal(t, "Simple Mod", config.ModuleName)
}

func encodeUTF16(t *testing.T, s string, order binary.ByteOrder) []byte {
	t.Helper()
	var buf bytes.Buffer
	if order == binary.LittleEndian {
		buf.Write([]byte{0xFF, 0xFE})
	} else {
		buf.Write([]byte{0xFE, 0xFF})
	}
	for _, unit := range utf16.Encode([]rune(s)) {
		require.NoError(t, binary.Write(&buf, order, unit))
	}
	return buf.Bytes()
}

func TestParseModuleConfig_UTF16LE(t *testing.T) {
	const xml = `<?xml version="1.0"?><config><moduleName>Wide Mod</moduleName></config>`
	config, err := fomod.ParseModuleConfig(encodeUTF16(t, xml, binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, "Wide Mod", config.ModuleName)
}

func TestParseModuleConfig_UTF16LEWithDeclaration(t *testing.T) {
	const xml = `<?xml version="1.0" encoding="utf-16"?><config><moduleName>Wide Mod</moduleName></config>`
	config, err := fomod.ParseModuleConfig(encodeUTF16(t, xml, binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, "Wide Mod", config.ModuleName)
}

func TestParseModuleConfig_UTF16BE(t *testing.T) {
	const xml = `<?xml version="1.0"?><config><moduleName>Wide Mod</moduleName></config>`
	config, err := fomod.ParseModuleConfig(encodeUTF16(t, xml, binary.BigEndian))
	require.NoError(t, err)
	assert.Equal(t, "Wide Mod", config.ModuleName)
}

func TestParseModuleConfig_Invalid(t *testing.T) {
	_, err := fomod.ParseModuleConfig([]byte("<config><unclosed>"))
	assert.ErrorIs(t, err, domain.ErrFomodInvalid)
}

func TestFindModuleConfig(t *testing.T) {
	root := t.TempDir()

	// Nested fomod dir with unusual casing
	path := filepath.Join(root, "Wrapped", "FOMOD", "ModuleConfig.XML")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(simpleConfig), 0644))

	assert.Equal(t, path, fomod.FindModuleConfig(root))
}

func TestFindModuleConfig_RequiresFomodParent(t *testing.T) {
	root := t.TempDir()

	// A ModuleConfig.xml outside a fomod directory does not count
	path := filepath.Join(root, "other", "ModuleConfig.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(simpleConfig), 0644))

	assert.Equal(t, "", fomod.FindModuleConfig(root))
}
