package core_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusbridge/internal/core"
	"nexusbridge/internal/domain"
)

const expectedPathsFomodXML = `<config>
  <moduleName>NoChoices</moduleName>
  <installSteps>
    <installStep name="Pick">
      <optionalFileGroups>
        <group name="G" type="SelectExactlyOne">
          <plugins>
            <plugin name="A"><files><file source="payload/a.esp"/></files></plugin>
          </plugins>
        </group>
      </optionalFileGroups>
    </installStep>
  </installSteps>
</config>`

func TestRunTask_ExpectedPathsFallback(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "mod.zip")
	zipInto(t, archive, map[string]string{
		"fomod/ModuleConfig.xml": expectedPathsFomodXML,
		"payload/a.esp":          "a",
		"payload/b.esp":          "b",
	})

	installer := &core.Installer{
		Extractor: core.NewExtractor(""),
		Printer:   core.NewPrinter(&bytes.Buffer{}),
	}

	dest := filepath.Join(dir, "dest")
	task := core.InstallTask{
		ModName:     "NoChoices",
		ArchivePath: archive,
		DestDir:     dest,
		ScratchDir:  filepath.Join(dir, "scratch"),
		// FOMOD present, no recorded choices: install what the collection
		// expects, with a case-insensitive path
		Expected: []string{"PAYLOAD/A.esp"},
	}
	require.NoError(t, installer.RunTask(context.Background(), task))

	assert.FileExists(t, filepath.Join(dest, "PAYLOAD", "A.esp"))
	assert.NoFileExists(t, filepath.Join(dest, "payload", "b.esp"))
	assert.NoDirExists(t, task.ScratchDir)
}

func TestRunTask_ExpectedPathsAllMissing(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "mod.zip")
	zipInto(t, archive, map[string]string{
		"fomod/ModuleConfig.xml": expectedPathsFomodXML,
		"payload/a.esp":          "a",
	})

	installer := &core.Installer{
		Extractor: core.NewExtractor(""),
		Printer:   core.NewPrinter(&bytes.Buffer{}),
	}
	task := core.InstallTask{
		ModName:     "NoChoices",
		ArchivePath: archive,
		DestDir:     filepath.Join(dir, "dest"),
		ScratchDir:  filepath.Join(dir, "scratch"),
		Expected:    []string{"not/there.esp"},
	}
	err := installer.RunTask(context.Background(), task)
	assert.ErrorIs(t, err, domain.ErrFomodInvalid)
}

func TestRunTask_DataFolderFlattenedAtDestination(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "mod.zip")
	zipInto(t, archive, map[string]string{
		"Data/meshes/a.nif": "mesh",
		"plugin.esp":        "esp",
	})

	installer := &core.Installer{
		Extractor: core.NewExtractor(""),
		Printer:   core.NewPrinter(&bytes.Buffer{}),
	}
	dest := filepath.Join(dir, "dest")
	task := core.InstallTask{
		ModName:     "Flat",
		ArchivePath: archive,
		DestDir:     dest,
		ScratchDir:  filepath.Join(dir, "scratch"),
	}
	require.NoError(t, installer.RunTask(context.Background(), task))

	assert.FileExists(t, filepath.Join(dest, "meshes", "a.nif"))
	assert.FileExists(t, filepath.Join(dest, "plugin.esp"))
	assert.NoDirExists(t, filepath.Join(dest, "Data"))
}
