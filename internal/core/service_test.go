package core_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusbridge/internal/core"
	"nexusbridge/internal/domain"
	"nexusbridge/internal/mo2"
	"nexusbridge/internal/source/nexusmods"
)

const fomodInstallerXML = `<config>
  <moduleName>ModB</moduleName>
  <installSteps>
    <installStep name="Pick">
      <optionalFileGroups>
        <group name="Edition" type="SelectExactlyOne">
          <plugins>
            <plugin name="Lite"><files><file source="lite.txt"/></files></plugin>
            <plugin name="Heavy"><files><file source="heavy.txt"/></files></plugin>
          </plugins>
        </group>
      </optionalFileGroups>
    </installStep>
  </installSteps>
</config>`

func zipInto(t *testing.T, path string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func testService(t *testing.T, root string, col *domain.Collection, out *bytes.Buffer) *core.Service {
	t.Helper()
	return &core.Service{
		Collection: col,
		Instance:   mo2.New(root),
		Client:     nexusmods.NewClient(nil, ""),
		Downloader: core.NewDownloader(nil),
		Extractor:  core.NewExtractor(""),
		Printer:    core.NewPrinter(out),
		Profile:    "Default",
		AutoYes:    true,
	}
}

func TestService_Run_EndToEnd(t *testing.T) {
	root := t.TempDir()
	downloads := filepath.Join(root, "downloads")

	// ModA: plain archive with a single-folder wrapper
	zipInto(t, filepath.Join(downloads, "ModA-1-1.zip"), map[string]string{
		"ModA/modA.esp":         "not a real plugin",
		"ModA/meshes/thing.nif": "mesh",
	})
	// ModB: FOMOD installer with a recorded choice
	zipInto(t, filepath.Join(downloads, "ModB-2-2.zip"), map[string]string{
		"fomod/ModuleConfig.xml": fomodInstallerXML,
		"lite.txt":               "lite",
		"heavy.txt":              "heavy",
	})

	col := &domain.Collection{
		Name:       "E2E",
		GameDomain: "skyrimspecialedition",
		Mods: []domain.Mod{
			{Name: "ModA", Filename: "ModA", ModID: 1, FileID: 1, Source: domain.SourceNexus},
			{Name: "ModB", Filename: "ModB", ModID: 2, FileID: 2, Source: domain.SourceNexus,
				Choices: &domain.FomodChoices{Steps: []domain.ChoiceStep{
					{Name: "Pick", Groups: []domain.ChoiceGroup{
						{Name: "Edition", Options: []domain.ChoiceOption{{Name: "Lite"}}},
					}},
				}}},
		},
		ModRules: []domain.ModRule{
			{Type: domain.RuleBefore,
				Source:    domain.RuleRef{Filename: "ModA"},
				Reference: domain.RuleRef{Filename: "ModB"}},
		},
		Plugins: []domain.Plugin{{Name: "modA.esp", Enabled: true}},
	}

	var out bytes.Buffer
	svc := testService(t, root, col, &out)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Downloaded, "both archives were reused")
	assert.Equal(t, 2, result.Installed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Skipped)

	// ModA: wrapper unwrapped, content at the folder root
	modA := filepath.Join(root, "mods", "ModA-1-1")
	assert.FileExists(t, filepath.Join(modA, "modA.esp"))
	assert.FileExists(t, filepath.Join(modA, "meshes", "thing.nif"))

	// ModB: only the selected FOMOD option installed
	modB := filepath.Join(root, "mods", "ModB-2-2")
	assert.FileExists(t, filepath.Join(modB, "lite.txt"))
	assert.NoFileExists(t, filepath.Join(modB, "heavy.txt"))

	// modlist.txt: rule "ModA before ModB" puts ModB on top
	data, err := os.ReadFile(filepath.Join(root, "profiles", "Default", "modlist.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "+ModB-2-2", lines[2])
	assert.Equal(t, "+ModA-1-1", lines[3])

	// plugins.txt: header sort fails on the fake esp, collection order wins
	plugins, err := mo2.ReadPluginsFile(filepath.Join(root, "profiles", "Default", "plugins.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"modA.esp"}, plugins)

	// Protocol lines
	assert.Contains(t, out.String(), "Phase 2: Installing 2 mods")
	assert.Contains(t, out.String(), "Generating plugins.txt")
	assert.Contains(t, out.String(), "Generating modlist.txt")
	assert.Contains(t, out.String(), "Downloaded: 0 / Installed: 2 / Skipped: 0 / Failed: 0")

	// Scratch area cleaned up
	assert.NoDirExists(t, filepath.Join(root, ".nexusbridge-work"))
}

func TestService_Run_SkipsExistingFolders(t *testing.T) {
	root := t.TempDir()
	downloads := filepath.Join(root, "downloads")
	zipInto(t, filepath.Join(downloads, "ModA-1-1.zip"), map[string]string{"a.txt": "a"})

	col := &domain.Collection{
		Name:       "Idempotent",
		GameDomain: "skyrimspecialedition",
		Mods: []domain.Mod{
			{Name: "ModA", Filename: "ModA", ModID: 1, FileID: 1, Source: domain.SourceNexus},
		},
	}

	var out bytes.Buffer
	svc := testService(t, root, col, &out)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	// Second run: the destination folder already exists and is skipped
	var out2 bytes.Buffer
	svc2 := testService(t, root, col, &out2)
	result, err := svc2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Installed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
}

func TestService_Query(t *testing.T) {
	root := t.TempDir()
	downloads := filepath.Join(root, "downloads")
	zipInto(t, filepath.Join(downloads, "Have-1-1.zip"), map[string]string{"x": "y"})

	col := &domain.Collection{
		Name:       "QueryMe",
		GameDomain: "skyrimspecialedition",
		Mods: []domain.Mod{
			{Name: "Have", Filename: "Have", ModID: 1, FileID: 1, Source: domain.SourceNexus},
			{Name: "Need", Filename: "Need", ModID: 2, FileID: 2, Source: domain.SourceNexus, Size: 500},
		},
	}

	svc := testService(t, root, col, &bytes.Buffer{})
	q, err := svc.Query(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "QueryMe", q.CollectionName)
	assert.Equal(t, 2, q.TotalMods)
	assert.Equal(t, 1, q.AlreadyHave)
	assert.Equal(t, 1, q.ToDownload)
	assert.Equal(t, int64(500), q.DownloadBytes)
	assert.Equal(t, int64(500), q.InstallBytes)
	assert.False(t, q.Premium, "no API key configured")
	require.Len(t, q.Queue, 1)
	assert.Equal(t, 1, q.Queue[0].ModIndex)
}
