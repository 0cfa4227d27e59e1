package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nexusbridge/internal/fsutil"
)

// knownDataFolders are game-data folder names that terminate wrapper
// unwrapping: a single remaining folder with one of these names is genuine
// mod content, not packaging.
var knownDataFolders = map[string]bool{
	"meshes": true, "textures": true, "scripts": true, "sound": true,
	"interface": true, "strings": true, "seq": true, "grass": true,
	"video": true, "music": true, "shaders": true, "shadersfx": true,
	"lodsettings": true, "skse": true, "netscriptframework": true,
	"edit scripts": true, "dialogueviews": true, "facegen": true,
	"caliente tools": true, "actors": true, "fonts": true,
	"materials": true, "platform": true, "source": true, "terrain": true,
	"trees": true, "vis": true, "distantlod": true, "lod": true,
	"dyndolod": true, "nemesis_engine": true,
}

// insignificantExts are extensions that do not count as mod content when
// deciding whether a folder is a packaging wrapper.
var insignificantExts = map[string]bool{
	".txt": true, ".md": true, ".ini": true, ".url": true, ".rtf": true,
	".pdf": true, ".html": true, ".htm": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".webp": true,
}

// insignificantNames match regardless of extension
var insignificantNames = []string{"readme", "license", "licence", "changelog", "credits"}

// isSignificantFile reports whether a file counts as mod content
func isSignificantFile(name string) bool {
	lower := strings.ToLower(name)
	if insignificantExts[filepath.Ext(lower)] {
		return false
	}
	base := strings.TrimSuffix(lower, filepath.Ext(lower))
	for _, n := range insignificantNames {
		if strings.HasPrefix(base, n) {
			return false
		}
	}
	return true
}

// Normalize post-processes an extracted archive tree and returns the
// effective install root. Four idempotent passes: backslash-in-filename
// repair, wrapper unwrapping, variant selection (for mods without a FOMOD)
// and Data-folder awareness (final flattening happens at the destination,
// see FlattenData).
func Normalize(root, modName string, hasFomod bool) (string, error) {
	if err := FixBackslashFilenames(root); err != nil {
		return "", err
	}

	contentRoot := unwrapRoot(root)

	if !hasFomod {
		contentRoot = selectVariant(contentRoot, modName)
	}
	return contentRoot, nil
}

// FixBackslashFilenames relocates regular files whose names contain literal
// backslash characters. Windows-produced archives sometimes store entry
// paths as single names with embedded separators.
func FixBackslashFilenames(root string) error {
	var broken []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.ContainsRune(d.Name(), '\\') {
			broken = append(broken, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning for broken filenames: %w", err)
	}

	for _, path := range broken {
		rel := strings.ReplaceAll(filepath.Base(path), `\`, string(os.PathSeparator))
		dest := filepath.Join(filepath.Dir(path), rel)
		if err := fsutil.MoveFile(path, dest); err != nil {
			return fmt.Errorf("relocating %s: %w", path, err)
		}
	}
	return nil
}

// unwrapRoot walks down through packaging wrappers: while the current root
// holds exactly one sub-directory and no significant files, that directory
// becomes the root. A folder named Data is always descended into; a known
// game-data folder name stops the walk.
func unwrapRoot(root string) string {
	current := root
	for {
		entries, err := os.ReadDir(current)
		if err != nil {
			return current
		}

		var dirs []os.DirEntry
		significant := false
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, e)
			} else if isSignificantFile(e.Name()) {
				significant = true
			}
		}

		if significant || len(dirs) != 1 {
			return current
		}

		name := strings.ToLower(dirs[0].Name())
		if name == "fomod" {
			// The installer definition lives beside the payload; stepping
			// into it would orphan every source path
			return current
		}
		if name != "data" && knownDataFolders[name] {
			return current
		}
		current = filepath.Join(current, dirs[0].Name())
	}
}

// selectVariant picks a named variant sub-folder: when the content root has
// multiple top-level directories, no significant files, and exactly one
// directory matches the mod's display name case-insensitively, that
// directory is the install root.
func selectVariant(root, modName string) string {
	if modName == "" {
		return root
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return root
	}

	var dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		} else if isSignificantFile(e.Name()) {
			return root
		}
	}
	if len(dirs) < 2 {
		return root
	}

	match := ""
	for _, d := range dirs {
		if strings.EqualFold(d.Name(), modName) {
			if match != "" {
				return root
			}
			match = d.Name()
		}
	}
	if match == "" {
		return root
	}
	return filepath.Join(root, match)
}

// FlattenData merges the children of a top-level Data/ folder (any casing)
// up into root and removes the folder. Runs repeatedly in case flattening
// exposes another Data level; idempotent once no Data folder remains.
func FlattenData(root string) error {
	for {
		name := fsutil.FindChildFold(root, "Data")
		if name == "" {
			return nil
		}
		dataDir := filepath.Join(root, name)
		info, err := os.Stat(dataDir)
		if err != nil || !info.IsDir() {
			return nil
		}
		// Rename aside first so a nested Data/Data cannot merge into the
		// folder being consumed
		tmp := dataDir + ".unpack"
		if err := os.Rename(dataDir, tmp); err != nil {
			return fmt.Errorf("staging %s: %w", dataDir, err)
		}
		if err := fsutil.MergeMove(tmp, root); err != nil {
			return fmt.Errorf("flattening %s: %w", dataDir, err)
		}
		if err := os.RemoveAll(tmp); err != nil {
			return fmt.Errorf("removing %s: %w", tmp, err)
		}
	}
}
