package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nexusbridge/internal/domain"
)

// creationClubPrefix is stripped from logical filenames during archive
// matching; Creation Club bundles are uploaded with the prefix but saved
// without it by most tooling.
const creationClubPrefix = "Creation Club - "

// DownloadTask is one archive to fetch into the downloads folder
type DownloadTask struct {
	ModIndex int    // index into Collection.Mods
	Name     string // display name for progress output
	URL      string // pre-resolved URL for direct-sourced mods
	DestPath string // destination inside the downloads folder
	Size     int64  // expected size in bytes (0 unknown)
}

// ArchiveScanner matches mods against archives already present in the
// downloads folder so they are reused instead of re-downloaded.
type ArchiveScanner struct {
	dir   string
	names []string
	sizes map[string]int64
}

// NewArchiveScanner reads the downloads folder once; a missing folder
// behaves as empty.
func NewArchiveScanner(downloadsDir string) (*ArchiveScanner, error) {
	s := &ArchiveScanner{dir: downloadsDir, sizes: make(map[string]int64)}

	entries, err := os.ReadDir(downloadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading downloads folder: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		s.names = append(s.names, e.Name())
		s.sizes[e.Name()] = info.Size()
	}
	return s, nil
}

// FindExisting returns the path of a reusable archive for the mod, applying
// the reuse rules in priority order:
//
//  1. a file whose name begins (case-insensitively) with
//     "{logicalFilename}-{modId}-"
//  2. the same with "Creation Club - " stripped from the logical filename
//  3. any file containing "-{modId}-" whose size equals the expected size
//  4. the first file containing "-{modId}-" as a fallback
//
// The expected size, when known, is a hard equality check for every rule, so
// rule 4 only takes effect when the size is unknown: a wrong-sized archive is
// re-downloaded.
func (s *ArchiveScanner) FindExisting(m *domain.Mod) (string, bool) {
	if m.Source != domain.SourceNexus || m.ModID == 0 {
		return s.findDirect(m)
	}

	logical := m.Filename
	if logical == "" {
		logical = m.Name
	}

	prefixes := []string{fmt.Sprintf("%s-%d-", logical, m.ModID)}
	if stripped := strings.TrimPrefix(logical, creationClubPrefix); stripped != logical {
		prefixes = append(prefixes, fmt.Sprintf("%s-%d-", stripped, m.ModID))
	}

	for _, prefix := range prefixes {
		lower := strings.ToLower(domain.SanitizeFileName(prefix))
		for _, name := range s.names {
			if !strings.HasPrefix(strings.ToLower(name), lower) {
				continue
			}
			if m.Size > 0 && s.sizes[name] != m.Size {
				continue
			}
			return filepath.Join(s.dir, name), true
		}
	}

	marker := fmt.Sprintf("-%d-", m.ModID)
	if m.Size > 0 {
		for _, name := range s.names {
			if strings.Contains(name, marker) && s.sizes[name] == m.Size {
				return filepath.Join(s.dir, name), true
			}
		}
	}
	for _, name := range s.names {
		if strings.Contains(name, marker) {
			if m.Size > 0 && s.sizes[name] != m.Size {
				continue
			}
			return filepath.Join(s.dir, name), true
		}
	}
	return "", false
}

// findDirect matches direct-URL mods by their derived archive name
func (s *ArchiveScanner) findDirect(m *domain.Mod) (string, bool) {
	want := strings.ToLower(domain.ArchiveNameFor(m, urlExtension(m.URL)))
	for _, name := range s.names {
		if strings.ToLower(name) != want {
			continue
		}
		if m.Size > 0 && s.sizes[name] != m.Size {
			continue
		}
		return filepath.Join(s.dir, name), true
	}
	return "", false
}

// BuildDownloadTasks splits a collection into already-present archives and
// tasks for the missing ones. The returned map is keyed by mod index.
func BuildDownloadTasks(col *domain.Collection, downloadsDir string) (map[int]string, []DownloadTask, error) {
	scanner, err := NewArchiveScanner(downloadsDir)
	if err != nil {
		return nil, nil, err
	}

	existing := make(map[int]string)
	var tasks []DownloadTask
	for i := range col.Mods {
		m := &col.Mods[i]
		if path, ok := scanner.FindExisting(m); ok {
			existing[i] = path
			continue
		}
		task := DownloadTask{ModIndex: i, Name: m.Name, Size: m.Size}
		if m.Source == domain.SourceDirect {
			// Nexus-sourced tasks get their destination after CDN link
			// resolution, when the upstream extension is known
			task.URL = m.URL
			task.DestPath = filepath.Join(downloadsDir, domain.ArchiveNameFor(m, urlExtension(m.URL)))
		}
		tasks = append(tasks, task)
	}
	return existing, tasks, nil
}

// urlExtension extracts a usable archive extension from a URL, defaulting
// to .zip when the URL carries none.
func urlExtension(rawURL string) string {
	if rawURL == "" {
		return ".zip"
	}
	path := rawURL
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".zip", ".7z", ".rar":
		return ext
	}
	return ".zip"
}
