package domain

import (
	"fmt"
	"strings"
)

// invalidFolderChars are the characters Windows rejects in path components.
// MO2 instances are frequently shared with Windows installs, so folder names
// must stay portable even when the installer runs on Linux.
const invalidFolderChars = `/\:*?"<>|`

// SanitizeFileName strips characters that cannot appear in a file or folder
// name and trims trailing dots and spaces. Idempotent.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if strings.ContainsRune(invalidFolderChars, r) || r < 0x20 {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), ". ")
}

// FolderNameFor derives the destination folder name for a mod. For
// Nexus-sourced mods the name deterministically encodes the logical (or
// display) name plus mod and file IDs, so a previous install of the same
// file is recognisable without consulting a manifest.
func FolderNameFor(m *Mod) string {
	base := m.Filename
	if base == "" {
		base = m.Name
	}
	if m.Source == SourceNexus && m.ModID > 0 {
		base = fmt.Sprintf("%s-%d-%d", base, m.ModID, m.FileID)
	}
	name := SanitizeFileName(base)
	if name == "" {
		name = fmt.Sprintf("mod-%d-%d", m.ModID, m.FileID)
	}
	return name
}

// ArchiveNameFor derives the downloads-folder filename for a mod archive,
// preserving the extension of the upstream filename.
func ArchiveNameFor(m *Mod, ext string) string {
	base := m.Filename
	if base == "" {
		base = m.Name
	}
	if m.Source == SourceNexus && m.ModID > 0 {
		base = fmt.Sprintf("%s-%d-%d", base, m.ModID, m.FileID)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return SanitizeFileName(base) + ext
}
