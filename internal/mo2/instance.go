// Package mo2 knows the on-disk layout of a Mod Organizer 2 instance: the
// mods and downloads folders, profile files, and where the game itself
// lives.
package mo2

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Instance is one MO2 installation directory
type Instance struct {
	Root string

	// Downloads overrides the archive folder when non-empty, so several
	// instances can share one download cache
	Downloads string
}

// New returns an Instance rooted at the given MO2 path
func New(root string) *Instance {
	return &Instance{Root: root}
}

// ModsDir is where each installed mod gets its own folder
func (i *Instance) ModsDir() string {
	return filepath.Join(i.Root, "mods")
}

// DownloadsDir holds mod archives, reused across runs
func (i *Instance) DownloadsDir() string {
	if i.Downloads != "" {
		return i.Downloads
	}
	return filepath.Join(i.Root, "downloads")
}

// ProfileDir returns the directory of a named profile
func (i *Instance) ProfileDir(profile string) string {
	return filepath.Join(i.Root, "profiles", profile)
}

// EnsureLayout creates the mods, downloads and profile directories
func (i *Instance) EnsureLayout(profile string) error {
	for _, dir := range []string{i.ModsDir(), i.DownloadsDir(), i.ProfileDir(profile)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// WriteModlist writes modlist.txt for the profile. folders must be ordered
// highest priority first; MO2 reads the file top-down with top winning file
// conflicts.
func (i *Instance) WriteModlist(profile string, folders []string) error {
	var b strings.Builder
	b.WriteString("# This file was automatically generated by nexusbridge.\n")
	b.WriteString("# Top = Winner. A mod higher in this list overrides files of mods below it.\n")
	for _, folder := range folders {
		b.WriteString("+")
		b.WriteString(folder)
		b.WriteString("\n")
	}
	path := filepath.Join(i.ProfileDir(profile), "modlist.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing modlist.txt: %w", err)
	}
	return nil
}

// WritePlugins writes plugins.txt for the profile in load order
func (i *Instance) WritePlugins(profile string, plugins []string) error {
	var b strings.Builder
	b.WriteString("# This file was automatically generated by nexusbridge.\n")
	for _, name := range plugins {
		b.WriteString("*")
		b.WriteString(name)
		b.WriteString("\n")
	}
	path := filepath.Join(i.ProfileDir(profile), "plugins.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing plugins.txt: %w", err)
	}
	return nil
}

// ReadPluginsFile parses a plugins.txt, returning enabled plugin names in
// file order. Lines starting with '*' are enabled; '#' lines are comments.
func ReadPluginsFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening plugins.txt: %w", err)
	}
	defer file.Close()

	var plugins []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "*") {
			plugins = append(plugins, strings.TrimPrefix(line, "*"))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading plugins.txt: %w", err)
	}
	return plugins, nil
}
