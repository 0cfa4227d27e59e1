package fomod

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nexusbridge/internal/domain"
	"nexusbridge/internal/fsutil"
)

// Engine applies a parsed ModuleConfig to an extracted archive, writing the
// selected files into a destination mod folder.
type Engine struct {
	installRoot string
	destDir     string
	choices     *domain.FomodChoices

	// flags collects conditionFlags from selected plugins; keys lowercased
	flags map[string]string
	// installed tracks lowercased filenames for fileDependency checks
	installed map[string]bool
}

// NewEngine creates an engine over the archive's install root. choices may
// be nil, in which case only required and unconditional files install.
func NewEngine(installRoot, destDir string, choices *domain.FomodChoices) *Engine {
	return &Engine{
		installRoot: installRoot,
		destDir:     destDir,
		choices:     choices,
		flags:       make(map[string]string),
		installed:   make(map[string]bool),
	}
}

// Install locates the ModuleConfig under installRoot, parses it and runs
// the full install sequence into destDir.
func Install(installRoot, destDir string, choices *domain.FomodChoices) error {
	configPath := FindModuleConfig(installRoot)
	if configPath == "" {
		return fmt.Errorf("%w: no ModuleConfig.xml found", domain.ErrFomodInvalid)
	}
	config, err := ParseModuleConfigFile(configPath)
	if err != nil {
		return err
	}
	return NewEngine(installRoot, destDir, choices).Run(config)
}

// Run executes the installer: required files, then the choice-driven
// install steps (collecting condition flags from selected plugins), then
// the conditional file installs evaluated against those flags.
func (e *Engine) Run(config *ModuleConfig) error {
	if config.RequiredInstallFiles != nil {
		if err := e.installFileList(config.RequiredInstallFiles); err != nil {
			return fmt.Errorf("required files: %w", err)
		}
	}

	for _, step := range config.InstallSteps {
		for _, group := range step.Groups {
			// Selections are addressed by the (step, group) composite key;
			// group names repeat across steps in real collections
			selected := e.choices.SelectedOptions(step.Name, group.Name)
			if len(selected) == 0 {
				continue
			}
			for _, plugin := range group.Plugins {
				if !containsFold(selected, plugin.Name) {
					continue
				}
				if plugin.Files != nil {
					if err := e.installFileList(plugin.Files); err != nil {
						return fmt.Errorf("step %q group %q option %q: %w", step.Name, group.Name, plugin.Name, err)
					}
				}
				for _, flag := range plugin.ConditionFlags {
					e.flags[strings.ToLower(flag.Name)] = flag.Value
				}
			}
		}
	}

	for i, pattern := range config.ConditionalFileInstalls {
		if pattern.Dependencies != nil && !e.evalDependency(pattern.Dependencies) {
			continue
		}
		if pattern.Files != nil {
			if err := e.installFileList(pattern.Files); err != nil {
				return fmt.Errorf("conditional pattern %d: %w", i, err)
			}
		}
	}
	return nil
}

// Flags exposes the collected condition flags (lowercased names)
func (e *Engine) Flags() map[string]string {
	return e.flags
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// evalDependency evaluates a dependency expression against the flag map and
// installed files. And over no children is true, Or over no children false.
func (e *Engine) evalDependency(dep *Dependency) bool {
	if dep.FlagDependency != nil {
		value, ok := e.flags[strings.ToLower(dep.FlagDependency.Flag)]
		return ok && strings.EqualFold(value, dep.FlagDependency.Value)
	}
	if dep.FileDependency != nil {
		present := e.installed[strings.ToLower(filepath.Base(
			strings.ReplaceAll(dep.FileDependency.File, `\`, "/")))]
		switch dep.FileDependency.State {
		case FileStateMissing, FileStateInactive:
			return !present
		default:
			return present
		}
	}

	switch dep.Operator {
	case OperatorOr:
		for i := range dep.Children {
			if e.evalDependency(&dep.Children[i]) {
				return true
			}
		}
		return false
	default:
		for i := range dep.Children {
			if !e.evalDependency(&dep.Children[i]) {
				return false
			}
		}
		return true
	}
}

func (e *Engine) installFileList(fl *FileList) error {
	for _, folder := range fl.Folders {
		if err := e.installFolder(folder); err != nil {
			return err
		}
	}
	for _, file := range fl.Files {
		if err := e.installFile(file); err != nil {
			return err
		}
	}
	return nil
}

// installFile copies one file from the archive, overwriting any existing
// destination file.
func (e *Engine) installFile(fi FileInstall) error {
	src, ok := fsutil.ResolveCasePath(e.installRoot, fi.Source)
	if !ok {
		return fmt.Errorf("%w: source file %q not found in archive", domain.ErrFomodInvalid, fi.Source)
	}

	rel := cleanDestination(fi.Destination)
	if rel == "" {
		rel = filepath.Base(strings.ReplaceAll(fi.Source, `\`, "/"))
	}
	dest := e.destPath(rel)
	if err := fsutil.CopyFile(src, dest); err != nil {
		return err
	}
	e.recordInstalled(dest)
	return nil
}

// installFolder merges one folder tree from the archive into the
// destination using case-insensitive directory merging.
func (e *Engine) installFolder(fi FolderInstall) error {
	src, ok := fsutil.ResolveCasePath(e.installRoot, fi.Source)
	if !ok {
		return fmt.Errorf("%w: source folder %q not found in archive", domain.ErrFomodInvalid, fi.Source)
	}
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: source %q is not a folder", domain.ErrFomodInvalid, fi.Source)
	}

	dest := e.destPath(cleanDestination(fi.Destination))
	if err := fsutil.MergeCopy(src, dest); err != nil {
		return err
	}

	_ = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			e.recordInstalled(path)
		}
		return nil
	})
	return nil
}

func (e *Engine) recordInstalled(path string) {
	e.installed[strings.ToLower(filepath.Base(path))] = true
}

// cleanDestination normalises a destination attribute: separators unified,
// a bare "/" or "\" (and leading/trailing separators) meaning the root.
func cleanDestination(dest string) string {
	dest = strings.ReplaceAll(dest, `\`, "/")
	return strings.Trim(dest, "/")
}

// destPath maps a slash-relative destination onto the destination folder,
// reusing existing directory entries case-insensitively so repeated
// installs converge on one casing.
func (e *Engine) destPath(rel string) string {
	current := e.destDir
	if rel == "" {
		return current
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "." {
			continue
		}
		if existing := fsutil.FindChildFold(current, seg); existing != "" {
			current = filepath.Join(current, existing)
		} else {
			current = filepath.Join(current, seg)
		}
	}
	return current
}
