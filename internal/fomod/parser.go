package fomod

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"nexusbridge/internal/domain"
)

// FindModuleConfig locates ModuleConfig.xml by recursive search: a file
// named moduleconfig.xml (any casing) whose parent directory is named fomod
// (any casing). Returns "" when the archive has no installer.
func FindModuleConfig(root string) string {
	var found string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(d.Name(), "moduleconfig.xml") &&
			strings.EqualFold(filepath.Base(filepath.Dir(path)), "fomod") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// ParseModuleConfigFile reads and parses a ModuleConfig.xml from disk
func ParseModuleConfigFile(path string) (*ModuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseModuleConfig(data)
}

// ParseModuleConfig parses ModuleConfig.xml content. UTF-16 LE/BE BOMs are
// detected and decoded, a UTF-8 BOM is stripped, and declared encodings are
// honoured; comments and processing instructions are skipped by the
// decoder. Both quote styles are valid XML and need no special casing.
func ParseModuleConfig(data []byte) (*ModuleConfig, error) {
	reader, err := charset.NewReader(bytes.NewReader(data), "application/xml")
	if err != nil {
		return nil, fmt.Errorf("%w: detecting encoding: %v", domain.ErrFomodInvalid, err)
	}

	decoder := xml.NewDecoder(reader)
	// The BOM sniffer above already transcoded UTF-16 input to UTF-8, but
	// the XML declaration may still claim utf-16; pass those through as-is
	decoder.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if strings.HasPrefix(strings.ToLower(label), "utf-16") {
			return input, nil
		}
		return charset.NewReaderLabel(label, input)
	}
	decoder.Strict = false

	var raw xmlConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFomodInvalid, err)
	}
	return convertConfig(&raw), nil
}

func convertConfig(raw *xmlConfig) *ModuleConfig {
	config := &ModuleConfig{
		ModuleName: strings.TrimSpace(raw.ModuleName.Value),
	}
	if raw.RequiredInstallFiles != nil {
		config.RequiredInstallFiles = convertFileList(raw.RequiredInstallFiles)
	}
	if raw.InstallSteps != nil {
		for _, s := range raw.InstallSteps.Steps {
			config.InstallSteps = append(config.InstallSteps, convertStep(s))
		}
	}
	if raw.ConditionalFileInstalls != nil {
		for _, p := range raw.ConditionalFileInstalls.Patterns {
			pattern := ConditionalInstallPattern{}
			if p.Dependencies != nil {
				pattern.Dependencies = convertDependency(p.Dependencies)
			}
			if p.Files != nil {
				pattern.Files = convertFileList(p.Files)
			}
			config.ConditionalFileInstalls = append(config.ConditionalFileInstalls, pattern)
		}
	}
	return config
}

func convertStep(raw xmlInstallStep) InstallStep {
	step := InstallStep{Name: raw.Name}
	if raw.OptionalFileGroups == nil {
		return step
	}
	for _, g := range raw.OptionalFileGroups.Groups {
		group := OptionGroup{Name: g.Name, Type: GroupType(g.Type)}
		if g.Plugins != nil {
			for _, p := range g.Plugins.Plugins {
				group.Plugins = append(group.Plugins, convertPlugin(p))
			}
		}
		step.Groups = append(step.Groups, group)
	}
	return step
}

func convertPlugin(raw xmlPlugin) Plugin {
	plugin := Plugin{
		Name:        raw.Name,
		Description: strings.TrimSpace(raw.Description),
	}
	if raw.Files != nil {
		plugin.Files = convertFileList(raw.Files)
	}
	if raw.ConditionFlags != nil {
		for _, f := range raw.ConditionFlags.Flags {
			plugin.ConditionFlags = append(plugin.ConditionFlags, ConditionFlag{
				Name:  f.Name,
				Value: strings.TrimSpace(f.Value),
			})
		}
	}
	return plugin
}

func convertFileList(raw *xmlFileList) *FileList {
	fl := &FileList{}
	for _, f := range raw.Files {
		fl.Files = append(fl.Files, FileInstall{
			Source:      f.Source,
			Destination: f.Destination,
			Priority:    parseInt(f.Priority),
		})
	}
	for _, f := range raw.Folders {
		fl.Folders = append(fl.Folders, FolderInstall{
			Source:      f.Source,
			Destination: f.Destination,
			Priority:    parseInt(f.Priority),
		})
	}
	return fl
}

func convertDependency(raw *xmlCompositeDependency) *Dependency {
	dep := &Dependency{Operator: OperatorAnd}
	if strings.EqualFold(raw.Operator, string(OperatorOr)) {
		dep.Operator = OperatorOr
	}
	for _, fd := range raw.FileDependencies {
		dep.Children = append(dep.Children, Dependency{
			FileDependency: &FileDependency{File: fd.File, State: FileState(fd.State)},
		})
	}
	for _, fd := range raw.FlagDependencies {
		dep.Children = append(dep.Children, Dependency{
			FlagDependency: &FlagDependency{Flag: fd.Flag, Value: fd.Value},
		})
	}
	for i := range raw.Dependencies {
		dep.Children = append(dep.Children, *convertDependency(&raw.Dependencies[i]))
	}
	return dep
}

func parseInt(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}
