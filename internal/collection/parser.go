package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"nexusbridge/internal/domain"
)

// JSON shapes of the collection descriptor. Only the fields the installer
// needs are modelled; everything else in the descriptor is ignored.

type descriptorJSON struct {
	Info        *infoJSON        `json:"info"`
	Mods        *[]modJSON       `json:"mods"`
	ModRules    []modRuleJSON    `json:"modRules"`
	Plugins     []pluginJSON     `json:"plugins"`
	PluginRules []pluginRuleJSON `json:"pluginRules"`
}

type infoJSON struct {
	Name        string `json:"name"`
	Author      string `json:"author"`
	Description string `json:"description"`
	DomainName  string `json:"domainName"`
}

type modJSON struct {
	Name     string       `json:"name"`
	Version  string       `json:"version"`
	Author   string       `json:"author"`
	Optional bool         `json:"optional"`
	Phase    int          `json:"phase"`
	Source   sourceJSON   `json:"source"`
	Hashes   []hashJSON   `json:"hashes"`
	Choices  *choicesJSON `json:"choices"`
	Details  *detailsJSON `json:"details"`
}

type sourceJSON struct {
	Type            string `json:"type"`
	ModID           int64  `json:"modId"`
	FileID          int64  `json:"fileId"`
	MD5             string `json:"md5"`
	FileSize        int64  `json:"fileSize"`
	LogicalFilename string `json:"logicalFilename"`
	URL             string `json:"url"`
}

type detailsJSON struct {
	Category string `json:"category"`
	Type     string `json:"type"`
}

type hashJSON struct {
	Path string `json:"path"`
	MD5  string `json:"md5"`
}

type choicesJSON struct {
	Type    string     `json:"type"`
	Options []stepJSON `json:"options"`
}

type stepJSON struct {
	Name   string      `json:"name"`
	Groups []groupJSON `json:"groups"`
}

type groupJSON struct {
	Name    string       `json:"name"`
	Choices []optionJSON `json:"choices"`
}

type optionJSON struct {
	Name string `json:"name"`
	Idx  int    `json:"idx"`
}

type modRuleJSON struct {
	Type      string      `json:"type"`
	Source    ruleRefJSON `json:"source"`
	Reference ruleRefJSON `json:"reference"`
}

type ruleRefJSON struct {
	LogicalFileName string `json:"logicalFileName"`
	FileExpression  string `json:"fileExpression"`
	FileMD5         string `json:"fileMD5"`
}

type pluginJSON struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled"`
}

type pluginRuleJSON struct {
	Name  string   `json:"name"`
	After []string `json:"after"`
}

// ParseFile reads and parses a collection descriptor from disk
func ParseFile(path string) (*domain.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}
	return Parse(data)
}

// Parse parses the textual collection.json into a Collection. The parser is
// tolerant: unknown fields are ignored and missing optional fields take
// defaults (enabled=true, source type "nexus", empty rule lists). It fails
// with ErrInvalidDescriptor only when the top-level shape is unparseable or
// the mods array is absent. Referenced mods are not validated against Nexus
// here; that is the API client's concern.
func Parse(data []byte) (*domain.Collection, error) {
	var desc descriptorJSON
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDescriptor, err)
	}
	if desc.Mods == nil {
		return nil, fmt.Errorf("%w: missing mods array", domain.ErrInvalidDescriptor)
	}

	col := &domain.Collection{}
	if desc.Info != nil {
		col.Name = desc.Info.Name
		col.Author = desc.Info.Author
		col.Description = desc.Info.Description
		col.GameDomain = desc.Info.DomainName
	}
	if col.GameDomain == "" {
		col.GameDomain = "skyrimspecialedition"
	}

	for _, m := range *desc.Mods {
		col.Mods = append(col.Mods, convertMod(m))
	}
	for _, r := range desc.ModRules {
		rule, ok := convertRule(r)
		if ok {
			col.ModRules = append(col.ModRules, rule)
		}
	}
	for _, p := range desc.Plugins {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		col.Plugins = append(col.Plugins, domain.Plugin{
			Name:    normalizePath(p.Name),
			Enabled: enabled,
		})
	}
	for _, pr := range desc.PluginRules {
		if pr.Name == "" {
			continue
		}
		col.PluginRules = append(col.PluginRules, domain.PluginRule{
			Name:  pr.Name,
			After: pr.After,
		})
	}

	return col, nil
}

func convertMod(m modJSON) domain.Mod {
	mod := domain.Mod{
		Name:     strings.TrimSpace(m.Name),
		Version:  m.Version,
		Author:   m.Author,
		Optional: m.Optional,
		Phase:    m.Phase,
		Filename: m.Source.LogicalFilename,
		ModID:    m.Source.ModID,
		FileID:   m.Source.FileID,
		MD5:      strings.ToLower(m.Source.MD5),
		Size:     m.Source.FileSize,
		URL:      m.Source.URL,
	}

	switch strings.ToLower(m.Source.Type) {
	case "", "nexus":
		mod.Source = domain.SourceNexus
	case "direct", "browse":
		mod.Source = domain.SourceDirect
	default:
		mod.Source = domain.SourceNexus
	}

	for _, h := range m.Hashes {
		if h.Path != "" {
			mod.ExpectedPaths = append(mod.ExpectedPaths, normalizePath(h.Path))
		}
	}

	if m.Choices != nil && len(m.Choices.Options) > 0 {
		mod.Choices = convertChoices(m.Choices)
	}

	return mod
}

func convertChoices(c *choicesJSON) *domain.FomodChoices {
	choices := &domain.FomodChoices{}
	for _, s := range c.Options {
		step := domain.ChoiceStep{Name: strings.TrimSpace(s.Name)}
		for _, g := range s.Groups {
			group := domain.ChoiceGroup{Name: strings.TrimSpace(g.Name)}
			for _, o := range g.Choices {
				group.Options = append(group.Options, domain.ChoiceOption{
					Name:  strings.TrimSpace(o.Name),
					Index: o.Idx,
				})
			}
			step.Groups = append(step.Groups, group)
		}
		choices.Steps = append(choices.Steps, step)
	}
	return choices
}

func convertRule(r modRuleJSON) (domain.ModRule, bool) {
	var rt domain.RuleType
	switch strings.ToLower(r.Type) {
	case "before":
		rt = domain.RuleBefore
	case "after":
		rt = domain.RuleAfter
	default:
		return domain.ModRule{}, false
	}

	rule := domain.ModRule{
		Type:      rt,
		Source:    convertRuleRef(r.Source),
		Reference: convertRuleRef(r.Reference),
	}
	if rule.Source.IsZero() || rule.Reference.IsZero() {
		return domain.ModRule{}, false
	}
	return rule, true
}

func convertRuleRef(r ruleRefJSON) domain.RuleRef {
	name := r.LogicalFileName
	if name == "" {
		name = r.FileExpression
	}
	return domain.RuleRef{
		Filename: name,
		MD5:      strings.ToLower(r.FileMD5),
	}
}

// normalizePath converts embedded Windows separators to forward slashes.
// Descriptors written by Windows tooling routinely mix both.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
