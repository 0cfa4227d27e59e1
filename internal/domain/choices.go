package domain

import "strings"

// ChoiceOption is one selected option inside a FOMOD group
type ChoiceOption struct {
	Name  string
	Index int
}

// ChoiceGroup is an ordered set of selected options for one named group
type ChoiceGroup struct {
	Name    string
	Options []ChoiceOption
}

// ChoiceStep is one FOMOD install step with its selected groups
type ChoiceStep struct {
	Name   string
	Groups []ChoiceGroup
}

// FomodChoices records the collection author's FOMOD selections for one mod.
//
// Lookup is always by the (stepName, groupName) composite key: group names
// are not unique across steps ("Read first" appears under several steps in
// real collections), so indexing by group name alone would leak selections
// between steps. All name comparisons are case-insensitive.
type FomodChoices struct {
	Steps []ChoiceStep
}

// Empty reports whether no selections were recorded at all
func (c *FomodChoices) Empty() bool {
	return c == nil || len(c.Steps) == 0
}

// SelectedOptions returns the option names selected for the given step and
// group, or nil when the composite key has no recorded selections.
func (c *FomodChoices) SelectedOptions(stepName, groupName string) []string {
	if c == nil {
		return nil
	}
	for _, step := range c.Steps {
		if !strings.EqualFold(step.Name, stepName) {
			continue
		}
		for _, group := range step.Groups {
			if !strings.EqualFold(group.Name, groupName) {
				continue
			}
			names := make([]string, 0, len(group.Options))
			for _, opt := range group.Options {
				names = append(names, opt.Name)
			}
			return names
		}
	}
	return nil
}

// IsSelected reports whether the named option is selected for the step/group
// pair, comparing case-insensitively.
func (c *FomodChoices) IsSelected(stepName, groupName, optionName string) bool {
	for _, name := range c.SelectedOptions(stepName, groupName) {
		if strings.EqualFold(name, optionName) {
			return true
		}
	}
	return false
}
