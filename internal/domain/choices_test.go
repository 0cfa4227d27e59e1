package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nexusbridge/internal/domain"
)

// choicesFixture repeats the same group name under two steps; selections
// must never leak between them.
func choicesFixture() *domain.FomodChoices {
	return &domain.FomodChoices{
		Steps: []domain.ChoiceStep{
			{
				Name: "Installation Notice",
				Groups: []domain.ChoiceGroup{
					{Name: "Read first", Options: []domain.ChoiceOption{{Name: "Proceed", Index: 0}}},
				},
			},
			{
				Name: "Choose Marker version",
				Groups: []domain.ChoiceGroup{
					{Name: "Read first", Options: []domain.ChoiceOption{{Name: "Simplified", Index: 1}}},
					{Name: "Color Variation", Options: []domain.ChoiceOption{{Name: "Non colored Main Cities", Index: 0}}},
				},
			},
		},
	}
}

func TestFomodChoices_CompositeKey(t *testing.T) {
	c := choicesFixture()

	assert.Equal(t, []string{"Proceed"}, c.SelectedOptions("Installation Notice", "Read first"))
	assert.Equal(t, []string{"Simplified"}, c.SelectedOptions("Choose Marker version", "Read first"))
	assert.Equal(t, []string{"Non colored Main Cities"}, c.SelectedOptions("Choose Marker version", "Color Variation"))

	// No leakage across steps sharing a group name
	assert.False(t, c.IsSelected("Installation Notice", "Read first", "Simplified"))
	assert.False(t, c.IsSelected("Choose Marker version", "Read first", "Proceed"))
}

func TestFomodChoices_CaseInsensitive(t *testing.T) {
	c := choicesFixture()

	assert.Equal(t, []string{"Proceed"}, c.SelectedOptions("installation notice", "READ FIRST"))
	assert.True(t, c.IsSelected("CHOOSE MARKER VERSION", "read first", "simplified"))
}

func TestFomodChoices_UnknownKey(t *testing.T) {
	c := choicesFixture()

	assert.Nil(t, c.SelectedOptions("No Such Step", "Read first"))
	assert.Nil(t, c.SelectedOptions("Installation Notice", "No Such Group"))
}

func TestFomodChoices_Empty(t *testing.T) {
	var nilChoices *domain.FomodChoices
	assert.True(t, nilChoices.Empty())
	assert.Nil(t, nilChoices.SelectedOptions("a", "b"))
	assert.True(t, (&domain.FomodChoices{}).Empty())
	assert.False(t, choicesFixture().Empty())
}
