package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"2", 2, true},
		{"1,5", 1.5, true},
		{"1.25", 1.25, true},
		{"½", 0.5, true},
		{"1½", 1.5, true},
		{"1 1/2", 1.5, true},
		{"3/4", 0.75, true},
		{"2-3", 3, true},
		{"2 – 4", 4, true},
		{"ca 200", 200, true},
		{"cirka 1/2", 0.5, true},
		{"", 0, false},
		{"en nypa", 0, false},
		{"1/0", 0, false},
		{"NaN", 0, false},
		{"inf", 0, false},
		{"-Infinity", 0, false},
		{"0x10", 0, false},
		{"1e3", 0, false},
		{"nan½", 0, false},
		{"2.", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseQuantity(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestQuantityTextPriority(t *testing.T) {
	v := 2.5

	assert.Equal(t, "1 1/2", ParsedIngredient{QuantitySource: "1 1/2", QuantityParsed: &v}.QuantityText())
	assert.Equal(t, "2.5", ParsedIngredient{QuantityParsed: &v}.QuantityText())
	assert.Equal(t, "", ParsedIngredient{}.QuantityText())
}

func TestDetailsMergeLeavesMissingFieldsUntouched(t *testing.T) {
	d := NewDetails(DetailsView{Title: "Old", Description: "Keep me", Servings: 2})
	title := "Korv Stroganoff"
	servings := 4

	updated := d.Merge(Metadata{Title: &title, Servings: &servings})

	assert.Equal(t, []string{"title", "servings"}, updated)
	assert.Equal(t, DetailsView{Title: "Korv Stroganoff", Description: "Keep me", Servings: 4}, d.Snapshot())
}

func TestManagedIngredientValid(t *testing.T) {
	assert.True(t, ManagedIngredient{ID: 42, Name: "Paprika"}.Valid())
	assert.False(t, ManagedIngredient{ID: 0, Name: "Paprika"}.Valid())
	assert.False(t, ManagedIngredient{ID: 1, Name: " "}.Valid())
}
