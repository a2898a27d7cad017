package dashboard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelection(t *testing.T) {
	options := []FilterOptions{{FilterDef: DefaultFilters[4], Bounds: &Bounds{Min: 20, Max: 24}}}

	sel, err := ParseSelection(map[string][]string{
		"member":       {" Rojas "},
		"rh":           {"O+,A+", "B+"},
		"hair":         {""},
		"age":          {"22:"},
		"height":       {":170"},
		"neighborhood": {" , "},
		"unknown":      {"x"},
	}, DefaultFilters, options)
	require.NoError(t, err)

	assert.Equal(t, []string{"Rojas"}, sel.Values["member"])
	assert.Equal(t, []string{"O+", "A+", "B+"}, sel.Values["rh"])
	assert.NotContains(t, sel.Values, "hair")
	assert.NotContains(t, sel.Values, "neighborhood")
	assert.Equal(t, Bounds{Min: 22, Max: 24}, sel.Ranges["age"])
	assert.Equal(t, 170.0, sel.Ranges["height"].Max)
	assert.True(t, math.IsInf(sel.Ranges["height"].Min, -1))
}

func TestParseSelectionErrors(t *testing.T) {
	for _, v := range []string{"20", "a:b", "1:x", "30:20"} {
		_, err := ParseSelection(map[string][]string{"age": {v}}, DefaultFilters, nil)
		assert.Error(t, err, v)
	}
}

func TestParseBounds(t *testing.T) {
	def := Bounds{Min: 0, Max: 10}
	b, err := ParseBounds(":", def)
	require.NoError(t, err)
	assert.Equal(t, def, b)

	b, err = ParseBounds("2.5:7", def)
	require.NoError(t, err)
	assert.Equal(t, Bounds{Min: 2.5, Max: 7}, b)
}
