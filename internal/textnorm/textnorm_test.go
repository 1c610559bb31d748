package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_QuantityMarkers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"glued marker", "Bis9 11,96 €", "Bis 9 11,96 €"},
		{"misread fifty", "AbSO 9,30 €", "Ab 50 9,30 €"},
		{"misread fifty with space", "Ab SO 9,30 €", "Ab 50 9,30 €"},
		{"misread marker word", "B1s 20 4,10 €", "Bis 20 4,10 €"},
		{"correct text untouched", "Bis 50 8,75 €", "Bis 50 8,75 €"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_DigitLookalikes(t *testing.T) {
	assert.Equal(t, "Ab 100 2,50 €", Normalize("Ab 1O0 2,50 €"))
	assert.Equal(t, "Bis 10 11,96 €", Normalize("Bis 1o 11,96 €"))
	assert.Equal(t, "Ab 111 2,50 €", Normalize("Ab 1l1 2,50 €"))
	// Overlapping contexts resolve completely.
	assert.Equal(t, "Bis 10203 1,00 €", Normalize("Bis 1O2O3 1,00 €"))
}

func TestNormalize_StraySymbols(t *testing.T) {
	assert.Equal(t, "Bis 19 10,64 €", Normalize("Bis 19 10,64 €*"))
	assert.Equal(t, "Bis 9 11,96 €", Normalize("Bis9 11,96 €&*"))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Bis9 11,96 €&*\nBis 19 10,64 €*\nAbSO 9,30 €*",
		"Ab 50 9,30 €",
		"Edelstahlschraube M8 Torx",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestNormalize_LeavesWordsAlone(t *testing.T) {
	// Legitimate substrings must never trigger a rule.
	in := "Absolut solide Bolzen, Sorte A, Isolierung"
	assert.Equal(t, in, Normalize(in))
}
