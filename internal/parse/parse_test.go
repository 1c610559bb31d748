package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelforge/labelscan/internal/fields"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
		ok   bool
	}{
		{"comma before euro sign", "11,96 €", 11.96, true},
		{"dot before euro sign", "9.50€", 9.5, true},
		{"currency code", "12,00 EUR", 12.0, true},
		{"currency first", "€ 4,20", 4.2, true},
		{"surrounding text", "Preis: 8,75 € pro Stück", 8.75, true},
		{"bare decimal fallback", "ca. 3,40", 3.4, true},
		{"no numeric token", "auf Anfrage", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Price(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestTieredPrices_NoisyScreenshotText(t *testing.T) {
	raw := "Bis9 11,96 €&*\nBis 19 10,64 €*\nAbSO 9,30 €*"
	table := TieredPrices(raw)
	require.Len(t, table, 3)
	assert.Equal(t, fields.TieredPriceTable{
		{Quantity: 9, Price: "11.96"},
		{Quantity: 19, Price: "10.64"},
		{Quantity: 50, Price: "9.30"},
	}, table)
	assert.True(t, table.IsAscending())
}

func TestTieredPrices_SkipsNoiseLines(t *testing.T) {
	raw := "Staffelpreise\nBis 10 9,50 €\n~~~###\nAb 50 8,75 €\n"
	table := TieredPrices(raw)
	require.Len(t, table, 2)
	assert.Equal(t, 10, table[0].Quantity)
	assert.Equal(t, "9.50", table[0].Price)
	assert.Equal(t, 50, table[1].Quantity)
	assert.Equal(t, "8.75", table[1].Price)
}

func TestTieredPrices_RenderRoundTrip(t *testing.T) {
	table := fields.TieredPriceTable{
		{Quantity: 10, Price: "9.50"},
		{Quantity: 50, Price: "8.75"},
	}
	again := TieredPrices(table.Render())
	assert.Equal(t, table, again)
}

func TestTieredPrices_AuditForm(t *testing.T) {
	table := TieredPrices("9: 11.96\n19: 10,64 €\n50: 9.30")
	require.Len(t, table, 3)
	assert.Equal(t, fields.TieredPriceTable{
		{Quantity: 9, Price: "11.96"},
		{Quantity: 19, Price: "10.64"},
		{Quantity: 50, Price: "9.30"},
	}, table)
}

func TestTieredPrices_EmptyInput(t *testing.T) {
	assert.Empty(t, TieredPrices(""))
	assert.Empty(t, TieredPrices("kein Preis hier"))
}

func TestArticleNumber(t *testing.T) {
	assert.Equal(t, "123456", ArticleNumber("Art.-Nr. 123456"))
	assert.Equal(t, "98765", ArticleNumber("98765 / Variante B2"))
	assert.Equal(t, "auf Anfrage", ArticleNumber("  auf Anfrage  "))
	assert.Equal(t, "", ArticleNumber(""))
}
