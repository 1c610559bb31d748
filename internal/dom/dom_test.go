package dom

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelforge/labelscan/internal/fields"
)

func TestLoadForProduct(t *testing.T) {
	dir := t.TempDir()
	payload := `{
		"record": {
			"productName": "Sechskantschraube M8",
			"articleNumber": "123456",
			"tieredPrices": [
				{"quantity": 10, "price": "9.50"},
				{"quantity": 50, "price": "8.75"}
			]
		},
		"confidence": {"productName": 1.0, "articleNumber": 1.0, "tieredPrices": 1.0},
		"capturedAt": "2026-08-12T09:30:00Z"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p1.json"), []byte(payload), 0o600))

	snap, err := LoadForProduct(dir, "p1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "Sechskantschraube M8", *snap.Record.ProductName)
	assert.Equal(t, "123456", *snap.Record.ArticleNumber)
	require.Len(t, snap.Record.TieredPrices, 2)
	assert.InDelta(t, 1.0, snap.Confidence[fields.FieldProductName], 1e-9)

	age := snap.Age(time.Date(2026, 8, 13, 9, 30, 0, 0, time.UTC))
	assert.Equal(t, 24*time.Hour, age)
}

func TestLoadForProduct_MissingFileIsNotAnError(t *testing.T) {
	snap, err := LoadForProduct(t.TempDir(), "absent")
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
