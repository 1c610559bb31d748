// Package parse turns raw (already normalized) text into typed field
// values. All functions are total: malformed input yields zero values or
// best-effort output, never a panic or an error.
package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/labelforge/labelscan/internal/fields"
	"github.com/labelforge/labelscan/internal/textnorm"
)

var (
	priceBeforeCurrency = regexp.MustCompile(`(\d+(?:[.,]\d{1,2})?)\s*(?:€|EUR\b)`)
	priceAfterCurrency  = regexp.MustCompile(`(?:€|EUR)\s*(\d+(?:[.,]\d{1,2})?)`)
	bareDecimal         = regexp.MustCompile(`\d+[.,]\d{1,2}\b`)
	tierLine            = regexp.MustCompile(`(?i)\b(?:bis|ab)\s*(\d+)\b.*?(\d+(?:[.,]\d{1,2})?)\s*(?:€|EUR)`)
	tierLineAudit       = regexp.MustCompile(`^\s*(\d+)\s*:\s*(\d+(?:[.,]\d{1,2})?)\s*(?:€|EUR)?\s*$`)
	digitRun            = regexp.MustCompile(`[0-9]+`)
)

// Price extracts a decimal amount adjacent to a currency marker. Comma and
// dot are both accepted as the decimal separator. The boolean is false when
// no plausible numeric token exists.
func Price(text string) (float64, bool) {
	if m := priceBeforeCurrency.FindStringSubmatch(text); m != nil {
		return toFloat(m[1])
	}
	if m := priceAfterCurrency.FindStringSubmatch(text); m != nil {
		return toFloat(m[1])
	}
	// No currency marker; accept a lone decimal token as last resort.
	if m := bareDecimal.FindString(text); m != "" {
		return toFloat(m)
	}
	return 0, false
}

// TieredPrices parses a multi-line tier table. Each line is normalized
// first; lines without a quantity marker followed by a priced amount are
// OCR noise and are skipped silently. The "<quantity>: <price>" audit form
// produced by TieredPriceTable.Render is accepted too, so a rendered table
// parses back to itself. The result keeps line order; sorting is the
// validator's job.
func TieredPrices(text string) fields.TieredPriceTable {
	var table fields.TieredPriceTable
	for _, line := range strings.Split(text, "\n") {
		line = textnorm.Normalize(line)
		m := tierLine.FindStringSubmatch(line)
		if m == nil {
			m = tierLineAudit.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil || qty <= 0 {
			continue
		}
		table = append(table, fields.TieredPriceEntry{
			Quantity: qty,
			Price:    strings.ReplaceAll(m[2], ",", "."),
		})
	}
	return table
}

// ArticleNumber returns the first maximal digit run in the text. When no
// digits exist the trimmed input is returned unchanged, so the value is
// only empty for empty input.
func ArticleNumber(text string) string {
	if m := digitRun.FindString(text); m != "" {
		return m
	}
	return strings.TrimSpace(text)
}

func toFloat(token string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
