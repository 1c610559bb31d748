// Package validate scores extracted source records. AutoFix must run
// before Validate: confidence is always computed over the corrected values
// that flow downstream, never over raw pre-fix data.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labelforge/labelscan/internal/fields"
)

// Limits holds the domain plausibility bounds used during validation.
type Limits struct {
	MinNameLen int
	MaxPrice   float64
}

// DefaultLimits returns the bounds used by the production pipeline.
func DefaultLimits() Limits {
	return Limits{MinNameLen: 3, MaxPrice: 100000}
}

// AutoFix repairs a record in place: trims text fields, normalizes tier
// price strings to dot decimals and restores ascending tier order. It
// returns human-readable notes for every repair it applied, so the caller
// can surface them as warnings next to confidence computed on the fixed
// values.
func AutoFix(rec *fields.SourceRecord) []string {
	if rec == nil {
		return nil
	}
	var notes []string

	trim := func(p **string) {
		if *p == nil {
			return
		}
		v := strings.TrimSpace(**p)
		if v == "" {
			*p = nil
			return
		}
		**p = v
	}
	trim(&rec.ProductName)
	trim(&rec.Description)
	trim(&rec.ArticleNumber)

	for i := range rec.TieredPrices {
		rec.TieredPrices[i].Price = strings.ReplaceAll(
			strings.TrimSpace(rec.TieredPrices[i].Price), ",", ".")
	}
	if len(rec.TieredPrices) > 1 && !rec.TieredPrices.IsAscending() {
		sorted := rec.TieredPrices.Sorted()
		if dropped := len(rec.TieredPrices) - len(sorted); dropped > 0 {
			notes = append(notes, fmt.Sprintf(
				"%d tier entries with duplicate quantities were dropped (first occurrence kept)", dropped))
		}
		rec.TieredPrices = sorted
		notes = append(notes, "tiered prices were not strictly ascending and were reordered")
	}
	return notes
}

// Validate assigns a per-field confidence to an already-fixed record and
// collects data-quality warnings. Absent fields score zero and produce no
// warning; present but suspect values keep their data and get a reduced
// score plus a warning. Never drops data.
func (l Limits) Validate(rec *fields.SourceRecord) (fields.ConfidenceMap, []string) {
	conf := fields.ConfidenceMap{}
	var warnings []string
	if rec == nil {
		return conf, warnings
	}

	if rec.Has(fields.FieldProductName) {
		if len([]rune(*rec.ProductName)) >= l.MinNameLen {
			conf[fields.FieldProductName] = 0.95
		} else {
			conf[fields.FieldProductName] = 0.4
			warnings = append(warnings,
				fmt.Sprintf("product name %q is shorter than %d characters", *rec.ProductName, l.MinNameLen))
		}
	}

	if rec.Has(fields.FieldDescription) {
		if len([]rune(*rec.Description)) >= l.MinNameLen {
			conf[fields.FieldDescription] = 0.85
		} else {
			conf[fields.FieldDescription] = 0.5
			warnings = append(warnings, "description is implausibly short")
		}
	}

	if rec.Has(fields.FieldArticleNumber) {
		if isDigits(*rec.ArticleNumber) {
			conf[fields.FieldArticleNumber] = 0.95
		} else {
			conf[fields.FieldArticleNumber] = 0.55
			warnings = append(warnings,
				fmt.Sprintf("article number %q contains non-digit characters", *rec.ArticleNumber))
		}
	}

	if rec.Has(fields.FieldPrice) {
		if p := *rec.Price; p > 0 && p <= l.MaxPrice {
			conf[fields.FieldPrice] = 0.9
		} else {
			conf[fields.FieldPrice] = 0.3
			warnings = append(warnings,
				fmt.Sprintf("price %.2f is outside the plausible range (0, %.0f]", *rec.Price, l.MaxPrice))
		}
	}

	if rec.Has(fields.FieldTieredPrices) {
		score := 0.85
		for _, e := range rec.TieredPrices {
			if e.Quantity <= 0 {
				score = 0.5
				warnings = append(warnings,
					fmt.Sprintf("tier entry has non-positive quantity %d", e.Quantity))
			}
			if v, err := strconv.ParseFloat(e.Price, 64); err != nil || v <= 0 {
				score = 0.5
				warnings = append(warnings,
					fmt.Sprintf("tier entry for quantity %d has unparseable price %q", e.Quantity, e.Price))
			}
		}
		conf[fields.FieldTieredPrices] = score
	}

	return conf, warnings
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
