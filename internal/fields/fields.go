package fields

import (
	"fmt"
	"sort"
	"strings"
)

// FieldName identifies one of the extracted product fields. The set is
// closed; merge and confidence logic is keyed by it throughout.
type FieldName string

const (
	FieldProductName   FieldName = "productName"
	FieldDescription   FieldName = "description"
	FieldArticleNumber FieldName = "articleNumber"
	FieldPrice         FieldName = "price"
	FieldTieredPrices  FieldName = "tieredPrices"
)

// All returns the closed field set in its canonical order.
func All() []FieldName {
	return []FieldName{
		FieldProductName,
		FieldDescription,
		FieldArticleNumber,
		FieldPrice,
		FieldTieredPrices,
	}
}

// SourceTag records which source's value was selected for a field and
// under which confidence regime.
type SourceTag string

const (
	SourceHTML         SourceTag = "html"
	SourceOCR          SourceTag = "ocr"
	SourceHTMLFallback SourceTag = "html-fallback"
	SourceOCRFallback  SourceTag = "ocr-fallback"
	SourceNone         SourceTag = "none"
)

// ConfidenceMap maps a field to a trust score in [0,1].
type ConfidenceMap map[FieldName]float64

// TieredPriceEntry is one row of a quantity-dependent price table. Price
// keeps its decimal string form (dot separator after auto-fix).
type TieredPriceEntry struct {
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// TieredPriceTable is an ordered sequence of tier entries, canonically
// ascending by quantity.
type TieredPriceTable []TieredPriceEntry

// Sorted returns a copy sorted ascending by quantity with duplicate
// quantities removed (first occurrence wins).
func (t TieredPriceTable) Sorted() TieredPriceTable {
	if len(t) == 0 {
		return nil
	}
	out := make(TieredPriceTable, len(t))
	copy(out, t)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	dedup := out[:0]
	for _, e := range out {
		if len(dedup) > 0 && dedup[len(dedup)-1].Quantity == e.Quantity {
			continue
		}
		dedup = append(dedup, e)
	}
	return dedup
}

// IsAscending reports whether quantities are strictly ascending.
func (t TieredPriceTable) IsAscending() bool {
	for i := 1; i < len(t); i++ {
		if t[i].Quantity <= t[i-1].Quantity {
			return false
		}
	}
	return true
}

// Render produces the human-readable audit form of the table, one
// "<quantity>: <price>" row per line.
func (t TieredPriceTable) Render() string {
	if len(t) == 0 {
		return ""
	}
	rows := make([]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, fmt.Sprintf("%d: %s", e.Quantity, e.Price))
	}
	return strings.Join(rows, "\n")
}

// SourceRecord is a partial per-source extraction. Nil pointers and empty
// tables mean the source did not produce the field.
type SourceRecord struct {
	ProductName   *string          `json:"productName,omitempty"`
	Description   *string          `json:"description,omitempty"`
	ArticleNumber *string          `json:"articleNumber,omitempty"`
	Price         *float64         `json:"price,omitempty"`
	TieredPrices  TieredPriceTable `json:"tieredPrices,omitempty"`

	// TierText is the raw human-readable rendering of the tier table,
	// carried for audit purposes only.
	TierText string `json:"tierText,omitempty"`
}

// Has reports whether the record carries a value for the given field.
func (r *SourceRecord) Has(f FieldName) bool {
	if r == nil {
		return false
	}
	switch f {
	case FieldProductName:
		return r.ProductName != nil && *r.ProductName != ""
	case FieldDescription:
		return r.Description != nil && *r.Description != ""
	case FieldArticleNumber:
		return r.ArticleNumber != nil && *r.ArticleNumber != ""
	case FieldPrice:
		return r.Price != nil
	case FieldTieredPrices:
		return len(r.TieredPrices) > 0
	default:
		return false
	}
}

// Copy returns a deep copy of the record.
func (r *SourceRecord) Copy() *SourceRecord {
	if r == nil {
		return nil
	}
	out := &SourceRecord{TierText: r.TierText}
	if r.ProductName != nil {
		v := *r.ProductName
		out.ProductName = &v
	}
	if r.Description != nil {
		v := *r.Description
		out.Description = &v
	}
	if r.ArticleNumber != nil {
		v := *r.ArticleNumber
		out.ArticleNumber = &v
	}
	if r.Price != nil {
		v := *r.Price
		out.Price = &v
	}
	if len(r.TieredPrices) > 0 {
		out.TieredPrices = make(TieredPriceTable, len(r.TieredPrices))
		copy(out.TieredPrices, r.TieredPrices)
	}
	return out
}

// Set assigns the given field from another record's value for that field.
func (r *SourceRecord) Set(f FieldName, from *SourceRecord) {
	if from == nil {
		return
	}
	switch f {
	case FieldProductName:
		r.ProductName = from.ProductName
	case FieldDescription:
		r.Description = from.Description
	case FieldArticleNumber:
		r.ArticleNumber = from.ArticleNumber
	case FieldPrice:
		r.Price = from.Price
	case FieldTieredPrices:
		r.TieredPrices = from.TieredPrices
	}
}

// ExtractionResult is the outcome of one reconciliation run for one
// product identifier. It is fully populated before being returned and is
// not mutated afterwards.
type ExtractionResult struct {
	Identifier string                  `json:"identifier"`
	Success    bool                    `json:"success"`
	Merged     SourceRecord            `json:"merged"`
	Confidence ConfidenceMap           `json:"confidence"`
	Source     map[FieldName]SourceTag `json:"source"`
	Errors     []string                `json:"errors,omitempty"`
	Warnings   []string                `json:"warnings,omitempty"`
}

// HasCriticalFields reports whether the merged record carries the data
// needed for the result to count as usable: a product name, an article
// number, and at least one of a unit price or a non-empty tier table.
// Presence is what counts here, not confidence.
func (r *ExtractionResult) HasCriticalFields() bool {
	return r.Merged.Has(FieldProductName) &&
		r.Merged.Has(FieldArticleNumber) &&
		(r.Merged.Has(FieldPrice) || r.Merged.Has(FieldTieredPrices))
}
