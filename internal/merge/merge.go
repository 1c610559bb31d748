// Package merge reconciles the DOM-extracted and OCR-extracted views of a
// product into one record, choosing per field by fixed-then-validated
// confidence and recording which source won and why.
package merge

import (
	"fmt"
	"log/slog"

	"github.com/labelforge/labelscan/internal/fields"
	"github.com/labelforge/labelscan/internal/validate"
)

// Thresholds are the confidence bands driving source selection: at or
// above High a value is preferred outright, at or above Low it is usable
// as primary, below Low it is fallback-only and always warned about.
type Thresholds struct {
	High float64
	Low  float64
}

// DefaultThresholds returns the production bands.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.8, Low: 0.6}
}

// Scorer assigns per-field confidence and warnings to a fixed record.
// validate.Limits is the production implementation.
type Scorer interface {
	Validate(rec *fields.SourceRecord) (fields.ConfidenceMap, []string)
}

// Engine merges per-source records field by field.
type Engine struct {
	scorer     Scorer
	thresholds Thresholds
	log        *slog.Logger
}

// NewEngine builds a merge engine. A nil scorer uses the default limits, a
// nil logger falls back to the default logger.
func NewEngine(scorer Scorer, thresholds Thresholds, log *slog.Logger) *Engine {
	if scorer == nil {
		scorer = validate.DefaultLimits()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{scorer: scorer, thresholds: thresholds, log: log}
}

// Merge reconciles the two source records for one product. domRec may be
// nil when no DOM snapshot exists. Any panic inside the merge is converted
// into a success=false result; it never escapes to the batch loop.
func (e *Engine) Merge(id string, domRec, ocrRec *fields.SourceRecord) (res fields.ExtractionResult) {
	res = fields.ExtractionResult{
		Identifier: id,
		Confidence: fields.ConfidenceMap{},
		Source:     map[fields.FieldName]fields.SourceTag{},
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("merge failed", "identifier", id, "panic", r)
			res = fields.ExtractionResult{
				Identifier: id,
				Success:    false,
				Confidence: fields.ConfidenceMap{},
				Source:     map[fields.FieldName]fields.SourceTag{},
				Errors:     []string{fmt.Sprintf("merge failed: %v", r)},
			}
		}
	}()

	// Fix both candidates independently, then score the fixed values.
	dom := domRec.Copy()
	ocr := ocrRec.Copy()
	for _, note := range validate.AutoFix(dom) {
		res.Warnings = append(res.Warnings, "dom: "+note)
	}
	for _, note := range validate.AutoFix(ocr) {
		res.Warnings = append(res.Warnings, "ocr: "+note)
	}
	domConf, domWarnings := e.scorer.Validate(dom)
	ocrConf, ocrWarnings := e.scorer.Validate(ocr)
	for _, w := range domWarnings {
		res.Warnings = append(res.Warnings, "dom: "+w)
	}
	for _, w := range ocrWarnings {
		res.Warnings = append(res.Warnings, "ocr: "+w)
	}

	for _, f := range fields.All() {
		e.selectField(&res, f, dom, ocr, domConf[f], ocrConf[f])
	}

	// The audit rendering of the tier table is informational only: prefer
	// the DOM rendering, fall back to OCR, no confidence gating.
	switch {
	case dom != nil && dom.TierText != "":
		res.Merged.TierText = dom.TierText
	case ocr != nil && ocr.TierText != "":
		res.Merged.TierText = ocr.TierText
	}

	res.Success = res.HasCriticalFields()
	return res
}

// selectField applies the fixed priority chain for one field. The first
// matching rule wins; later rules are never consulted.
func (e *Engine) selectField(
	res *fields.ExtractionResult,
	f fields.FieldName,
	dom, ocr *fields.SourceRecord,
	domConf, ocrConf float64,
) {
	domHas := dom.Has(f)
	ocrHas := ocr.Has(f)

	switch {
	case domHas && domConf >= e.thresholds.High:
		res.Merged.Set(f, dom)
		res.Confidence[f] = domConf
		res.Source[f] = fields.SourceHTML

	case ocrHas && ocrConf >= e.thresholds.Low:
		res.Merged.Set(f, ocr)
		res.Confidence[f] = ocrConf
		res.Source[f] = fields.SourceOCR
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("using OCR fallback for %s", f))

	case domHas && domConf > ocrConf:
		res.Merged.Set(f, dom)
		res.Confidence[f] = domConf
		res.Source[f] = fields.SourceHTMLFallback
		if domConf < e.thresholds.High {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("low confidence %.2f for %s (html-fallback)", domConf, f))
		}

	case ocrHas:
		res.Merged.Set(f, ocr)
		res.Confidence[f] = ocrConf
		res.Source[f] = fields.SourceOCRFallback
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("low confidence %.2f for %s (ocr-fallback)", ocrConf, f))

	default:
		res.Source[f] = fields.SourceNone
	}
}
