// Package batch drives the reconciliation pipeline across many product
// identifiers. Identifiers are processed in fixed-size chunks: all items
// in a chunk run concurrently, chunks run strictly one after another, so
// peak worker contention is bounded by the chunk size rather than the
// batch size.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labelforge/labelscan/internal/dom"
	"github.com/labelforge/labelscan/internal/fields"
	"github.com/labelforge/labelscan/internal/merge"
	"github.com/labelforge/labelscan/internal/metrics"
	"github.com/labelforge/labelscan/internal/ocr"
	"github.com/labelforge/labelscan/internal/parse"
	"github.com/labelforge/labelscan/internal/textnorm"
)

// Fixed crop filenames the crawler writes into each product's directory,
// one per logical field.
var cropFiles = map[fields.FieldName]string{
	fields.FieldProductName:   "product-name.png",
	fields.FieldDescription:   "description.png",
	fields.FieldArticleNumber: "article-number.png",
	fields.FieldPrice:         "price.png",
	fields.FieldTieredPrices:  "price-table.png",
}

// Config holds orchestrator tuning. Zero values use the defaults below.
type Config struct {
	CropsDir     string
	DOMDir       string
	ChunkSize    int
	HygieneEvery int           // run a memory-hygiene pass after every N chunks
	DOMMaxAge    time.Duration // warn when a DOM snapshot is older (0 disables)
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 5
	}
	if c.HygieneEvery <= 0 {
		c.HygieneEvery = 10
	}
}

// Stats is a snapshot of the running counters.
type Stats struct {
	Processed   uint64  `json:"processed"`
	Failed      uint64  `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

// Processor owns the worker pool and the merge engine and runs batches.
type Processor struct {
	cfg     Config
	pool    *ocr.Pool
	engine  *merge.Engine
	log     *slog.Logger
	metrics *metrics.Metrics

	processed atomic.Uint64
	failed    atomic.Uint64

	// hygiene runs between chunks; overridable in tests.
	hygiene func()
}

// NewProcessor wires the orchestrator. Pool and engine are owned by the
// processor from here on; Shutdown tears the pool down.
func NewProcessor(cfg Config, pool *ocr.Pool, engine *merge.Engine, log *slog.Logger, m *metrics.Metrics) *Processor {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	p := &Processor{cfg: cfg, pool: pool, engine: engine, log: log, metrics: m}
	p.hygiene = p.memoryHygiene
	return p
}

// ProcessBatch reconciles every identifier and returns one result per
// input, in input order. Per-item failures yield success=false entries;
// only a catastrophic failure of the batch loop itself degrades to an
// empty list, which callers must treat as "batch could not run".
func (p *Processor) ProcessBatch(ctx context.Context, identifiers []string) (results []fields.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("batch loop failed", "panic", r)
			results = nil
		}
	}()

	results = make([]fields.ExtractionResult, len(identifiers))
	chunkCount := 0
	for start := 0; start < len(identifiers); start += p.cfg.ChunkSize {
		end := min(start+p.cfg.ChunkSize, len(identifiers))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int, id string) {
				defer wg.Done()
				results[idx] = p.safeProcess(ctx, id)
			}(i, identifiers[i])
		}
		wg.Wait()

		for i := start; i < end; i++ {
			p.processed.Add(1)
			p.metrics.IncProcessed()
			if !results[i].Success {
				p.failed.Add(1)
				p.metrics.IncFailed()
			}
		}
		p.metrics.SetSuccessRate(p.Stats().SuccessRate)

		chunkCount++
		if chunkCount%p.cfg.HygieneEvery == 0 {
			p.hygiene()
		}
	}
	return results
}

// safeProcess shields the batch loop from anything a single item throws.
func (p *Processor) safeProcess(ctx context.Context, id string) (res fields.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("product processing failed", "identifier", id, "panic", r)
			res = fields.ExtractionResult{
				Identifier: id,
				Confidence: fields.ConfidenceMap{},
				Source:     map[fields.FieldName]fields.SourceTag{},
				Errors:     []string{fmt.Sprintf("processing failed: %v", r)},
			}
		}
	}()
	return p.processOne(ctx, id)
}

func (p *Processor) processOne(ctx context.Context, id string) fields.ExtractionResult {
	dir := filepath.Join(p.cfg.CropsDir, id)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fields.ExtractionResult{
			Identifier: id,
			Confidence: fields.ConfidenceMap{},
			Source:     map[fields.FieldName]fields.SourceTag{},
			Errors:     []string{fmt.Sprintf("crop directory not found: %s", dir)},
		}
	}

	var preErrors, preWarnings []string

	domRec := p.loadDOM(id, &preWarnings)
	ocrRec := p.recognizeCrops(ctx, dir, &preErrors)

	res := p.engine.Merge(id, domRec, ocrRec)
	res.Errors = append(preErrors, res.Errors...)
	res.Warnings = append(preWarnings, res.Warnings...)
	return res
}

func (p *Processor) loadDOM(id string, warnings *[]string) *fields.SourceRecord {
	if p.cfg.DOMDir == "" {
		return nil
	}
	snap, err := dom.LoadForProduct(p.cfg.DOMDir, id)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("dom snapshot unreadable, running OCR-only: %v", err))
		return nil
	}
	if snap == nil {
		return nil
	}
	if p.cfg.DOMMaxAge > 0 {
		if age := snap.Age(time.Now()); age > p.cfg.DOMMaxAge {
			*warnings = append(*warnings, fmt.Sprintf("dom snapshot is stale (%s old)", age.Round(time.Minute)))
		}
	}
	rec := snap.Record.Copy()
	if rec.TierText == "" && len(rec.TieredPrices) > 0 {
		rec.TierText = rec.TieredPrices.Render()
	}
	return rec
}

// recognizeCrops runs the per-field crop images through the pool and
// parses the recognized text. A missing or invalid crop is a silent skip
// for optional fields and an error entry for the article-number crop; a
// recognition failure after retries is an error entry for that field only.
func (p *Processor) recognizeCrops(ctx context.Context, dir string, errs *[]string) *fields.SourceRecord {
	rec := &fields.SourceRecord{}
	for _, f := range fields.All() {
		path := filepath.Join(dir, cropFiles[f])
		text, err := p.pool.RecognizeFile(ctx, path)
		if err != nil {
			if kind, ok := ocr.KindOf(err); ok && kind == ocr.KindInvalidInput {
				if f == fields.FieldArticleNumber {
					*errs = append(*errs, fmt.Sprintf("article number crop unusable: %v", err))
				} else {
					p.log.Debug("crop skipped", "field", f, "error", err)
				}
				continue
			}
			*errs = append(*errs, fmt.Sprintf("ocr failed for %s: %v", f, err))
			continue
		}

		switch f {
		case fields.FieldProductName:
			if v := strings.TrimSpace(textnorm.Normalize(text)); v != "" {
				rec.ProductName = &v
			}
		case fields.FieldDescription:
			if v := strings.TrimSpace(textnorm.Normalize(text)); v != "" {
				rec.Description = &v
			}
		case fields.FieldArticleNumber:
			if v := parse.ArticleNumber(textnorm.Normalize(text)); v != "" {
				rec.ArticleNumber = &v
			}
		case fields.FieldPrice:
			if v, ok := parse.Price(textnorm.Normalize(text)); ok {
				rec.Price = &v
			}
		case fields.FieldTieredPrices:
			if table := parse.TieredPrices(text); len(table) > 0 {
				rec.TieredPrices = table
				rec.TierText = strings.TrimSpace(text)
			}
		}
	}
	return rec
}

// memoryHygiene nudges the runtime to return memory between chunks. The
// recognition workers hold large buffers, so without the periodic pass
// long batches accumulate freed-but-retained pages.
func (p *Processor) memoryHygiene() {
	runtime.GC()
	debug.FreeOSMemory()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	p.log.Debug("memory hygiene pass",
		"alloc_bytes", m.Alloc,
		"sys_bytes", m.Sys,
		"num_gc", m.NumGC,
		"goroutines", runtime.NumGoroutine(),
	)
}

// Stats returns the running counters. They accumulate across batches and
// reset on Shutdown, not per batch.
func (p *Processor) Stats() Stats {
	processed := p.processed.Load()
	failed := p.failed.Load()
	s := Stats{Processed: processed, Failed: failed}
	if processed > 0 {
		s.SuccessRate = float64(processed-failed) / float64(processed)
	}
	return s
}

// Shutdown tears down the worker pool and resets the counters.
func (p *Processor) Shutdown() {
	p.pool.Shutdown()
	p.processed.Store(0)
	p.failed.Store(0)
}
