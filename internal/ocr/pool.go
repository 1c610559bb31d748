// Package ocr manages the fixed set of recognition workers. Workers are
// memory-heavy, so the pool is deliberately small; callers get retry with
// backoff, per-attempt timeouts and typed failure kinds on top of the raw
// recognizer.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/labelforge/labelscan/internal/metrics"
)

// Recognizer turns one cropped image into raw text. Implementations carry
// the heavy model state; each instance handles one in-flight call at a
// time.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
	Close() error
}

// Factory constructs one worker. It is called once per configured slot at
// pool construction.
type Factory func() (Recognizer, error)

// Config holds pool tuning. Zero values fall back to the defaults below.
type Config struct {
	Workers        int
	MaxRetries     int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxFileBytes   int64
	CacheSize      int
}

// DefaultConfig returns the production pool defaults. Two workers bounds
// peak memory; the remaining values mirror the crawler's historical
// behavior.
func DefaultConfig() Config {
	return Config{
		Workers:        2,
		MaxRetries:     3,
		AttemptTimeout: 30 * time.Second,
		BackoffBase:    250 * time.Millisecond,
		BackoffMax:     5 * time.Second,
		MaxFileBytes:   10 << 20,
		CacheSize:      256,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = d.MaxFileBytes
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
}

// Pool is a fixed set of live workers with round-robin assignment.
type Pool struct {
	cfg     Config
	workers []Recognizer
	next    atomic.Uint64
	cache   *lru.Cache[string, string]
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
}

// NewPool starts the configured number of workers. Partial start failures
// are tolerated: the pool runs with whatever workers came up and only
// fails when zero workers could be constructed.
func NewPool(cfg Config, factory Factory, log *slog.Logger, m *metrics.Metrics) (*Pool, error) {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	workers := make([]Recognizer, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		w, err := factory()
		if err != nil {
			log.Warn("worker failed to start", "worker", i, "error", err)
			continue
		}
		workers = append(workers, w)
	}
	if len(workers) == 0 {
		return nil, &Error{Kind: KindPoolExhausted, Err: errors.New("no recognition workers could be started")}
	}
	if len(workers) < cfg.Workers {
		log.Warn("pool running degraded", "requested", cfg.Workers, "live", len(workers))
	}

	cache, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create recognition cache: %w", err)
	}

	return &Pool{cfg: cfg, workers: workers, cache: cache, log: log, metrics: m}, nil
}

// Size returns the number of live workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// RecognizeFile validates and recognizes one crop image. The file is
// checked before any attempt; each attempt runs under a hard timeout and
// failed attempts retry with exponential backoff up to the configured
// ceiling. Identical crops are served from the result cache.
func (p *Pool) RecognizeFile(ctx context.Context, path string) (string, error) {
	if err := p.validateFile(path); err != nil {
		p.metrics.IncError(KindInvalidInput.String())
		return "", err
	}
	if text, ok := p.cache.Get(path); ok {
		return text, nil
	}

	img, err := imaging.Open(path)
	if err != nil {
		p.metrics.IncError(KindInvalidInput.String())
		return "", &Error{Kind: KindInvalidInput, Path: path, Err: fmt.Errorf("decode image: %w", err)}
	}

	var lastErr error
	timedOut := false
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			p.metrics.IncRetries()
			p.log.Warn("retrying recognition", "path", path, "attempt", attempt, "error", lastErr)
			if err := sleepCtx(ctx, p.backoff(attempt)); err != nil {
				return "", &Error{Kind: KindRecognitionFailed, Path: path, Err: err}
			}
		}

		text, err := p.recognizeOnce(ctx, img)
		if err == nil {
			p.cache.Add(path, text)
			return text, nil
		}
		lastErr = err
		timedOut = errors.Is(err, context.DeadlineExceeded)
		if ctx.Err() != nil {
			break
		}
	}

	kind := KindRecognitionFailed
	if timedOut {
		kind = KindTimeout
	}
	p.metrics.IncError(kind.String())
	return "", &Error{Kind: kind, Path: path, Err: lastErr}
}

// recognizeOnce runs a single attempt on the next worker in round-robin
// order. The attempt is abandoned, not just logged, when the timeout
// fires: a stuck worker call finishes in the background but its result is
// discarded.
func (p *Pool) recognizeOnce(ctx context.Context, img image.Image) (string, error) {
	worker := p.workers[p.next.Add(1)%uint64(len(p.workers))]

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		text, err := worker.Recognize(attemptCtx, img)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		p.metrics.ObserveRecognition(time.Since(start))
		return out.text, out.err
	case <-attemptCtx.Done():
		p.metrics.ObserveRecognition(time.Since(start))
		return "", attemptCtx.Err()
	}
}

func (p *Pool) validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &Error{Kind: KindInvalidInput, Path: path, Err: err}
	}
	if info.Size() == 0 {
		return &Error{Kind: KindInvalidInput, Path: path, Err: errors.New("file is empty")}
	}
	if info.Size() > p.cfg.MaxFileBytes {
		return &Error{
			Kind: KindInvalidInput,
			Path: path,
			Err:  fmt.Errorf("file size %d exceeds limit %d", info.Size(), p.cfg.MaxFileBytes),
		}
	}
	return nil
}

func (p *Pool) backoff(attempt int) time.Duration {
	// Cap the shift so high retry counts cannot overflow the duration.
	shift := attempt - 1
	if shift > 30 {
		return p.cfg.BackoffMax
	}
	d := p.cfg.BackoffBase << shift
	if d <= 0 || d > p.cfg.BackoffMax {
		d = p.cfg.BackoffMax
	}
	return d
}

// Shutdown tears down every worker. A failing teardown is logged and does
// not block teardown of the remaining workers. The round-robin counter
// resets to zero.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	for i, w := range p.workers {
		if err := w.Close(); err != nil {
			p.log.Warn("worker teardown failed", "worker", i, "error", err)
		}
	}
	p.next.Store(0)
	p.cache.Purge()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
