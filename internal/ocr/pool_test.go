package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	mu       sync.Mutex
	calls    int
	closed   bool
	closeErr error
	fn       func(ctx context.Context, attempt int) (string, error)
}

func (s *stubRecognizer) Recognize(ctx context.Context, _ image.Image) (string, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, n)
	}
	return "ok", nil
}

func (s *stubRecognizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *stubRecognizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func writeTestCrop(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return path
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.AttemptTimeout = 200 * time.Millisecond
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond
	return cfg
}

func TestNewPool_PartialStartTolerated(t *testing.T) {
	built := 0
	factory := func() (Recognizer, error) {
		built++
		if built%2 == 0 {
			return nil, errors.New("model load failed")
		}
		return &stubRecognizer{}, nil
	}
	cfg := fastConfig()
	cfg.Workers = 4
	pool, err := NewPool(cfg, factory, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Size())
	pool.Shutdown()
}

func TestNewPool_AllWorkersFailIsFatal(t *testing.T) {
	factory := func() (Recognizer, error) { return nil, errors.New("no model") }
	cfg := fastConfig()
	cfg.Workers = 4
	_, err := NewPool(cfg, factory, nil, nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindPoolExhausted, kind)
}

func TestBackoff_HighAttemptsClampToMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	pool, err := NewPool(cfg, func() (Recognizer, error) {
		return &stubRecognizer{}, nil
	}, nil, nil)
	require.NoError(t, err)
	defer pool.Shutdown()

	assert.Equal(t, cfg.BackoffBase, pool.backoff(1))
	assert.Equal(t, 2*cfg.BackoffBase, pool.backoff(2))
	// Shifts wide enough to overflow the duration still clamp to the
	// ceiling instead of going negative.
	for _, attempt := range []int{36, 64, 100} {
		assert.Equal(t, cfg.BackoffMax, pool.backoff(attempt))
	}
}

func TestRecognizeFile_InvalidInputRejectedBeforeAttempt(t *testing.T) {
	stub := &stubRecognizer{}
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.MaxFileBytes = 64
	pool, err := NewPool(cfg, func() (Recognizer, error) { return stub, nil }, nil, nil)
	require.NoError(t, err)
	defer pool.Shutdown()

	dir := t.TempDir()

	// Missing file.
	_, err = pool.RecognizeFile(context.Background(), filepath.Join(dir, "absent.png"))
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, kind)

	// Empty file.
	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = pool.RecognizeFile(context.Background(), empty)
	kind, _ = KindOf(err)
	assert.Equal(t, KindInvalidInput, kind)

	// Oversized file.
	big := filepath.Join(dir, "big.png")
	require.NoError(t, os.WriteFile(big, make([]byte, 128), 0o600))
	_, err = pool.RecognizeFile(context.Background(), big)
	kind, _ = KindOf(err)
	assert.Equal(t, KindInvalidInput, kind)

	// No recognition attempt was ever made.
	assert.Zero(t, stub.callCount())
}

func TestRecognizeFile_RetriesWithBackoffThenSucceeds(t *testing.T) {
	stub := &stubRecognizer{fn: func(_ context.Context, attempt int) (string, error) {
		if attempt < 3 {
			return "", errors.New("transient")
		}
		return "Bis 10 9,50 €", nil
	}}
	cfg := fastConfig()
	cfg.Workers = 1
	pool, err := NewPool(cfg, func() (Recognizer, error) { return stub, nil }, nil, nil)
	require.NoError(t, err)
	defer pool.Shutdown()

	crop := writeTestCrop(t, t.TempDir(), "price.png")
	text, err := pool.RecognizeFile(context.Background(), crop)
	require.NoError(t, err)
	assert.Equal(t, "Bis 10 9,50 €", text)
	assert.Equal(t, 3, stub.callCount())
}

func TestRecognizeFile_ExhaustedRetriesPropagate(t *testing.T) {
	stub := &stubRecognizer{fn: func(context.Context, int) (string, error) {
		return "", errors.New("model keeps failing")
	}}
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.MaxRetries = 2
	pool, err := NewPool(cfg, func() (Recognizer, error) { return stub, nil }, nil, nil)
	require.NoError(t, err)
	defer pool.Shutdown()

	crop := writeTestCrop(t, t.TempDir(), "price.png")
	_, err = pool.RecognizeFile(context.Background(), crop)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindRecognitionFailed, kind)
	// Initial attempt plus two retries.
	assert.Equal(t, 3, stub.callCount())
}

func TestRecognizeFile_TimeoutAbandonsAttempt(t *testing.T) {
	stub := &stubRecognizer{fn: func(ctx context.Context, _ int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.MaxRetries = 1
	cfg.AttemptTimeout = 20 * time.Millisecond
	pool, err := NewPool(cfg, func() (Recognizer, error) { return stub, nil }, nil, nil)
	require.NoError(t, err)
	defer pool.Shutdown()

	crop := writeTestCrop(t, t.TempDir(), "price.png")
	_, err = pool.RecognizeFile(context.Background(), crop)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, kind)
}

func TestRecognizeFile_RoundRobinAcrossWorkers(t *testing.T) {
	var stubs []*stubRecognizer
	factory := func() (Recognizer, error) {
		s := &stubRecognizer{}
		stubs = append(stubs, s)
		return s, nil
	}
	cfg := fastConfig()
	cfg.Workers = 2
	cfg.CacheSize = 1 // effectively disable cross-call caching
	pool, err := NewPool(cfg, factory, nil, nil)
	require.NoError(t, err)
	defer pool.Shutdown()

	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		crop := writeTestCrop(t, dir, fmt.Sprintf("crop-%d.png", i))
		_, err := pool.RecognizeFile(context.Background(), crop)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, stubs[0].callCount())
	assert.Equal(t, 2, stubs[1].callCount())
}

func TestRecognizeFile_CachesRepeatCrops(t *testing.T) {
	stub := &stubRecognizer{}
	cfg := fastConfig()
	cfg.Workers = 1
	pool, err := NewPool(cfg, func() (Recognizer, error) { return stub, nil }, nil, nil)
	require.NoError(t, err)
	defer pool.Shutdown()

	crop := writeTestCrop(t, t.TempDir(), "name.png")
	_, err = pool.RecognizeFile(context.Background(), crop)
	require.NoError(t, err)
	_, err = pool.RecognizeFile(context.Background(), crop)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.callCount())
}

func TestShutdown_TearsDownEveryWorker(t *testing.T) {
	bad := &stubRecognizer{closeErr: errors.New("teardown failed")}
	good := &stubRecognizer{}
	queue := []Recognizer{bad, good}
	factory := func() (Recognizer, error) {
		w := queue[0]
		queue = queue[1:]
		return w, nil
	}
	cfg := fastConfig()
	cfg.Workers = 2
	pool, err := NewPool(cfg, factory, nil, nil)
	require.NoError(t, err)

	pool.Shutdown()
	assert.True(t, bad.closed)
	assert.True(t, good.closed)
	// Idempotent.
	pool.Shutdown()
}
