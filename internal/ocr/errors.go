package ocr

import (
	"errors"
	"fmt"
)

// Kind classifies recognition failures so callers can branch deliberately
// instead of matching message strings.
type Kind int

const (
	// KindInvalidInput marks a crop that was rejected before any
	// recognition attempt (missing, empty, oversized, undecodable).
	KindInvalidInput Kind = iota
	// KindTimeout marks an attempt abandoned after the per-attempt window.
	KindTimeout
	// KindRecognitionFailed marks a worker error after exhausting retries.
	KindRecognitionFailed
	// KindPoolExhausted marks a pool with zero live workers.
	KindPoolExhausted
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindTimeout:
		return "timeout"
	case KindRecognitionFailed:
		return "recognition_failed"
	case KindPoolExhausted:
		return "pool_exhausted"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the pool.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err; ok is false when err does not
// originate from this package.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
