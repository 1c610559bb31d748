// Package dom reads the pre-computed DOM-extraction snapshots the crawler
// writes next to the cropped screenshots. A snapshot is the high-trust
// source: present fields carry confidence 1.0 by construction, because the
// structural extractor either found the markup node or it didn't.
package dom

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/labelforge/labelscan/internal/fields"
)

// Snapshot is one DOM extraction for one product identifier.
type Snapshot struct {
	Record     fields.SourceRecord  `json:"record"`
	Confidence fields.ConfidenceMap `json:"confidence,omitempty"`
	CapturedAt time.Time            `json:"capturedAt"`
}

// Age returns how long ago the snapshot was captured.
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s == nil || s.CapturedAt.IsZero() {
		return 0
	}
	return now.Sub(s.CapturedAt)
}

// Load reads a snapshot file. A malformed file is an error; callers decide
// whether to degrade to OCR-only.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dom snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode dom snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// LoadForProduct loads the snapshot for the given identifier from dir.
// A missing file is not an error: the crawler simply produced no DOM
// extraction for that product, and the pipeline runs OCR-only.
func LoadForProduct(dir, identifier string) (*Snapshot, error) {
	path := filepath.Join(dir, identifier+".json")
	snap, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return snap, err
}
