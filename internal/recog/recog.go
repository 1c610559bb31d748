// Package recog implements the recognition worker backing the OCR pool:
// a single-line text recognizer running a PaddleOCR-style CTC model via
// ONNX Runtime. One Engine holds one model session and processes one crop
// at a time, which is why the pool keeps only a handful of them alive.
package recog

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	onnxrt "github.com/yalue/onnxruntime_go"
)

// Config holds the recognition model settings.
type Config struct {
	ModelPath   string // path to the ONNX recognition model
	DictPath    string // path to the character dictionary
	ImageHeight int    // expected input height (0 adopts the model's)
	NumThreads  int    // intra-op CPU threads (0 for runtime default)
	LibraryPath string // onnxruntime shared library override
}

// DefaultConfig returns the recognizer defaults.
func DefaultConfig() Config {
	return Config{ImageHeight: 48}
}

// Engine is a single recognition worker around one ONNX session.
type Engine struct {
	cfg        Config
	session    *onnxrt.DynamicAdvancedSession
	inputName  string
	outputName string
	charset    []rune
	mu         sync.Mutex
}

var initOnce sync.Once

// New loads the model and dictionary and creates the ONNX session.
func New(cfg Config) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if cfg.DictPath == "" {
		return nil, errors.New("dictionary path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	charset, err := loadCharset(cfg.DictPath)
	if err != nil {
		return nil, err
	}

	if cfg.LibraryPath != "" {
		onnxrt.SetSharedLibraryPath(cfg.LibraryPath)
	} else if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		onnxrt.SetSharedLibraryPath(p)
	}
	var initErr error
	initOnce.Do(func() {
		if !onnxrt.IsInitialized() {
			initErr = onnxrt.InitializeEnvironment()
		}
	})
	if initErr != nil {
		return nil, fmt.Errorf("initialize ONNX Runtime: %w", initErr)
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d/%d", len(inputs), len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}
	// Adopt the model's fixed height when the config leaves it open.
	if h := inputs[0].Dimensions[2]; h > 0 && cfg.ImageHeight <= 0 {
		cfg.ImageHeight = int(h)
	}
	if cfg.ImageHeight <= 0 {
		cfg.ImageHeight = 48
	}

	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer func() { _ = opts.Destroy() }()
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("set thread count: %w", err)
		}
	}

	session, err := onnxrt.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	return &Engine{
		cfg:        cfg,
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		charset:    charset,
	}, nil
}

// Recognize runs one crop through the model and returns the decoded text.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, width := e.preprocess(img)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return "", errors.New("engine is closed")
	}

	input, err := onnxrt.NewTensor(
		onnxrt.NewShape(1, 3, int64(e.cfg.ImageHeight), int64(width)), data)
	if err != nil {
		return "", fmt.Errorf("create input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	outputs := []onnxrt.Value{nil}
	if err := e.session.Run([]onnxrt.Value{input}, outputs); err != nil {
		return "", fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return "", fmt.Errorf("expected float32 output tensor, got %T", outputs[0])
	}
	return e.decodeGreedy(out.GetData(), out.GetShape()), nil
}

// Close destroys the model session. Further Recognize calls fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	if err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// preprocess scales the crop to the model height, converts to NCHW float32
// and normalizes to [-1, 1] the way PaddleOCR recognition models expect.
func (e *Engine) preprocess(img image.Image) ([]float32, int) {
	h := e.cfg.ImageHeight
	bounds := img.Bounds()
	w := bounds.Dx() * h / max(bounds.Dy(), 1)
	if w < 1 {
		w = 1
	}
	resized := imaging.Resize(img, w, h, imaging.Lanczos)

	data := make([]float32, 3*h*w)
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			i := y*w + x
			data[i] = float32(r>>8)/127.5 - 1
			data[plane+i] = float32(g>>8)/127.5 - 1
			data[2*plane+i] = float32(b>>8)/127.5 - 1
		}
	}
	return data, w
}

// decodeGreedy collapses the CTC output: argmax per timestep, drop blanks
// (class 0) and repeated classes, map the rest through the charset.
func (e *Engine) decodeGreedy(data []float32, shape []int64) string {
	if len(shape) != 3 {
		return ""
	}
	steps := int(shape[1])
	classes := int(shape[2])
	if steps*classes == 0 || len(data) < steps*classes {
		return ""
	}

	runes := make([]rune, 0, steps)
	prev := -1
	for t := 0; t < steps; t++ {
		row := data[t*classes : (t+1)*classes]
		best := 0
		for c := 1; c < classes; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		if best != 0 && best != prev {
			if idx := best - 1; idx < len(e.charset) {
				runes = append(runes, e.charset[idx])
			}
		}
		prev = best
	}
	return string(runes)
}

func loadCharset(path string) ([]rune, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	var charset []rune
	line := make([]rune, 0, 8)
	flush := func() {
		if len(line) > 0 {
			charset = append(charset, line...)
		} else {
			charset = append(charset, ' ')
		}
		line = line[:0]
	}
	for _, r := range string(data) {
		if r == '\n' {
			flush()
			continue
		}
		if r != '\r' {
			line = append(line, r)
		}
	}
	if len(line) > 0 {
		flush()
	}
	if len(charset) == 0 {
		return nil, errors.New("dictionary is empty")
	}
	return charset, nil
}
