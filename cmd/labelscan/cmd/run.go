package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/labelforge/labelscan/internal/batch"
	"github.com/labelforge/labelscan/internal/config"
	"github.com/labelforge/labelscan/internal/merge"
	"github.com/labelforge/labelscan/internal/metrics"
	"github.com/labelforge/labelscan/internal/ocr"
	"github.com/labelforge/labelscan/internal/recog"
	"github.com/labelforge/labelscan/internal/validate"
	"github.com/spf13/cobra"
)

// runCmd processes a batch of product identifiers through the pipeline.
var runCmd = &cobra.Command{
	Use:   "run [identifiers...]",
	Short: "Extract product data for the given identifiers",
	Long: `Run the extraction pipeline for the listed product identifiers.
With no identifiers, every subdirectory of the crops directory is
processed.

Examples:
  labelscan run 100234 100235
  labelscan run --output results.json
  labelscan run --workers 4 100234`,
	SilenceUsage: true,
	RunE:         runExtraction,
}

func init() {
	runCmd.Flags().StringP("output", "o", "", "write results to file instead of stdout")
	runCmd.Flags().Int("workers", 0, "OCR worker count (overrides config)")
	runCmd.Flags().Int("chunk-size", 0, "products processed concurrently per chunk (overrides config)")

	rootCmd.AddCommand(runCmd)
}

func runExtraction(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	identifiers := args
	if len(identifiers) == 0 {
		var err error
		identifiers, err = discoverIdentifiers(cfg.CropsDir)
		if err != nil {
			return err
		}
		if len(identifiers) == 0 {
			return fmt.Errorf("no identifiers given and none found under %s", cfg.CropsDir)
		}
	}

	poolCfg := ocr.Config{
		Workers:        cfg.Pool.Workers,
		MaxRetries:     cfg.Pool.MaxRetries,
		AttemptTimeout: cfg.Pool.AttemptTimeout(),
		BackoffBase:    cfg.Pool.BackoffBase(),
		BackoffMax:     cfg.Pool.BackoffMax(),
		MaxFileBytes:   cfg.Pool.MaxCropBytes,
		CacheSize:      cfg.Pool.CacheSize,
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		poolCfg.Workers = n
	}

	factory := recognizerFactory(cfg)
	m := metrics.New()

	pool, err := ocr.NewPool(poolCfg, factory, nil, m)
	if err != nil {
		return fmt.Errorf("start OCR pool: %w", err)
	}

	limits := validate.Limits{
		MinNameLen: cfg.Validation.MinNameLen,
		MaxPrice:   cfg.Validation.MaxPrice,
	}
	thresholds := merge.Thresholds{
		High: cfg.Thresholds.High,
		Low:  cfg.Thresholds.Low,
	}
	engine := merge.NewEngine(limits, thresholds, nil)

	batchCfg := batchConfigFrom(cfg)
	if n, _ := cmd.Flags().GetInt("chunk-size"); n > 0 {
		batchCfg.ChunkSize = n
	}

	processor := batch.NewProcessor(batchCfg, pool, engine, nil, m)
	defer processor.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := processor.ProcessBatch(ctx, identifiers)

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	stats := processor.Stats()
	fmt.Fprintf(cmd.ErrOrStderr(), "processed %d products, %d failed (success rate %.1f%%)\n",
		stats.Processed, stats.Failed, stats.SuccessRate*100)
	return nil
}

// batchConfigFrom maps the loaded configuration onto the orchestrator's
// tuning struct. Every batch.* knob must be carried over here.
func batchConfigFrom(cfg *config.Config) batch.Config {
	return batch.Config{
		CropsDir:     cfg.CropsDir,
		DOMDir:       cfg.DOMDir,
		ChunkSize:    cfg.Batch.ChunkSize,
		HygieneEvery: cfg.Batch.HygieneEvery,
		DOMMaxAge:    cfg.Batch.DOMMaxAge(),
	}
}

// recognizerFactory builds ONNX-backed workers from the model config.
func recognizerFactory(cfg *config.Config) ocr.Factory {
	return func() (ocr.Recognizer, error) {
		return recog.New(recog.Config{
			ModelPath:   cfg.Model.Path,
			DictPath:    cfg.Model.DictPath,
			ImageHeight: cfg.Model.ImageHeight,
			NumThreads:  cfg.Model.NumThreads,
		})
	}
}

// discoverIdentifiers lists the product directories under the crops root.
func discoverIdentifiers(cropsDir string) ([]string, error) {
	entries, err := os.ReadDir(cropsDir)
	if err != nil {
		return nil, fmt.Errorf("read crops directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
