// Package objectlocator finds the pixel positions of objects in a batch of
// images.
//
// A run reads a JSON configuration, asks a detector backend for the boxes of
// the requested classes in every image under data/test, reduces each box to
// its centre point and writes the result to <results_path>/positions.json.
// The box images the backend rendered into the results directory are then
// marked with a filled circle at every recorded position.
//
// Basic usage:
//
//	layout, err := storage.NewLayout(".")
//	if err != nil {
//		log.Fatal(err)
//	}
//	backend, err := inference.NewClient("http://localhost:8000")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	p := objectlocator.New(storage.New(layout), backend)
//	positions, err := p.Run(context.Background(), "configs/default.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(positions["img1"].Position["Apple"])
//
// Two backends ship with the module: pkg/inference talks to a YOLO sidecar
// over HTTP and pkg/ollama prompts a vision model served by Ollama.
package objectlocator

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/menta2k/object-locator/internal/config"
	"github.com/menta2k/object-locator/pkg/annotator"
	"github.com/menta2k/object-locator/pkg/client"
	"github.com/menta2k/object-locator/pkg/detection"
	"github.com/menta2k/object-locator/pkg/storage"
	"github.com/menta2k/object-locator/pkg/types"
)

// Version of the object locator library
const Version = "1.0.0"

// PositionsFile is the name of the position map inside the results directory
const PositionsFile = "positions.json"

// Pipeline runs configuration, detection, persistence and annotation in order
type Pipeline struct {
	store        *storage.Store
	backend      client.Detector
	detector     *detection.Detector
	annotator    *annotator.Annotator
	logger       *zap.Logger
	accelerators int
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithAccelerators overrides the accelerator count reported by the backend.
// Negative values mean ask the backend.
func WithAccelerators(n int) Option {
	return func(p *Pipeline) { p.accelerators = n }
}

// WithAnnotator replaces the default annotator
func WithAnnotator(a *annotator.Annotator) Option {
	return func(p *Pipeline) { p.annotator = a }
}

// New creates a pipeline over store and backend
func New(store *storage.Store, backend client.Detector, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        store,
		backend:      backend,
		detector:     detection.NewDetector(backend),
		annotator:    annotator.New(nil),
		logger:       zap.NewNop(),
		accelerators: -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one locate run for the configuration at configPath and returns
// the position map it persisted.
func (p *Pipeline) Run(ctx context.Context, configPath string) (types.PositionMap, error) {
	log := p.logger.With(zap.String("run_id", uuid.NewString()))
	log.Info("run started", zap.String("config", configPath))

	accelerators := p.accelerators
	if accelerators < 0 {
		n, err := p.backend.Accelerators(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "query accelerators")
		}
		accelerators = n
	}

	cfg, err := config.Load(p.store, configPath, accelerators)
	if err != nil {
		return nil, err
	}
	log.Info("configuration validated",
		zap.Stringer("model", cfg.Model()),
		zap.Stringer("device", cfg.Device()),
		zap.Float64("confidence", cfg.Confidence()),
		zap.Strings("classes", cfg.Classes()),
		zap.String("results", cfg.ResultsPath()),
	)

	sources, err := p.store.Layout.TestImages()
	if err != nil {
		return nil, err
	}

	req := types.PredictRequest{
		Model:      cfg.ModelWeights(p.store.Layout),
		Device:     cfg.Device().String(),
		Sources:    sources,
		Confidence: cfg.Confidence(),
		Augment:    cfg.Augment(),
		SaveDir:    cfg.ResultsPath(),
	}
	if iou, ok := cfg.IoU(); ok {
		req.IoU = &iou
	}
	var lineWidth *int
	if w, ok := cfg.LineWidth(); ok {
		lineWidth = &w
	}
	req.LineWidth = lineWidth

	result, err := p.detector.Detect(ctx, req, cfg.Classes())
	if err != nil {
		return nil, err
	}
	log.Info("detection finished",
		zap.Int("images", len(result.Predictions)),
		zap.Int("detections", result.Count()),
	)

	if err := os.MkdirAll(cfg.ResultsPath(), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", cfg.ResultsPath())
	}
	positionsPath := filepath.Join(cfg.ResultsPath(), PositionsFile)
	if err := p.store.StoreJSON(positionsPath, result.Positions); err != nil {
		return nil, err
	}
	log.Info("positions written", zap.String("path", positionsPath))

	if err := p.annotator.Annotate(result.Positions, cfg.ResultsPath(), lineWidth); err != nil {
		return nil, err
	}
	log.Info("annotation done", zap.Int("images", len(result.Positions)))

	return result.Positions, nil
}
