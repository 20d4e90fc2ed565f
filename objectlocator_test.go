package objectlocator

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/menta2k/object-locator/internal/config"
	"github.com/menta2k/object-locator/pkg/annotator"
	"github.com/menta2k/object-locator/pkg/classes"
	"github.com/menta2k/object-locator/pkg/processing"
	"github.com/menta2k/object-locator/pkg/storage"
	"github.com/menta2k/object-locator/pkg/types"
)

// fakeBackend copies every source into SaveDir, the way a real backend
// leaves its box images behind, and reports fixed detections.
type fakeBackend struct {
	accelerators int
	detections   map[string][]types.RawDetection

	accelCalls   int
	predictCalls int
	lastReq      types.PredictRequest
}

func (f *fakeBackend) Names(ctx context.Context, model string) (classes.Lookup, error) {
	return classes.COCO(), nil
}

func (f *fakeBackend) Accelerators(ctx context.Context) (int, error) {
	f.accelCalls++
	return f.accelerators, nil
}

func (f *fakeBackend) Predict(ctx context.Context, req types.PredictRequest) ([]types.Prediction, error) {
	f.predictCalls++
	f.lastReq = req
	if err := os.MkdirAll(req.SaveDir, 0o755); err != nil {
		return nil, err
	}
	p := processing.NewProcessor()
	preds := make([]types.Prediction, 0, len(req.Sources))
	for _, src := range req.Sources {
		img, err := p.LoadImage(src)
		if err != nil {
			return nil, err
		}
		if err := p.SaveImage(img, filepath.Join(req.SaveDir, filepath.Base(src))); err != nil {
			return nil, err
		}
		preds = append(preds, types.Prediction{Path: src, Detections: f.detections[filepath.Base(src)]})
	}
	return preds, nil
}

// createTestImage writes a flat grey image of the given size
func createTestImage(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{64, 64, 64, 255})
		}
	}
	require.NoError(t, processing.NewProcessor().SaveImage(img, path))
}

type project struct {
	root    string
	store   *storage.Store
	results string
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()
	layout, err := storage.NewLayout(root)
	require.NoError(t, err)
	return &project{root: root, store: storage.New(layout), results: filepath.Join(root, "out", "run1")}
}

func (p *project) writeConfig(t *testing.T, overrides map[string]any) string {
	t.Helper()
	raw := map[string]any{
		config.KeyModel:      "yolov8n.pt",
		config.KeyDevice:     "cpu",
		config.KeyConfidence: 0.5,
		config.KeyAugment:    false,
		config.KeyClasses:    "apple",
		config.KeyLineWidth:  5,
		config.KeyResults:    p.results,
	}
	for k, v := range overrides {
		raw[k] = v
	}
	path := filepath.Join(p.root, "config.json")
	require.NoError(t, p.store.StoreJSON(path, raw))
	return path
}

func TestRunEndToEnd(t *testing.T) {
	proj := newProject(t)
	src := filepath.Join(proj.store.Layout.DataTest, "img1.png")
	createTestImage(t, src, 300, 200)

	backend := &fakeBackend{detections: map[string][]types.RawDetection{
		"img1.png": {{Class: 47, Box: types.Box{X: 100, Y: 150, W: 40, H: 40}, Confidence: 0.9}},
	}}
	positions, err := New(proj.store, backend).Run(context.Background(), proj.writeConfig(t, nil))
	require.NoError(t, err)

	assert.Equal(t, 1, backend.predictCalls)
	assert.Equal(t, []int{47}, backend.lastReq.Classes)
	assert.Equal(t, "cpu", backend.lastReq.Device)
	assert.Equal(t, "yolov8n.pt", backend.lastReq.Model)
	assert.Equal(t, proj.results, backend.lastReq.SaveDir)
	assert.Nil(t, backend.lastReq.IoU)
	require.NotNil(t, backend.lastReq.LineWidth)
	assert.Equal(t, 5, *backend.lastReq.LineWidth)

	assert.Equal(t, []types.Point{{100, 150}}, positions["img1"].Position["Apple"])

	data, err := os.ReadFile(filepath.Join(proj.results, PositionsFile))
	require.NoError(t, err)
	want, err := json.Marshal(map[string]any{
		"img1": map[string]any{"path": src, "position": map[string]any{"Apple": [][]int{{100, 150}}}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(data))

	p := processing.NewProcessor()
	img, err := p.LoadImage(filepath.Join(proj.results, "img1.png"))
	require.NoError(t, err)
	marked := p.Clone(img)
	assert.Equal(t, annotator.MarkerColor, marked.NRGBAAt(100, 150))
	assert.Equal(t, annotator.MarkerColor, marked.NRGBAAt(105, 150))
	assert.Equal(t, color.NRGBA{64, 64, 64, 255}, marked.NRGBAAt(100, 160))
}

func TestRunUsesModelWeightsFromLayout(t *testing.T) {
	proj := newProject(t)
	weights := filepath.Join(proj.store.Layout.DataModels, "yolov8s.pt")
	require.NoError(t, os.WriteFile(weights, []byte("weights"), 0o644))

	backend := &fakeBackend{}
	_, err := New(proj.store, backend).Run(context.Background(), proj.writeConfig(t, map[string]any{
		config.KeyModel: "yolov8s.pt",
		config.KeyIoU:   0.7,
	}))
	require.NoError(t, err)

	assert.Equal(t, weights, backend.lastReq.Model)
	require.NotNil(t, backend.lastReq.IoU)
	assert.Equal(t, 0.7, *backend.lastReq.IoU)
}

func TestRunWithoutImagesWritesEmptyMap(t *testing.T) {
	proj := newProject(t)

	positions, err := New(proj.store, &fakeBackend{}).Run(context.Background(), proj.writeConfig(t, nil))
	require.NoError(t, err)
	assert.Empty(t, positions)

	data, err := os.ReadFile(filepath.Join(proj.results, PositionsFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestRunEmptyClassListFindsNothing(t *testing.T) {
	proj := newProject(t)
	createTestImage(t, filepath.Join(proj.store.Layout.DataTest, "img1.png"), 50, 50)

	backend := &fakeBackend{}
	positions, err := New(proj.store, backend).Run(context.Background(), proj.writeConfig(t, map[string]any{
		config.KeyClasses: []string{},
	}))
	require.NoError(t, err)

	assert.Equal(t, []int{}, backend.lastReq.Classes)
	require.Contains(t, positions, "img1")
	assert.Empty(t, positions["img1"].Position)
}

func TestRunInvalidConfigLeavesResultsAlone(t *testing.T) {
	proj := newProject(t)
	require.NoError(t, os.MkdirAll(proj.results, 0o755))
	keep := filepath.Join(proj.results, "previous.txt")
	require.NoError(t, os.WriteFile(keep, []byte("old run"), 0o644))

	backend := &fakeBackend{}
	_, err := New(proj.store, backend).Run(context.Background(), proj.writeConfig(t, map[string]any{
		config.KeyConfidence: 1.5,
	}))

	var cerr *config.Error
	require.True(t, errors.As(err, &cerr), "expected config error, got %v", err)
	assert.Equal(t, config.KeyConfidence, cerr.Field)
	assert.FileExists(t, keep)
	assert.Zero(t, backend.predictCalls)
}

func TestRunAcceleratorCount(t *testing.T) {
	proj := newProject(t)
	cfgPath := proj.writeConfig(t, map[string]any{config.KeyDevice: "cuda:1"})

	// backend reports a single card, so cuda:1 is out of range
	backend := &fakeBackend{accelerators: 1}
	_, err := New(proj.store, backend).Run(context.Background(), cfgPath)
	require.Error(t, err)
	assert.Equal(t, 1, backend.accelCalls)

	backend = &fakeBackend{accelerators: 1}
	_, err = New(proj.store, backend, WithAccelerators(2)).Run(context.Background(), cfgPath)
	require.NoError(t, err)
	assert.Zero(t, backend.accelCalls)
	assert.Equal(t, "cuda:1", backend.lastReq.Device)
}

func TestRunLogsCarryRunID(t *testing.T) {
	proj := newProject(t)
	core, logs := observer.New(zapcore.InfoLevel)

	_, err := New(proj.store, &fakeBackend{}, WithLogger(zap.New(core))).Run(context.Background(), proj.writeConfig(t, nil))
	require.NoError(t, err)

	entries := logs.All()
	require.NotEmpty(t, entries)
	runID := entries[0].ContextMap()["run_id"]
	require.NotEmpty(t, runID)
	for _, e := range entries {
		assert.Equal(t, runID, e.ContextMap()["run_id"], e.Message)
	}
	assert.Equal(t, 1, logs.FilterMessage("annotation done").Len())
}
