package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/menta2k/object-locator/internal/utils"
	"github.com/menta2k/object-locator/pkg/classes"
	"github.com/menta2k/object-locator/pkg/storage"
)

// Keys of the run configuration file
const (
	KeyModel      = "YOLO_model"
	KeyDevice     = "device"
	KeyConfidence = "confidence_threshold"
	KeyIoU        = "iou_threshold"
	KeyAugment    = "augment"
	KeyClasses    = "classes"
	KeyLineWidth  = "box_line_width"
	KeyResults    = "results_path"
)

// Error names the configuration field that failed validation
type Error struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("config: %s = %v: %s", e.Field, e.Value, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Config is a validated run configuration. It has no setters; every value is
// fixed by Parse.
type Config struct {
	model       Model
	device      Device
	confidence  float64
	iou         *float64
	augment     bool
	classes     []string
	lineWidth   *int
	resultsPath string
}

// Model returns the detector model identifier
func (c Config) Model() Model { return c.model }

// Device returns the compute device
func (c Config) Device() Device { return c.device }

// Confidence returns the minimum detection confidence
func (c Config) Confidence() float64 { return c.confidence }

// IoU returns the NMS IoU threshold and whether one was configured
func (c Config) IoU() (float64, bool) {
	if c.iou == nil {
		return 0, false
	}
	return *c.iou, true
}

// Augment reports whether test-time augmentation is on
func (c Config) Augment() bool { return c.augment }

// Classes returns a copy of the canonical class filter: nil for all classes,
// empty for none
func (c Config) Classes() []string {
	if c.classes == nil {
		return nil
	}
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

// LineWidth returns the box and marker width and whether one was configured
func (c Config) LineWidth() (int, bool) {
	if c.lineWidth == nil {
		return 0, false
	}
	return *c.lineWidth, true
}

// ResultsPath returns the absolute output directory
func (c Config) ResultsPath() string { return c.resultsPath }

// ModelWeights returns the weights file under data/models when present,
// otherwise the bare model identifier for the detector to resolve.
func (c Config) ModelWeights(layout *storage.Layout) string {
	if layout != nil {
		if p := layout.ModelFile(c.model.String()); utils.FileExists(p) {
			return p
		}
	}
	return c.model.String()
}

// Load reads the run configuration at path, validates every field and then
// resets the results directory.
//
// The reset is destructive: anything already at the results path, file or
// directory, is removed recursively. It only happens once all fields passed.
func Load(store *storage.Store, path string, accelerators int) (Config, error) {
	data, err := store.LoadJSON(path)
	if err != nil {
		return Config{}, err
	}
	raw, ok := data.(map[string]any)
	if !ok {
		return Config{}, &Error{Field: "(root)", Value: path, Reason: "configuration must be a JSON object"}
	}

	cfg, err := Parse(raw, accelerators)
	if err != nil {
		return Config{}, err
	}
	if err := ResetResultsPath(cfg.resultsPath); err != nil {
		return Config{}, &Error{Field: KeyResults, Value: cfg.resultsPath, Reason: "cannot reset", Err: err}
	}
	return cfg, nil
}

// ResetResultsPath creates the parent of path and removes path itself
func ResetResultsPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create parent directory")
	}
	if utils.PathExists(path) {
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrap(err, "remove existing results")
		}
	}
	return nil
}

// Parse validates raw in a fixed field order and stops at the first failure.
// It has no side effects.
func Parse(raw map[string]any, accelerators int) (Config, error) {
	var cfg Config

	model, err := requireString(raw, KeyModel)
	if err != nil {
		return Config{}, err
	}
	if cfg.model, err = ParseModel(model); err != nil {
		return Config{}, &Error{Field: KeyModel, Value: model, Reason: "unrecognised model", Err: err}
	}

	device, err := requireString(raw, KeyDevice)
	if err != nil {
		return Config{}, err
	}
	if cfg.device, err = ParseDevice(device, accelerators); err != nil {
		return Config{}, &Error{Field: KeyDevice, Value: device, Reason: "unavailable device", Err: err}
	}

	if cfg.confidence, err = requireUnit(raw, KeyConfidence); err != nil {
		return Config{}, err
	}

	if v, ok := raw[KeyIoU]; ok && v != nil {
		iou, err := requireUnit(raw, KeyIoU)
		if err != nil {
			return Config{}, err
		}
		cfg.iou = &iou
	}

	v, ok := raw[KeyAugment]
	if !ok {
		return Config{}, &Error{Field: KeyAugment, Value: nil, Reason: "missing"}
	}
	if cfg.augment, ok = v.(bool); !ok {
		return Config{}, &Error{Field: KeyAugment, Value: v, Reason: fmt.Sprintf("is of type %T, not bool", v)}
	}

	if cfg.classes, err = parseClasses(raw[KeyClasses]); err != nil {
		return Config{}, err
	}

	if cfg.lineWidth, err = parseLineWidth(raw); err != nil {
		return Config{}, err
	}

	results, err := requireString(raw, KeyResults)
	if err != nil {
		return Config{}, err
	}
	if results == "" {
		return Config{}, &Error{Field: KeyResults, Value: results, Reason: "empty path"}
	}
	abs, err := filepath.Abs(results)
	if err != nil {
		return Config{}, &Error{Field: KeyResults, Value: results, Reason: "not a usable path", Err: err}
	}
	cfg.resultsPath = abs

	return cfg, nil
}

func requireString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", &Error{Field: key, Value: nil, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &Error{Field: key, Value: v, Reason: fmt.Sprintf("is of type %T, not string", v)}
	}
	return s, nil
}

// requireUnit reads a number in [0, 1]
func requireUnit(raw map[string]any, key string) (float64, error) {
	v, ok := raw[key]
	if !ok {
		return 0, &Error{Field: key, Value: nil, Reason: "missing"}
	}
	f, ok := v.(float64)
	if !ok {
		return 0, &Error{Field: key, Value: v, Reason: fmt.Sprintf("is of type %T, not a number", v)}
	}
	if math.IsNaN(f) || f < 0 || f > 1 {
		return 0, &Error{Field: key, Value: f, Reason: "must satisfy 0 <= x <= 1"}
	}
	return f, nil
}

func parseClasses(v any) ([]string, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{classes.Canonical(c)}, nil
	case []string:
		return classes.CanonicalAll(c), nil
	case []any:
		names := make([]string, len(c))
		for i, item := range c {
			s, ok := item.(string)
			if !ok {
				return nil, &Error{Field: KeyClasses, Value: c, Reason: fmt.Sprintf("element %d is of type %T, not string", i, item)}
			}
			names[i] = classes.Canonical(s)
		}
		return names, nil
	default:
		return nil, &Error{Field: KeyClasses, Value: v, Reason: fmt.Sprintf("is of type %T, not string or list", v)}
	}
}

func parseLineWidth(raw map[string]any) (*int, error) {
	v, ok := raw[KeyLineWidth]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, &Error{Field: KeyLineWidth, Value: v, Reason: fmt.Sprintf("is of type %T, not integer or null", v)}
	}
	if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return nil, &Error{Field: KeyLineWidth, Value: f, Reason: "must be a positive integer"}
	}
	w := int(f)
	return &w, nil
}
