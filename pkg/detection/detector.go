package detection

import (
	"context"

	"github.com/pkg/errors"

	"github.com/menta2k/object-locator/pkg/classes"
	"github.com/menta2k/object-locator/pkg/client"
	"github.com/menta2k/object-locator/pkg/types"
)

// Detector runs a backend over a batch of images and indexes the results
type Detector struct {
	client client.Detector
}

// NewDetector creates a new detector with a backend client
func NewDetector(client client.Detector) *Detector {
	return &Detector{client: client}
}

// Result is the outcome of one Detect call
type Result struct {
	Predictions []types.Prediction
	Positions   types.PositionMap
	Names       classes.Lookup
}

// Detect translates the canonical class filter (nil for every class) into
// backend indices, issues a single predict call for all of req.Sources and
// aggregates the detections. req.Classes is overwritten by the translation.
func (d *Detector) Detect(ctx context.Context, req types.PredictRequest, filter []string) (*Result, error) {
	names, err := d.client.Names(ctx, req.Model)
	if err != nil {
		return nil, errors.Wrapf(err, "class names for %s", req.Model)
	}

	req.Classes, err = names.Indices(filter)
	if err != nil {
		return nil, err
	}

	preds, err := d.client.Predict(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}

	positions, err := Aggregate(preds, names)
	if err != nil {
		return nil, err
	}

	return &Result{Predictions: preds, Positions: positions, Names: names}, nil
}

// Count returns the total number of detections across predictions
func (r *Result) Count() int {
	n := 0
	for _, p := range r.Predictions {
		n += len(p.Detections)
	}
	return n
}
