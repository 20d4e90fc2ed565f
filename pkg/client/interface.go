package client

import (
	"context"

	"github.com/menta2k/object-locator/pkg/classes"
	"github.com/menta2k/object-locator/pkg/types"
)

// Detector is an object-detection backend. Predict must write one rendered
// image per source into req.SaveDir, named by the source's base name.
type Detector interface {
	Names(ctx context.Context, model string) (classes.Lookup, error)
	Accelerators(ctx context.Context) (int, error)
	Predict(ctx context.Context, req types.PredictRequest) ([]types.Prediction, error)
}
