package detection

import (
	"github.com/pkg/errors"

	"github.com/menta2k/object-locator/internal/utils"
	"github.com/menta2k/object-locator/pkg/classes"
	"github.com/menta2k/object-locator/pkg/types"
)

// Center returns the recorded position of a box. Boxes are centre-format, so
// the position is the box's first two values truncated toward zero.
func Center(b types.Box) types.Point {
	return types.Point{int(b.X), int(b.Y)}
}

// Aggregate groups every detection by image and canonical class name.
// Points keep the order the detector emitted them in; no class filtering
// happens here.
func Aggregate(preds []types.Prediction, names classes.Lookup) (types.PositionMap, error) {
	positions := make(types.PositionMap, len(preds))

	for _, pred := range preds {
		id := utils.StemName(pred.Path)
		if prev, ok := positions[id]; ok {
			return nil, errors.Errorf("image id %q is shared by %s and %s", id, prev.Path, pred.Path)
		}

		rec := types.ImageRecord{
			Path:     pred.Path,
			Position: make(map[string][]types.Point),
		}
		for i, det := range pred.Detections {
			name, err := names.Name(det.Class)
			if err != nil {
				return nil, errors.Wrapf(err, "%s detection %d", pred.Path, i)
			}
			rec.Position[name] = append(rec.Position[name], Center(det.Box))
		}
		positions[id] = rec
	}

	return positions, nil
}
