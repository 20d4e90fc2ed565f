// Package annotator marks recorded object positions on the images a
// detector already rendered into the results directory.
package annotator

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/menta2k/object-locator/internal/utils"
	"github.com/menta2k/object-locator/pkg/processing"
	"github.com/menta2k/object-locator/pkg/types"
)

// MarkerColor fills and outlines every position marker
var MarkerColor = color.NRGBA{R: 255, G: 0, B: 0, A: 255}

// Error reports an image that could not be annotated
type Error struct {
	Image string
	Path  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("annotate %s (%s): %v", e.Image, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Annotator draws point markers; it never renders boxes itself
type Annotator struct {
	processor *processing.Processor
	color     color.NRGBA
}

// New creates an Annotator using the default marker colour
func New(processor *processing.Processor) *Annotator {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Annotator{processor: processor, color: MarkerColor}
}

// Annotate opens resultsDir/<base name of each record's path>, draws a
// filled circle of the given radius at every recorded point and overwrites
// the file. A nil radius uses the detector's default line width for the
// image size. The first image that cannot be opened or written aborts the
// pass.
func (a *Annotator) Annotate(positions types.PositionMap, resultsDir string, radius *int) error {
	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := a.AnnotateImage(id, positions[id], resultsDir, radius); err != nil {
			return err
		}
	}
	return nil
}

// AnnotateImage marks a single record's points
func (a *Annotator) AnnotateImage(id string, rec types.ImageRecord, resultsDir string, radius *int) error {
	path := filepath.Join(resultsDir, filepath.Base(rec.Path))
	if !utils.FileExists(path) {
		return &Error{Image: id, Path: path, Err: errors.New("rendered image is missing")}
	}

	src, err := a.processor.LoadImage(path)
	if err != nil {
		return &Error{Image: id, Path: path, Err: errors.Wrap(err, "open")}
	}
	img := a.processor.Clone(src)

	r := processing.DefaultLineWidth(img.Bounds().Dx(), img.Bounds().Dy())
	if radius != nil {
		r = *radius
	}

	classNames := make([]string, 0, len(rec.Position))
	for name := range rec.Position {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)

	for _, name := range classNames {
		for _, pt := range rec.Position[name] {
			a.processor.FillCircle(img, pt.X(), pt.Y(), r, a.color)
		}
	}

	if err := a.processor.SaveImage(img, path); err != nil {
		return &Error{Image: id, Path: path, Err: errors.Wrap(err, "save")}
	}
	return nil
}
