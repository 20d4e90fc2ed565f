package annotator

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/object-locator/pkg/processing"
	"github.com/menta2k/object-locator/pkg/types"
)

// createTestImage writes a flat grey PNG of the given size
func createTestImage(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{40, 40, 40, 255})
		}
	}
	require.NoError(t, processing.NewProcessor().SaveImage(img, path))
}

func loadNRGBA(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	p := processing.NewProcessor()
	img, err := p.LoadImage(path)
	require.NoError(t, err)
	return p.Clone(img)
}

func TestAnnotateDrawsMarkers(t *testing.T) {
	results := t.TempDir()
	createTestImage(t, filepath.Join(results, "img1.png"), 200, 120)

	positions := types.PositionMap{
		"img1": {
			Path: "/data/test/img1.png",
			Position: map[string][]types.Point{
				"Apple": {{100, 60}, {20, 20}},
				"Pear":  {{180, 100}},
			},
		},
	}
	radius := 4

	require.NoError(t, New(nil).Annotate(positions, results, &radius))

	img := loadNRGBA(t, filepath.Join(results, "img1.png"))
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())

	for _, pt := range [][2]int{{100, 60}, {104, 60}, {20, 20}, {180, 100}, {180, 96}} {
		assert.Equal(t, MarkerColor, img.NRGBAAt(pt[0], pt[1]), "pixel %v", pt)
	}
	assert.Equal(t, color.NRGBA{40, 40, 40, 255}, img.NRGBAAt(100, 70))
	assert.Equal(t, color.NRGBA{40, 40, 40, 255}, img.NRGBAAt(0, 119))
}

func TestAnnotatePreservesDimensionsJPEG(t *testing.T) {
	results := t.TempDir()
	path := filepath.Join(results, "photo.jpg")
	createTestImage(t, path, 321, 123)

	positions := types.PositionMap{
		"photo": {Path: "elsewhere/photo.jpg", Position: map[string][]types.Point{"Dog": {{10, 10}}}},
	}
	require.NoError(t, New(processing.NewProcessor()).Annotate(positions, results, nil))

	img, err := processing.NewProcessor().LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 321, 123), img.Bounds())
}

func TestAnnotateNoDetections(t *testing.T) {
	results := t.TempDir()
	createTestImage(t, filepath.Join(results, "empty.png"), 10, 10)

	positions := types.PositionMap{"empty": {Path: "empty.png", Position: map[string][]types.Point{}}}
	assert.NoError(t, New(nil).Annotate(positions, results, nil))
}

func TestAnnotateMissingImage(t *testing.T) {
	results := t.TempDir()
	positions := types.PositionMap{
		"gone": {Path: "/data/test/gone.jpg", Position: map[string][]types.Point{"Apple": {{1, 1}}}},
	}

	err := New(nil).Annotate(positions, results, nil)
	var aerr *Error
	require.True(t, errors.As(err, &aerr), "got %v", err)
	assert.Equal(t, "gone", aerr.Image)
	assert.Equal(t, filepath.Join(results, "gone.jpg"), aerr.Path)
}

func TestAnnotateUnreadableImage(t *testing.T) {
	results := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(results, "junk.png"), []byte("not an image"), 0o644))

	positions := types.PositionMap{
		"junk": {Path: "junk.png", Position: map[string][]types.Point{"Apple": {{1, 1}}}},
	}

	err := New(nil).Annotate(positions, results, nil)
	var aerr *Error
	assert.True(t, errors.As(err, &aerr))
}
