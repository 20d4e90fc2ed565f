package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/object-locator/pkg/types"
)

// Processor handles image processing operations
type Processor struct {
	// JPEGQuality is used when an image is written back as JPEG
	JPEGQuality int
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{JPEGQuality: 95}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// SaveImage writes img to path, choosing the encoder from the extension
func (p *Processor) SaveImage(img image.Image, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: true})
	case ".jpg", ".jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(p.JPEGQuality))
	default:
		return imaging.Save(img, path)
	}
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Clone returns an editable copy of img
func (p *Processor) Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// DefaultLineWidth is the stroke used when none is configured, scaled to the image size
func DefaultLineWidth(w, h int) int {
	return max(int(math.Round(float64(w+h)/2*0.003)), 2)
}

// DrawBoxes outlines each centre-format pixel box on img
func (p *Processor) DrawBoxes(img *image.NRGBA, boxes []types.Box, c color.NRGBA, stroke int) {
	for _, b := range boxes {
		x0 := int(math.Round(b.X - b.W/2))
		y0 := int(math.Round(b.Y - b.H/2))
		x1 := int(math.Round(b.X + b.W/2))
		y1 := int(math.Round(b.Y + b.H/2))
		drawRect(img, x0, y0, x1, y1, c, stroke)
	}
}

// FillCircle paints a filled disc of radius r centred at (cx, cy). Pixels
// outside the image are clipped.
func (p *Processor) FillCircle(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	if r < 0 {
		return
	}
	bounds := img.Bounds()
	rr := r * r
	for dy := -r; dy <= r; dy++ {
		y := cy + dy
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		// widest dx on this row still inside the circle
		span := int(math.Sqrt(float64(rr - dy*dy)))
		drawHLine(img, y, cx-span, cx+span+1, c)
	}
}

func drawRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, stroke int) {
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0 = max(x0, b.Min.X)
	x1 = min(x1, b.Max.X)
	if x0 >= x1 {
		return
	}
	i := img.PixOffset(x0, y)
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, b.Min.Y)
	y1 = min(y1, b.Max.Y)
	if y0 >= y1 {
		return
	}
	i := img.PixOffset(x, y0)
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
