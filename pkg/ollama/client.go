package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/menta2k/object-locator/pkg/classes"
	"github.com/menta2k/object-locator/pkg/processing"
	"github.com/menta2k/object-locator/pkg/types"
)

// DefaultPrompt asks the vision model to locate objects; %s is replaced by
// the allowed class names.
const DefaultPrompt = `You are an object locator.

Find every instance of these object classes in the image: %s.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- "label" must be one of the listed classes, spelled exactly as listed.
- "box" is the top-left corner (x, y) and size (w, h), normalized to [0,1] (NOT pixels).
- One entry per object instance; boxes should be tight.
- If nothing is found, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// BoxColor outlines the rendered detections
var BoxColor = color.NRGBA{0, 255, 0, 255}

// Client wraps the Ollama API client and acts as a detector backend
type Client struct {
	client    *api.Client
	model     string
	names     classes.Lookup
	processor *processing.Processor
	logger    *zap.Logger

	// SendSize is the max long side sent to the model (px), 0 = original
	SendSize int
	// SendQuality is the JPEG quality of the image sent to the model
	SendQuality int
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used for dropped detections
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithNames replaces the default COCO class table
func WithNames(names classes.Lookup) Option {
	return func(c *Client) { c.names = names }
}

// NewClient creates a new Ollama client that locates objects with the given vision model
func NewClient(ollamaURL, model string, opts ...Option) (*Client, error) {
	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, errors.Errorf("unsupported URL scheme: %q", parsedURL.Scheme)
	}
	if model == "" {
		return nil, errors.New("ollama vision model name is required")
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	c := &Client{
		client:      api.NewClient(baseURL, http.DefaultClient),
		model:       model,
		names:       classes.COCO(),
		processor:   processing.NewProcessor(),
		logger:      zap.NewNop(),
		SendSize:    1536,
		SendQuality: 85,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Names returns the class table the prompt is built from. The detector model
// identifier does not apply to a vision model and is ignored.
func (c *Client) Names(ctx context.Context, model string) (classes.Lookup, error) {
	return c.names, nil
}

// Accelerators is always 0; Ollama manages its own devices
func (c *Client) Accelerators(ctx context.Context) (int, error) {
	return 0, nil
}

// Predict asks the vision model about each source in turn, keeps the objects
// at or above the confidence threshold that belong to the requested classes,
// and renders their boxes into req.SaveDir.
func (c *Client) Predict(ctx context.Context, req types.PredictRequest) ([]types.Prediction, error) {
	if err := os.MkdirAll(req.SaveDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", req.SaveDir)
	}

	allowed := c.allowedClasses(req.Classes)
	labels := make([]string, 0, len(allowed))
	for _, idx := range sortedKeys(allowed) {
		labels = append(labels, allowed[idx])
	}
	prompt := fmt.Sprintf(DefaultPrompt, strings.Join(labels, ", "))

	preds := make([]types.Prediction, 0, len(req.Sources))
	for _, src := range req.Sources {
		pred, err := c.predictOne(ctx, src, prompt, allowed, req)
		if err != nil {
			return nil, errors.Wrap(err, src)
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func (c *Client) predictOne(ctx context.Context, src, prompt string, allowed map[int]string, req types.PredictRequest) (types.Prediction, error) {
	img, err := c.processor.LoadImage(src)
	if err != nil {
		return types.Prediction{}, err
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	imgB64, err := c.processor.PrepareImageForModel(img, "jpg", c.SendSize, c.SendQuality)
	if err != nil {
		return types.Prediction{}, errors.Wrap(err, "prepare image")
	}

	// an empty class filter selects nothing, so the model is not asked
	var objects []object
	if len(allowed) > 0 {
		raw, err := c.query(ctx, prompt, imgB64)
		if err != nil {
			return types.Prediction{}, err
		}
		if objects, err = parseObjects(raw); err != nil {
			return types.Prediction{}, err
		}
	}

	byName := make(map[string]int, len(allowed))
	for idx, name := range allowed {
		byName[name] = idx
	}

	pred := types.Prediction{Path: src, Detections: []types.RawDetection{}}
	boxes := make([]types.Box, 0, len(objects))
	for _, obj := range objects {
		idx, ok := byName[classes.Canonical(strings.TrimSpace(obj.Label))]
		if !ok {
			c.logger.Debug("dropping unrequested label", zap.String("image", src), zap.String("label", obj.Label))
			continue
		}
		if obj.Confidence < req.Confidence {
			continue
		}
		box := toPixelBox(obj.Box, w, h)
		pred.Detections = append(pred.Detections, types.RawDetection{Class: idx, Box: box, Confidence: obj.Confidence})
		boxes = append(boxes, box)
	}

	stroke := processing.DefaultLineWidth(w, h)
	if req.LineWidth != nil {
		stroke = *req.LineWidth
	}
	rendered := c.processor.Clone(img)
	c.processor.DrawBoxes(rendered, boxes, BoxColor, stroke)
	if err := c.processor.SaveImage(rendered, filepath.Join(req.SaveDir, filepath.Base(src))); err != nil {
		return types.Prediction{}, errors.Wrap(err, "save rendered image")
	}

	return pred, nil
}

// allowedClasses resolves requested indices to canonical names; nil means
// all, empty means none
func (c *Client) allowedClasses(indices []int) map[int]string {
	out := make(map[int]string)
	if indices == nil {
		for idx := range c.names {
			out[idx], _ = c.names.Name(idx)
		}
		return out
	}
	for _, idx := range indices {
		if name, err := c.names.Name(idx); err == nil {
			out[idx] = name
		}
	}
	return out
}

func (c *Client) query(ctx context.Context, prompt, imgB64 string) (string, error) {
	// Add timeout if context doesn't have one (vision models on CPU are slow)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	// Decode base64 image to raw bytes
	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode base64 image")
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Options: map[string]any{"temperature": 0.1},
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "ollama chat error")
	}
	if responseContent == "" {
		return "", errors.New("empty response from ollama")
	}
	return responseContent, nil
}

// normBox is a top-left box normalized to the image size
type normBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type object struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        normBox `json:"box"`
}

type objectList struct {
	Objects []object `json:"objects"`
}

// parseObjects parses the JSON response from the vision model
func parseObjects(raw string) ([]object, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, errors.Errorf("model returned non-JSON response: %.80q", raw)
	}

	var list objectList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Wrap(err, "failed to parse model response")
	}
	return list.Objects, nil
}

// toPixelBox converts a normalized top-left box into a centre-format pixel
// box. Values above 1 are taken to be pixels already.
func toPixelBox(b normBox, imgW, imgH int) types.Box {
	fw, fh := float64(imgW), float64(imgH)
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		b = normBox{X: b.X / fw, Y: b.Y / fh, W: b.W / fw, H: b.H / fh}
	}
	x0 := clamp(b.X, 0, 1)
	y0 := clamp(b.Y, 0, 1)
	x1 := clamp(b.X+b.W, 0, 1)
	y1 := clamp(b.Y+b.H, 0, 1)
	return types.Box{
		X: (x0 + x1) / 2 * fw,
		Y: (y0 + y1) / 2 * fh,
		W: (x1 - x0) * fw,
		H: (y1 - y0) * fh,
	}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
