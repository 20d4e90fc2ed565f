// Package inference talks to a YOLO inference sidecar over HTTP. The sidecar
// shares the filesystem with this process: it reads sources by path and
// renders its box images into the requested save directory.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/menta2k/object-locator/pkg/classes"
	"github.com/menta2k/object-locator/pkg/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type NamesRequest struct {
	Model string `json:"model"`
}

// Class indices arrive as JSON object keys, i.e. strings
type NamesResponse struct {
	Names map[string]string `json:"names"`
}

type DevicesResponse struct {
	Accelerators int `json:"accelerators"`
}

type PredictRequest struct {
	Model     string   `json:"model"`
	Device    string   `json:"device"`
	Sources   []string `json:"sources"`
	Conf      float64  `json:"conf"`
	IoU       *float64 `json:"iou,omitempty"`
	Augment   bool     `json:"augment"`
	Classes   []int    `json:"classes"`
	LineWidth *int     `json:"line_width"`
	SaveDir   string   `json:"save_dir"`
}

// Box is one detection; XYWH is centre x, centre y, width, height in pixels
type Box struct {
	Cls  int        `json:"cls"`
	XYWH [4]float64 `json:"xywh"`
	Conf float64    `json:"conf"`
}

type ImageResult struct {
	Path  string `json:"path"`
	Boxes []Box  `json:"boxes"`
}

type PredictResponse struct {
	Predictions []ImageResult `json:"predictions"`
}

func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8000"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, errors.Errorf("unsupported inference URL %q (only http and https are supported)", serverURL)
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}, nil
}

// Names returns the model's class index to name table
func (c *Client) Names(ctx context.Context, model string) (classes.Lookup, error) {
	respBody, err := c.sendRequest(ctx, http.MethodPost, "/v1/names", NamesRequest{Model: model})
	if err != nil {
		return nil, err
	}

	var resp NamesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse names response")
	}
	if len(resp.Names) == 0 {
		return nil, errors.Errorf("model %s reported no classes", model)
	}

	lookup := make(classes.Lookup, len(resp.Names))
	for key, name := range resp.Names {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(err, "class key %q", key)
		}
		lookup[idx] = name
	}
	return lookup, nil
}

// Accelerators returns how many CUDA devices the sidecar can use
func (c *Client) Accelerators(ctx context.Context) (int, error) {
	respBody, err := c.sendRequest(ctx, http.MethodGet, "/v1/devices", nil)
	if err != nil {
		return 0, err
	}

	var resp DevicesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, errors.Wrap(err, "failed to parse devices response")
	}
	if resp.Accelerators < 0 {
		return 0, errors.Errorf("negative accelerator count %d", resp.Accelerators)
	}
	return resp.Accelerators, nil
}

// Predict runs the model over every source in a single request
func (c *Client) Predict(ctx context.Context, req types.PredictRequest) ([]types.Prediction, error) {
	payload := PredictRequest{
		Model:     req.Model,
		Device:    req.Device,
		Sources:   req.Sources,
		Conf:      req.Confidence,
		IoU:       req.IoU,
		Augment:   req.Augment,
		Classes:   req.Classes,
		LineWidth: req.LineWidth,
		SaveDir:   req.SaveDir,
	}

	respBody, err := c.sendRequest(ctx, http.MethodPost, "/v1/predict", payload)
	if err != nil {
		return nil, err
	}

	var resp PredictResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse predict response")
	}

	preds := make([]types.Prediction, 0, len(resp.Predictions))
	for _, r := range resp.Predictions {
		pred := types.Prediction{Path: r.Path, Detections: make([]types.RawDetection, 0, len(r.Boxes))}
		for _, b := range r.Boxes {
			pred.Detections = append(pred.Detections, types.RawDetection{
				Class:      b.Cls,
				Box:        types.Box{X: b.XYWH[0], Y: b.XYWH[1], W: b.XYWH[2], H: b.XYWH[3]},
				Confidence: b.Conf,
			})
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s %s: server returned status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return respBody, nil
}
