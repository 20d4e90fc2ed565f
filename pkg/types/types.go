package types

// Box is a pixel bounding box in centre format: X, Y locate the centre of
// the object and W, H are its full extents.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RawDetection is one object as emitted by a detector backend
type RawDetection struct {
	Class      int     `json:"class"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Prediction holds every detection a backend produced for one source image,
// in emission order.
type Prediction struct {
	Path       string         `json:"path"`
	Detections []RawDetection `json:"detections"`
}

// Point is an integer pixel position, serialised as [x, y]
type Point [2]int

// X returns the horizontal coordinate
func (p Point) X() int { return p[0] }

// Y returns the vertical coordinate
func (p Point) Y() int { return p[1] }

// ImageRecord lists the positions found in a single image grouped by
// canonical class name.
type ImageRecord struct {
	Path     string             `json:"path"`
	Position map[string][]Point `json:"position"`
}

// PositionMap maps an image identifier (file base name without extension)
// to its record.
type PositionMap map[string]ImageRecord

// PredictRequest carries the run parameters handed to a detector backend
type PredictRequest struct {
	// Model is the model identifier or a weights path resolving to it
	Model  string
	Device string
	// Sources are the image paths to run on
	Sources    []string
	Confidence float64
	// IoU is nil when the backend default applies
	IoU     *float64
	Augment bool
	// Classes restricts detection to these indices; nil means all classes
	Classes []int
	// LineWidth is the box stroke for rendered images; nil means backend default
	LineWidth *int
	// SaveDir receives one rendered image per source, named by its base name
	SaveDir string
}
