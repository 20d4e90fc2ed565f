package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Model is a recognised detector model identifier
type Model string

const (
	ModelYOLOv8n Model = "yolov8n.pt"
	ModelYOLOv8s Model = "yolov8s.pt"
	ModelYOLOv8m Model = "yolov8m.pt"
	ModelYOLOv8l Model = "yolov8l.pt"
	ModelYOLOv8x Model = "yolov8x.pt"
)

// Models lists every recognised model, smallest first
func Models() []Model {
	return []Model{ModelYOLOv8n, ModelYOLOv8s, ModelYOLOv8m, ModelYOLOv8l, ModelYOLOv8x}
}

// ParseModel returns the Model named s
func ParseModel(s string) (Model, error) {
	switch m := Model(s); m {
	case ModelYOLOv8n, ModelYOLOv8s, ModelYOLOv8m, ModelYOLOv8l, ModelYOLOv8x:
		return m, nil
	default:
		return "", errors.Errorf("%q not in %v", s, Models())
	}
}

func (m Model) String() string { return string(m) }

// DeviceKind separates the CPU from numbered accelerators
type DeviceKind int

const (
	DeviceCPU DeviceKind = iota
	DeviceCUDA
)

// Device is a compute device the detector runs on
type Device struct {
	Kind DeviceKind
	// Index is the accelerator ordinal; always 0 for the CPU
	Index int
}

// CPU is the host processor
var CPU = Device{Kind: DeviceCPU}

// Devices lists the devices available with the given number of accelerator cards
func Devices(accelerators int) []Device {
	out := []Device{CPU}
	for i := 0; i < accelerators; i++ {
		out = append(out, Device{Kind: DeviceCUDA, Index: i})
	}
	return out
}

// ParseDevice accepts "cpu" or "cuda:N" with 0 <= N < accelerators
func ParseDevice(s string, accelerators int) (Device, error) {
	if s == "cpu" {
		return CPU, nil
	}
	if rest, ok := strings.CutPrefix(s, "cuda:"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n >= 0 && n < accelerators && strconv.Itoa(n) == rest {
			return Device{Kind: DeviceCUDA, Index: n}, nil
		}
	}
	return Device{}, errors.Errorf("%q not in %v", s, Devices(accelerators))
}

func (d Device) String() string {
	switch d.Kind {
	case DeviceCUDA:
		return "cuda:" + strconv.Itoa(d.Index)
	default:
		return "cpu"
	}
}
