// Package detect adapts the external person-detection model. The model is
// a black box from the pipeline's perspective: frame in, boxes out.
// Confidence filtering happens here, at the boundary.
package detect

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/perimetric/zonewatch/pkg/geom"
)

// ErrDetection marks a single-frame inference failure. The pipeline logs
// it and treats the frame as having no detections; it never stops the loop.
var ErrDetection = errors.New("detect: inference failed")

// Detection is one detector output for one frame. Class is always person.
type Detection struct {
	Box        geom.Rectangle
	Confidence float64
}

// Detector finds persons in a frame.
type Detector interface {
	// Detect returns person detections above the configured confidence
	// threshold. On failure it returns an empty list and an error
	// wrapping ErrDetection.
	Detect(frame gocv.Mat) ([]Detection, error)

	// Close releases model resources.
	Close() error
}

// Config holds detector configuration.
type Config struct {
	ModelPath     string  // path to ONNX model
	Confidence    float64 // minimum confidence, detections below are dropped here
	NMSThreshold  float64 // non-maximum suppression IoU threshold
	InputSize     int     // model input side (square)
	DetectionSize int     // pre-resize frames so longer side <= this; 0 disables
}

// DefaultConfig returns production defaults for YOLOv8n.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "models/yolov8n.onnx",
		Confidence:    0.5,
		NMSThreshold:  0.45,
		InputSize:     640,
		DetectionSize: 640,
	}
}
