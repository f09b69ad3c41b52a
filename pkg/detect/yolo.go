package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/geom"
)

// personClassID is the COCO class index for "person".
const personClassID = 0

// YOLODetector runs a YOLOv8 ONNX model through the gocv DNN module and
// keeps only person detections.
type YOLODetector struct {
	net       gocv.Net
	config    Config
	inputSize image.Point
	mu        sync.Mutex
}

// NewYOLO loads the ONNX model and prepares the network.
func NewYOLO(cfg Config) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	log.Info("detector model loaded", "path", cfg.ModelPath, "input", cfg.InputSize)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputSize, cfg.InputSize),
	}, nil
}

// Detect runs inference on the frame and returns person detections above
// the confidence threshold, in native frame coordinates.
func (d *YOLODetector) Detect(frame gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrDetection)
	}

	img, scale, owned := d.prepare(frame)
	if owned {
		defer img.Close()
	}

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dets, err := d.parseOutput(output, imgW, imgH)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}

	// Undo the pre-resize so boxes land in native frame coordinates
	if scale != 1.0 {
		for i := range dets {
			dets[i].Box = dets[i].Box.Scale(1.0 / scale)
		}
	}
	return dets, nil
}

// prepare downscales frames whose longer side exceeds DetectionSize to
// bound blob conversion cost. Returns the image to run on, the applied
// scale factor, and whether the caller must close the returned Mat.
func (d *YOLODetector) prepare(frame gocv.Mat) (gocv.Mat, float64, bool) {
	longer := frame.Cols()
	if frame.Rows() > longer {
		longer = frame.Rows()
	}
	if d.config.DetectionSize <= 0 || longer <= d.config.DetectionSize {
		return frame, 1.0, false
	}

	scale := float64(d.config.DetectionSize) / float64(longer)
	resized := gocv.NewMat()
	gocv.Resize(frame, &resized, image.Pt(
		int(float64(frame.Cols())*scale),
		int(float64(frame.Rows())*scale),
	), 0, 0, gocv.InterpolationLinear)
	return resized, scale, true
}

// parseOutput reads the YOLOv8 output tensor, keeps person boxes above
// the confidence threshold, and applies NMS.
// Output shape: [1, 84, 8400] - 4 bbox values + 80 class scores per anchor.
func (d *YOLODetector) parseOutput(output gocv.Mat, imgW, imgH float32) ([]Detection, error) {
	rows := output.Cols() // anchors

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, err
	}

	confThresh := float32(d.config.Confidence)

	var boxes []image.Rectangle
	var confidences []float32
	for i := 0; i < rows; i++ {
		score := data[(4+personClassID)*rows+i]
		if score < confThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		inputW := float32(d.inputSize.X)
		inputH := float32(d.inputSize.Y)
		x1 := int((cx - w/2) * imgW / inputW)
		y1 := int((cy - h/2) * imgH / inputH)
		x2 := int((cx + w/2) * imgW / inputW)
		y2 := int((cy + h/2) * imgH / inputH)

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, score)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, confThresh, float32(d.config.NMSThreshold))

	dets := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		dets = append(dets, Detection{
			Box:        geom.NewRectFrom(boxes[idx]),
			Confidence: float64(confidences[idx]),
		})
	}
	return dets, nil
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
