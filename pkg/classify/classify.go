// Package classify runs the image classification model on captured frames.
//
// The model is an ONNX export of the trained classifier, loaded through
// OpenCV's DNN module. Classification is a pure function of the frame; the
// package keeps no state the rest of the system depends on.
package classify

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// Prediction is one classifier verdict for a frame.
type Prediction struct {
	Label      string
	Confidence float64
}

// Config holds classifier configuration.
type Config struct {
	ModelPath  string
	LabelsPath string

	// Input size the model expects. Defaults to 224x224.
	InputWidth  int
	InputHeight int
}

// DefaultConfig returns defaults matching the exported model.
func DefaultConfig() Config {
	return Config{
		ModelPath:   "models/hab_classifier.onnx",
		LabelsPath:  "models/labels.txt",
		InputWidth:  224,
		InputHeight: 224,
	}
}

// Classifier wraps the loaded network and its label table.
type Classifier struct {
	net       gocv.Net
	labels    map[int]string
	inputSize image.Point
	mu        sync.Mutex
}

// New loads the ONNX model and the labels file.
func New(cfg Config) (*Classifier, error) {
	if cfg.InputWidth == 0 {
		cfg.InputWidth = 224
	}
	if cfg.InputHeight == 0 {
		cfg.InputHeight = 224
	}

	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Classifier{
		net:       net,
		labels:    labels,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Classify runs one forward pass over a BGR frame.
func (c *Classifier) Classify(img gocv.Mat) (Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if img.Empty() {
		return Prediction{}, fmt.Errorf("empty frame")
	}

	// Normalize to [0,1] and swap BGR->RGB, matching training preprocessing.
	blob := gocv.BlobFromImage(img, 1.0/255.0, c.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	c.net.SetInput(blob, "")
	output := c.net.Forward("")
	defer output.Close()

	scores, err := output.DataPtrFloat32()
	if err != nil {
		return Prediction{}, fmt.Errorf("read output tensor: %w", err)
	}
	if len(scores) == 0 {
		return Prediction{}, fmt.Errorf("empty output tensor")
	}

	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}

	label, ok := c.labels[best]
	if !ok {
		label = fmt.Sprintf("Class %d", best)
	}
	return Prediction{Label: label, Confidence: float64(scores[best])}, nil
}

// Close releases the network.
func (c *Classifier) Close() error {
	return c.net.Close()
}
