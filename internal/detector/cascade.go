package detector

import (
	"fmt"
	"image"
	"iter"
	"os"
	"sync"

	"github.com/andresmejia3/checkpoint/internal/logger"
	"gocv.io/x/gocv"
)

const (
	// Haar detection defaults for a single frontal face at door distance.
	DefaultScaleFactor  = 1.1
	DefaultMinNeighbors = 4

	DefaultCascadeFile = "haarcascade_frontalface_default.xml"
)

// CascadeConfig holds configuration for the Haar cascade detector.
type CascadeConfig struct {
	CascadePath  string
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
}

// Cascade finds frontal faces with an OpenCV Haar cascade classifier.
// The classifier is not goroutine-safe so detection is serialised.
type Cascade struct {
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
	mutex        sync.Mutex
}

// NewCascade loads the classifier file named in cfg.
func NewCascade(cfg CascadeConfig) (*Cascade, error) {
	if cfg.CascadePath == "" {
		cfg.CascadePath = DefaultCascadeFile
	}
	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = DefaultScaleFactor
	}
	if cfg.MinNeighbors < 0 {
		cfg.MinNeighbors = DefaultMinNeighbors
	}

	if _, err := os.Stat(cfg.CascadePath); err != nil {
		return nil, fmt.Errorf("cascade file not found: %s: %w", cfg.CascadePath, err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade classifier from %s", cfg.CascadePath)
	}

	logger.Info("Face cascade loaded", logger.LoggerOptions{
		Key: "cascade",
		Data: map[string]interface{}{
			"path":          cfg.CascadePath,
			"scale_factor":  cfg.ScaleFactor,
			"min_neighbors": cfg.MinNeighbors,
		},
	})

	return &Cascade{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      cfg.MinSize,
	}, nil
}

// Detect returns the face rectangles of frame in classifier order. Detection
// runs when the sequence is first iterated. A frame that cannot be converted
// yields no faces.
func (c *Cascade) Detect(frame image.Image) iter.Seq[image.Rectangle] {
	return func(yield func(image.Rectangle) bool) {
		for _, r := range c.detect(frame) {
			if !yield(r) {
				return
			}
		}
	}
}

func (c *Cascade) detect(frame image.Image) []image.Rectangle {
	if frame == nil || frame.Bounds().Empty() {
		return nil
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		logger.Warning("Failed to convert frame for detection", logger.LoggerOptions{Key: "error", Data: err})
		return nil
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	c.mutex.Lock()
	faces := c.classifier.DetectMultiScaleWithParams(
		gray,
		c.scaleFactor,
		c.minNeighbors,
		0,
		c.minSize,
		image.Point{},
	)
	c.mutex.Unlock()

	// Mat coordinates start at 0,0; shift back into the frame's space
	offset := frame.Bounds().Min
	for i := range faces {
		faces[i] = faces[i].Add(offset)
	}
	return faces
}

// Close releases the classifier.
func (c *Cascade) Close() error {
	return c.classifier.Close()
}
