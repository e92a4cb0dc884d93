package face

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// CanonicalSize is the width and height every face region is normalised to.
const CanonicalSize = 100

// SignatureLen is the number of values in every Signature.
const SignatureLen = CanonicalSize * CanonicalSize

// ErrEmptyRegion is returned when a face region has no pixels.
var ErrEmptyRegion = errors.New("empty face region")

// Signature is a flattened, equalised grayscale face in [0,1].
// The zero value is invalid; signatures are only built by Extract or NewSignature.
type Signature struct {
	values []float64
}

// NewSignature copies vals into a Signature. It is mostly useful for tests and
// for stores that persist signatures.
func NewSignature(vals []float64) Signature {
	cp := make([]float64, len(vals))
	copy(cp, vals)
	return Signature{values: cp}
}

// Len returns the number of values.
func (s Signature) Len() int { return len(s.values) }

// Values returns a copy of the underlying values.
func (s Signature) Values() []float64 {
	cp := make([]float64, len(s.values))
	copy(cp, s.values)
	return cp
}

// Extractor turns a face region into a Signature.
type Extractor interface {
	Extract(region image.Image) (Signature, error)
}

// HistogramExtractor converts to gray, resizes to CanonicalSize, equalises
// the histogram with OpenCV and scales intensities to [0,1].
type HistogramExtractor struct{}

// Extract implements Extractor.
func (HistogramExtractor) Extract(region image.Image) (Signature, error) {
	if region == nil || region.Bounds().Empty() {
		return Signature{}, ErrEmptyRegion
	}

	mat, err := gocv.ImageToMatRGB(region)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to convert face region: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, image.Pt(CanonicalSize, CanonicalSize), 0, 0, gocv.InterpolationLinear)

	equalized := gocv.NewMat()
	defer equalized.Close()
	gocv.EqualizeHist(resized, &equalized)

	pix := equalized.ToBytes()
	if len(pix) != SignatureLen {
		return Signature{}, fmt.Errorf("unexpected face signature size %d", len(pix))
	}

	vals := make([]float64, SignatureLen)
	for i, p := range pix {
		vals[i] = float64(p) / 255.0
	}
	return Signature{values: vals}, nil
}

// Crop returns the part of img inside r, sharing pixels when the image supports it.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst
}
