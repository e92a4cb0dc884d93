package face

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestExtract_FixedLength(t *testing.T) {
	sizes := []image.Point{{37, 53}, {300, 200}, {100, 100}, {1, 1}}
	for _, sz := range sizes {
		sig := mustExtract(t, patternImage(sz.X, sz.Y, 9))
		if sig.Len() != SignatureLen {
			t.Errorf("size %v: expected length %d, got %d", sz, SignatureLen, sig.Len())
		}
	}
}

func TestExtract_ValuesInUnitRange(t *testing.T) {
	sig := mustExtract(t, patternImage(64, 48, 7))
	for i, v := range sig.Values() {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %f", i, v)
		}
	}
}

func TestExtract_DeterministicFromBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, patternImage(80, 60, 4)); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	decode := func() image.Image {
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		return img
	}

	a := mustExtract(t, decode()).Values()
	b := mustExtract(t, decode()).Values()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("signatures differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestExtract_EmptyRegion(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
	}{
		{name: "nil image", img: nil},
		{name: "zero size", img: image.NewRGBA(image.Rect(0, 0, 0, 0))},
		{name: "zero width", img: image.NewGray(image.Rect(5, 5, 5, 20))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HistogramExtractor{}.Extract(tt.img)
			if !errors.Is(err, ErrEmptyRegion) {
				t.Errorf("expected ErrEmptyRegion, got %v", err)
			}
		})
	}
}

func TestExtract_SubImageRegion(t *testing.T) {
	frame := patternImage(200, 200, 6)
	region := image.Rect(40, 50, 140, 170)

	fromCrop := mustExtract(t, Crop(frame, region))

	copied := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	for y := 0; y < region.Dy(); y++ {
		for x := 0; x < region.Dx(); x++ {
			copied.Set(x, y, frame.At(region.Min.X+x, region.Min.Y+y))
		}
	}
	fromCopy := mustExtract(t, copied)

	if sim := CosineSimilarity(fromCrop, fromCopy); sim < 1-1e-9 {
		t.Errorf("expected cropped and copied regions to match, similarity %f", sim)
	}
}

func TestExtract_Equalises(t *testing.T) {
	t.Run("constant image untouched", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, CanonicalSize, CanonicalSize))
		for i := range img.Pix {
			img.Pix[i] = 128
		}
		for i, v := range mustExtract(t, img).Values() {
			if v != 128.0/255.0 {
				t.Fatalf("value %d = %f, expected constant image to stay 128", i, v)
			}
		}
	})

	t.Run("two levels stretched to full range", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, CanonicalSize, CanonicalSize))
		for y := 0; y < CanonicalSize; y++ {
			for x := 0; x < CanonicalSize; x++ {
				v := uint8(10)
				if x >= CanonicalSize/2 {
					v = 200
				}
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
		vals := mustExtract(t, img).Values()
		if vals[0] != 0 || vals[SignatureLen-1] != 1 {
			t.Errorf("expected dark half at 0 and bright half at 1, got %f and %f", vals[0], vals[SignatureLen-1])
		}
	})
}

func TestExtract_BrightnessInvariance(t *testing.T) {
	// Equalisation maps both versions onto the same histogram
	dark := image.NewGray(image.Rect(0, 0, 100, 100))
	bright := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := uint8((x + y) % 64)
			dark.SetGray(x, y, color.Gray{Y: v})
			bright.SetGray(x, y, color.Gray{Y: v*2 + 100})
		}
	}

	sim := CosineSimilarity(mustExtract(t, dark), mustExtract(t, bright))
	if sim < 0.999 {
		t.Errorf("expected lighting-shifted faces to match, similarity %f", sim)
	}
}
