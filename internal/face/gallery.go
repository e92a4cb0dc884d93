package face

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/checkpoint/internal/logger"
)

// ErrGalleryDir is returned when the gallery directory cannot be read.
var ErrGalleryDir = errors.New("gallery directory unavailable")

// Detector locates candidate face regions in a frame. The sequence is finite
// and its order is stable for a given frame and detector configuration.
type Detector interface {
	Detect(frame image.Image) iter.Seq[image.Rectangle]
}

// FirstRegion returns the first region d reports for frame.
func FirstRegion(d Detector, frame image.Image) (image.Rectangle, bool) {
	for r := range d.Detect(frame) {
		return r, true
	}
	return image.Rectangle{}, false
}

// Gallery maps identity labels to signatures, keeping insertion order so that
// matching ties resolve the same way on every run. It is filled once at
// startup and only read afterwards, so it is safe to share between sessions.
type Gallery struct {
	labels  []string
	entries map[string]Signature
}

// NewGallery returns an empty gallery.
func NewGallery() *Gallery {
	return &Gallery{entries: make(map[string]Signature)}
}

// Put stores sig under label. An existing label keeps its position and gets
// the new signature; the return value reports whether that happened.
func (g *Gallery) Put(label string, sig Signature) bool {
	if _, ok := g.entries[label]; ok {
		g.entries[label] = sig
		return true
	}
	g.labels = append(g.labels, label)
	g.entries[label] = sig
	return false
}

// Get returns the signature stored for label. A nil gallery has no entries.
func (g *Gallery) Get(label string) (Signature, bool) {
	if g == nil {
		return Signature{}, false
	}
	sig, ok := g.entries[label]
	return sig, ok
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.labels)
}

// Labels returns the identity labels in gallery order.
func (g *Gallery) Labels() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.labels))
	copy(out, g.labels)
	return out
}

// IsImageFile reports whether name has a gallery image extension (jpg, jpeg, png; any case).
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// LabelFromFile strips directory and extension: "img/alice.JPG" -> "alice".
func LabelFromFile(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SkippedFile is a gallery image that produced no entry.
type SkippedFile struct {
	File   string
	Reason string
}

// LoadReport summarises a gallery load.
type LoadReport struct {
	Loaded      []string
	Skipped     []SkippedFile
	Overwritten []string
}

// Loader builds a Gallery from a directory of labelled images.
type Loader struct {
	Detector  Detector
	Extractor Extractor
	// Progress, when set, is called after each candidate file.
	Progress func(done, total int)
}

// Files lists the candidate images in dir in lexical order. Later files with
// the same label overwrite earlier ones, so "alice.jpg" loses to "alice.png".
func (l *Loader) Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGalleryDir, dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// Load reads every image in dir, detects faces and stores the signature of the
// first detected face under the file's base name. Files without a detectable
// face or that fail to decode are skipped without error.
func (l *Loader) Load(dir string) (*Gallery, LoadReport, error) {
	files, err := l.Files(dir)
	if err != nil {
		return nil, LoadReport{}, err
	}

	g := NewGallery()
	var report LoadReport
	for i, path := range files {
		label := LabelFromFile(path)
		sig, reason := l.signatureOf(path)
		if reason != "" {
			logger.Info("Skipping gallery image",
				logger.LoggerOptions{Key: "file", Data: path},
				logger.LoggerOptions{Key: "reason", Data: reason},
			)
			report.Skipped = append(report.Skipped, SkippedFile{File: path, Reason: reason})
		} else {
			if g.Put(label, sig) {
				logger.Warning("Gallery label overwritten by later file",
					logger.LoggerOptions{Key: "label", Data: label},
					logger.LoggerOptions{Key: "file", Data: path},
				)
				report.Overwritten = append(report.Overwritten, label)
			} else {
				report.Loaded = append(report.Loaded, label)
			}
		}

		if l.Progress != nil {
			l.Progress(i+1, len(files))
		}
	}

	logger.Info("Gallery loaded",
		logger.LoggerOptions{Key: "dir", Data: dir},
		logger.LoggerOptions{Key: "identities", Data: g.Len()},
		logger.LoggerOptions{Key: "skipped", Data: len(report.Skipped)},
	)
	return g, report, nil
}

// signatureOf returns the signature of the first face in path, or a reason it has none.
func (l *Loader) signatureOf(path string) (Signature, string) {
	img, err := DecodeFile(path)
	if err != nil {
		return Signature{}, err.Error()
	}

	region, ok := FirstRegion(l.Detector, img)
	if !ok {
		return Signature{}, "no face detected"
	}

	sig, err := l.Extractor.Extract(Crop(img, region))
	if err != nil {
		return Signature{}, err.Error()
	}
	return sig, ""
}

// DecodeFile opens and decodes an image file.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
