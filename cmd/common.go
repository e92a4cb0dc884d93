package cmd

import (
	"fmt"
	"image"
	"os"

	"github.com/andresmejia3/checkpoint/internal/detector"
	"github.com/andresmejia3/checkpoint/internal/face"
	"github.com/andresmejia3/checkpoint/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// openDetector loads the configured cascade or exits.
func openDetector() *detector.Cascade {
	det, err := detector.NewCascade(detector.CascadeConfig{
		CascadePath:  Cfg.Detector.Cascade,
		ScaleFactor:  Cfg.Detector.ScaleFactor,
		MinNeighbors: Cfg.Detector.MinNeighbors,
		MinSize:      image.Pt(Cfg.Detector.MinSize, Cfg.Detector.MinSize),
	})
	if err != nil {
		utils.Die("Failed to load face detector", err)
	}
	return det
}

// loadGallery builds the gallery with a progress bar on stderr. A missing
// gallery directory is fatal.
func loadGallery(det face.Detector) (*face.Gallery, face.LoadReport) {
	loader := &face.Loader{Detector: det, Extractor: face.HistogramExtractor{}}

	files, err := loader.Files(Cfg.Gallery.Dir)
	if err != nil {
		utils.Die("Failed to read gallery", err)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("🖼️  Loading gallery"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	loader.Progress = func(done, total int) { bar.Set(done) }

	g, report, err := loader.Load(Cfg.Gallery.Dir)
	if err != nil {
		utils.Die("Failed to load gallery", err)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	for _, s := range report.Skipped {
		fmt.Fprintf(os.Stderr, "⚠️  Skipped %s: %s\n", s.File, s.Reason)
	}
	return g, report
}
