package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/checkpoint/internal/face"
	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Show which identities the gallery directory provides",
	Run: func(cmd *cobra.Command, args []string) {
		det := openDetector()
		defer det.Close()

		g, report := loadGallery(det)
		printGallery(os.Stdout, g, report)
	},
}

func init() {
	rootCmd.AddCommand(galleryCmd)
}

func printGallery(out io.Writer, g *face.Gallery, report face.LoadReport) {
	if g.Len() == 0 {
		fmt.Fprintln(out, "No identities found in gallery.")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "#\tLABEL")
		fmt.Fprintln(w, "-\t-----")
		for i, label := range g.Labels() {
			fmt.Fprintf(w, "%d\t%s\n", i+1, label)
		}
		w.Flush()
	}

	if len(report.Overwritten) > 0 {
		fmt.Fprintf(out, "\n%d label(s) provided by more than one file: %v\n", len(report.Overwritten), report.Overwritten)
	}
	if len(report.Skipped) > 0 {
		fmt.Fprintf(out, "\n%d file(s) skipped:\n", len(report.Skipped))
		for _, s := range report.Skipped {
			fmt.Fprintf(out, "  %s\t%s\n", filepath.Base(s.File), s.Reason)
		}
	}
}
