package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/checkpoint/internal/face"
	"github.com/andresmejia3/checkpoint/internal/types"
	"github.com/spf13/cobra"
)

var verifyName string

var verifyCmd = &cobra.Command{
	Use:   "verify <image_path>",
	Short: "Check a single image against the gallery without the camera or badge reader",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runVerify(args[0], verifyName)
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyName, "name", "n", "", "Claimed identity to check the image against")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(imagePath, claimed string) error {
	img, err := face.DecodeFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	det := openDetector()
	defer det.Close()

	gallery, _ := loadGallery(det)
	matcher := face.NewMatcher(gallery, Cfg.Matcher.Threshold)
	extractor := face.HistogramExtractor{}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tREGION\tLABEL\tCONFIDENCE")
	fmt.Fprintln(w, "----\t------\t-----\t----------")

	var results []types.MatchResult
	for region := range det.Detect(img) {
		sig, err := extractor.Extract(face.Crop(img, region))
		if err != nil {
			continue
		}
		res := matcher.Match(sig)
		results = append(results, res)
		fmt.Fprintf(w, "%d\t%v\t%s\t%.3f\n", len(results), region, res.Label, res.Confidence)
	}
	w.Flush()

	if len(results) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}
	if claimed == "" {
		return nil
	}

	for _, res := range results {
		if res.Label == claimed && res.Confidence > Cfg.Session.AcceptThreshold {
			fmt.Printf("✅ %s would be verified (confidence %.3f)\n", claimed, res.Confidence)
			return nil
		}
	}
	fmt.Printf("❌ %s would not be verified\n", claimed)
	return nil
}
