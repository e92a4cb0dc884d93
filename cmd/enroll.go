package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/checkpoint/internal/face"
	"github.com/spf13/cobra"
)

var enrollForce bool

var enrollCmd = &cobra.Command{
	Use:   "enroll <label> <image_path>",
	Short: "Add a face image to the gallery under a label",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(args[0], args[1], enrollForce)
	},
}

func init() {
	enrollCmd.Flags().BoolVarP(&enrollForce, "force", "f", false, "Replace an existing image with the same label")
	rootCmd.AddCommand(enrollCmd)
}

// enrollTarget returns where label's image goes in the gallery.
func enrollTarget(galleryDir, label, imagePath string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" || label == "." || label == ".." || strings.ContainsAny(label, `/\`) {
		return "", fmt.Errorf("invalid label %q", label)
	}
	if !face.IsImageFile(imagePath) {
		return "", fmt.Errorf("%s is not a .jpg, .jpeg or .png file", filepath.Base(imagePath))
	}
	return filepath.Join(galleryDir, label+strings.ToLower(filepath.Ext(imagePath))), nil
}

func runEnroll(label, imagePath string, force bool) error {
	target, err := enrollTarget(Cfg.Gallery.Dir, label, imagePath)
	if err != nil {
		return err
	}

	img, err := face.DecodeFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	det := openDetector()
	defer det.Close()
	if _, ok := face.FirstRegion(det, img); !ok {
		fmt.Println("❌ No faces detected in the provided image. Nothing enrolled.")
		return nil
	}

	// Another extension for the same label would silently shadow or be shadowed
	existing, _ := filepath.Glob(filepath.Join(Cfg.Gallery.Dir, "*"))
	for _, p := range existing {
		if face.LabelFromFile(p) == strings.TrimSpace(label) && face.IsImageFile(p) && p != target {
			fmt.Fprintf(os.Stderr, "⚠️  %s also provides label %q; the file sorting last wins\n", p, label)
		}
	}

	if !force {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("%s already exists (use --force to replace it)", target)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	if err := os.MkdirAll(Cfg.Gallery.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create gallery directory: %w", err)
	}
	if err := copyFile(imagePath, target); err != nil {
		return fmt.Errorf("failed to copy image into gallery: %w", err)
	}

	fmt.Printf("✅ Enrolled '%s' as %s\n", strings.TrimSpace(label), target)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
