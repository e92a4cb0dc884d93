package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/checkpoint/internal/camera"
	"github.com/andresmejia3/checkpoint/internal/checkpoint"
	"github.com/andresmejia3/checkpoint/internal/config"
	"github.com/andresmejia3/checkpoint/internal/face"
	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/andresmejia3/checkpoint/internal/session"
	"github.com/andresmejia3/checkpoint/internal/status"
	"github.com/andresmejia3/checkpoint/internal/store"
	"github.com/andresmejia3/checkpoint/internal/transport"
	"github.com/andresmejia3/checkpoint/internal/utils"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Wait for badge claims and verify each one against the camera",
	Long: `Loads the face gallery, opens the serial link to the badge reader and
answers every FACE_REQUEST with FACE_VERIFIED:<name> or FACE_UNKNOWN.
Verified arrivals are appended to the attendance store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCheckpoint(cmd.Context())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&flagCfg.Serial.Port, "port", "p", flagCfg.Serial.Port, `Serial device of the badge reader ("-" for stdin/stdout)`)
	f.IntVar(&flagCfg.Serial.Baud, "baud", flagCfg.Serial.Baud, "Serial baud rate")
	f.StringVar(&flagCfg.Serial.Charset, "charset", flagCfg.Serial.Charset, "Charset of the serial line (utf-8, latin1, ...)")
	f.StringVar(&flagCfg.Camera.URL, "camera-url", flagCfg.Camera.URL, "Camera still image or MJPEG stream URL")
	f.StringVar(&flagCfg.Camera.Mode, "camera-mode", flagCfg.Camera.Mode, "Camera mode: still or mjpeg")
	f.DurationVar(&flagCfg.Camera.Timeout, "camera-timeout", flagCfg.Camera.Timeout, "Timeout of a single still request")
	f.DurationVarP(&flagCfg.Session.Budget, "budget", "b", flagCfg.Session.Budget, "Time a claim has to be confirmed by a face")
	f.DurationVar(&flagCfg.Session.PollInterval, "poll-interval", flagCfg.Session.PollInterval, "Pause after a failed or non-matching frame")
	f.Float64Var(&flagCfg.Session.AcceptThreshold, "accept-threshold", flagCfg.Session.AcceptThreshold, "Confidence the claimed face must exceed")
	f.BoolVar(&flagCfg.Store.DedupeDaily, "dedupe", flagCfg.Store.DedupeDaily, "Record each badge at most once per day")
	f.StringVar(&flagCfg.HTTP.Addr, "http-addr", flagCfg.HTTP.Addr, "Serve /healthz, /status and /attendance on this address")

	rootCmd.AddCommand(runCmd)
}

// runCheckpoint wires every component and runs the claim loop until the
// line closes or the process is signalled.
func runCheckpoint(ctx context.Context) error {
	// 1. Setup failures are fatal before the loop starts
	det := openDetector()
	defer det.Close()

	gallery, _ := loadGallery(det)
	if gallery.Len() == 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Gallery %s has no usable faces; every claim will be rejected\n", Cfg.Gallery.Dir)
	}

	st := openAttendance(ctx)
	recorder := store.NewRecorder(st, store.WithDailyDedupe(Cfg.Store.DedupeDaily))

	// 2. Camera
	frames, closeFrames := newFrameSource(ctx, Cfg.Camera)
	defer closeFrames()

	// 3. Badge reader link
	port, err := transport.OpenPort(Cfg.Serial.Port, Cfg.Serial.Baud)
	if err != nil {
		utils.Die("Failed to open badge reader", err)
	}
	link, err := transport.NewSerial(port, Cfg.Serial.Charset)
	if err != nil {
		port.Close()
		utils.Die("Failed to start badge reader link", err)
	}
	defer link.Close()

	ctrl := checkpoint.New(link, recorder, session.Config{
		Frames:          frames,
		Detector:        det,
		Extractor:       face.HistogramExtractor{},
		Matcher:         face.NewMatcher(gallery, Cfg.Matcher.Threshold),
		Budget:          Cfg.Session.Budget,
		PollInterval:    Cfg.Session.PollInterval,
		AcceptThreshold: Cfg.Session.AcceptThreshold,
	})

	// 4. Optional status surface
	if Cfg.HTTP.Addr != "" {
		srv := status.NewServer(Cfg.HTTP.Addr, ctrl, st, gallery.Len())
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("Status server stopped", logger.LoggerOptions{Key: "error", Data: err})
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Fprintf(os.Stderr, "✅ System Ready. %d identities loaded. Waiting for RFID on %s...\n", gallery.Len(), Cfg.Serial.Port)

	if err := ctrl.Run(ctx); err != nil {
		return fmt.Errorf("claim loop failed: %w", err)
	}

	stats := ctrl.Stats()
	fmt.Fprintf(os.Stderr, "\n🏁 Checkpoint stopped. %d claims, %d verified, %d rejected.\n", stats.Claims, stats.Verified, stats.Rejected)
	return nil
}

// newFrameSource builds the camera for cfg.Mode. The returned func releases it.
func newFrameSource(ctx context.Context, cfg config.CameraConfig) (session.FrameSource, func()) {
	if cfg.Mode == config.CameraModeMJPEG {
		s := camera.NewStreamSource(cfg.URL)
		s.Start(ctx)
		return s, func() { s.Close() }
	}
	return camera.NewHTTPSource(cfg.URL, cfg.Timeout), func() {}
}
