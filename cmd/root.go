package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/checkpoint/internal/config"
	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/andresmejia3/checkpoint/internal/store"
	"github.com/andresmejia3/checkpoint/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// Cfg is the resolved configuration shared by subcommands
	Cfg *config.Config
	// Attendance is the attendance store, opened by the commands that need it
	Attendance store.Store

	cfgFile string
	// flagCfg receives flag values; only flags the user set are copied into Cfg
	flagCfg = config.Default()
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "checkpoint",
	Short:   "Badge + face attendance checkpoint",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
			return err
		}
		Cfg = cfg
		return nil
	},
}

// cleanup releases what subcommands opened. It runs after every command,
// including ones that return an error, which PersistentPostRun would skip.
func cleanup() {
	if Attendance != nil {
		if err := Attendance.Close(); err != nil {
			logger.Warning("Failed to close attendance store", logger.LoggerOptions{Key: "error", Data: err})
		}
		Attendance = nil
	}
	logger.Sync()
}

// flagOverrides copies a flag's value from src into dst.
var flagOverrides = map[string]func(dst, src *config.Config){
	"gallery":          func(d, s *config.Config) { d.Gallery.Dir = s.Gallery.Dir },
	"store":            func(d, s *config.Config) { d.Store.DSN = s.Store.DSN },
	"cascade":          func(d, s *config.Config) { d.Detector.Cascade = s.Detector.Cascade },
	"threshold":        func(d, s *config.Config) { d.Matcher.Threshold = s.Matcher.Threshold },
	"log-level":        func(d, s *config.Config) { d.Log.Level = s.Log.Level },
	"log-dev":          func(d, s *config.Config) { d.Log.Development = s.Log.Development },
	"port":             func(d, s *config.Config) { d.Serial.Port = s.Serial.Port },
	"baud":             func(d, s *config.Config) { d.Serial.Baud = s.Serial.Baud },
	"charset":          func(d, s *config.Config) { d.Serial.Charset = s.Serial.Charset },
	"camera-url":       func(d, s *config.Config) { d.Camera.URL = s.Camera.URL },
	"camera-mode":      func(d, s *config.Config) { d.Camera.Mode = s.Camera.Mode },
	"camera-timeout":   func(d, s *config.Config) { d.Camera.Timeout = s.Camera.Timeout },
	"budget":           func(d, s *config.Config) { d.Session.Budget = s.Session.Budget },
	"poll-interval":    func(d, s *config.Config) { d.Session.PollInterval = s.Session.PollInterval },
	"accept-threshold": func(d, s *config.Config) { d.Session.AcceptThreshold = s.Session.AcceptThreshold },
	"dedupe":           func(d, s *config.Config) { d.Store.DedupeDaily = s.Store.DedupeDaily },
	"http-addr":        func(d, s *config.Config) { d.HTTP.Addr = s.HTTP.Addr },
}

// applyFlagOverrides gives flags the user actually set precedence over the
// file and environment.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	for name, apply := range flagOverrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			apply(cfg, flagCfg)
		}
	}
}

// openAttendance opens the configured store or exits.
func openAttendance(ctx context.Context) store.Store {
	s, err := store.Open(ctx, Cfg.Store.DSN)
	if err != nil {
		utils.Die("Failed to open attendance store", err)
	}
	Attendance = s
	return s
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "YAML config file (default: $CHECKPOINT_CONFIG)")
	pf.StringVarP(&flagCfg.Gallery.Dir, "gallery", "g", flagCfg.Gallery.Dir, "Directory of <label>.<ext> face images")
	pf.StringVarP(&flagCfg.Store.DSN, "store", "s", flagCfg.Store.DSN, "Attendance store: *.xlsx, *.csv, sqlite://path or postgres://...")
	pf.StringVar(&flagCfg.Detector.Cascade, "cascade", flagCfg.Detector.Cascade, "Haar cascade XML for face detection")
	pf.Float64VarP(&flagCfg.Matcher.Threshold, "threshold", "t", flagCfg.Matcher.Threshold, "Similarity a gallery match must exceed")
	pf.StringVar(&flagCfg.Log.Level, "log-level", flagCfg.Log.Level, "Log level (debug, info, warn, error)")
	pf.BoolVar(&flagCfg.Log.Development, "log-dev", flagCfg.Log.Development, "Human-readable console logs")
}
