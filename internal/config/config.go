package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the checkpoint reads.
const EnvPrefix = "CHECKPOINT_"

type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Camera   CameraConfig   `yaml:"camera"`
	Session  SessionConfig  `yaml:"session"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Detector DetectorConfig `yaml:"detector"`
	Gallery  GalleryConfig  `yaml:"gallery"`
	Store    StoreConfig    `yaml:"store"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

type SerialConfig struct {
	Port    string `yaml:"port"` // device path, or "-" for stdin/stdout
	Baud    int    `yaml:"baud"`
	Charset string `yaml:"charset"`
}

type CameraConfig struct {
	URL     string        `yaml:"url"`
	Mode    string        `yaml:"mode"` // still or mjpeg
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	Budget          time.Duration `yaml:"budget"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	AcceptThreshold float64       `yaml:"accept_threshold"`
}

type MatcherConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type DetectorConfig struct {
	Cascade      string  `yaml:"cascade"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"` // pixels, 0 means no minimum
}

type GalleryConfig struct {
	Dir string `yaml:"dir"`
}

type StoreConfig struct {
	DSN         string `yaml:"dsn"`
	DedupeDaily bool   `yaml:"dedupe_daily"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const (
	CameraModeStill = "still"
	CameraModeMJPEG = "mjpeg"
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:    "/dev/ttyUSB0",
			Baud:    9600,
			Charset: "utf-8",
		},
		Camera: CameraConfig{
			URL:     "http://192.168.2.165/cam-hi.jpg",
			Mode:    CameraModeStill,
			Timeout: 5 * time.Second,
		},
		Session: SessionConfig{
			Budget:          10 * time.Second,
			PollInterval:    100 * time.Millisecond,
			AcceptThreshold: 0.6,
		},
		Matcher: MatcherConfig{
			Threshold: 0.6,
		},
		Detector: DetectorConfig{
			Cascade:      "haarcascade_frontalface_default.xml",
			ScaleFactor:  1.1,
			MinNeighbors: 4,
		},
		Gallery: GalleryConfig{
			Dir: "image_folder",
		},
		Store: StoreConfig{
			DSN: "attendance.xlsx",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from the defaults, then the YAML file at path (or
// $CHECKPOINT_CONFIG when path is empty), then .env and CHECKPOINT_*
// variables. The result is not validated; callers apply flags first and
// then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	// A missing .env is normal; variables already set in the environment win
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from CHECKPOINT_* variables. A variable that is
// set but cannot be parsed is an error.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("SERIAL_PORT", &c.Serial.Port)
	integer("SERIAL_BAUD", &c.Serial.Baud)
	str("SERIAL_CHARSET", &c.Serial.Charset)

	str("CAMERA_URL", &c.Camera.URL)
	str("CAMERA_MODE", &c.Camera.Mode)
	duration("CAMERA_TIMEOUT", &c.Camera.Timeout)

	duration("SESSION_BUDGET", &c.Session.Budget)
	duration("SESSION_POLL_INTERVAL", &c.Session.PollInterval)
	float("SESSION_ACCEPT_THRESHOLD", &c.Session.AcceptThreshold)

	float("MATCHER_THRESHOLD", &c.Matcher.Threshold)

	str("DETECTOR_CASCADE", &c.Detector.Cascade)
	float("DETECTOR_SCALE_FACTOR", &c.Detector.ScaleFactor)
	integer("DETECTOR_MIN_NEIGHBORS", &c.Detector.MinNeighbors)
	integer("DETECTOR_MIN_SIZE", &c.Detector.MinSize)

	str("GALLERY_DIR", &c.Gallery.Dir)

	str("STORE_DSN", &c.Store.DSN)
	boolean("STORE_DEDUPE_DAILY", &c.Store.DedupeDaily)

	str("HTTP_ADDR", &c.HTTP.Addr)

	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_DEVELOPMENT", &c.Log.Development)

	return errors.Join(errs...)
}

// Validate checks that the configuration can drive a checkpoint.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Serial.Port) == "" {
		return fmt.Errorf("invalid serial.port: must not be empty")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid serial.baud: must be positive")
	}

	if strings.TrimSpace(c.Camera.URL) == "" {
		return fmt.Errorf("invalid camera.url: must not be empty")
	}
	if c.Camera.Mode != CameraModeStill && c.Camera.Mode != CameraModeMJPEG {
		return fmt.Errorf("invalid camera.mode %q: must be %q or %q", c.Camera.Mode, CameraModeStill, CameraModeMJPEG)
	}
	if c.Camera.Timeout <= 0 {
		return fmt.Errorf("invalid camera.timeout: must be positive")
	}

	if c.Session.Budget <= 0 {
		return fmt.Errorf("invalid session.budget: must be positive")
	}
	if c.Session.PollInterval < 0 {
		return fmt.Errorf("invalid session.poll_interval: must not be negative")
	}
	if !unit(c.Session.AcceptThreshold) {
		return fmt.Errorf("invalid session.accept_threshold: must be within [0,1]")
	}
	if !unit(c.Matcher.Threshold) {
		return fmt.Errorf("invalid matcher.threshold: must be within [0,1]")
	}

	if c.Detector.ScaleFactor <= 1 {
		return fmt.Errorf("invalid detector.scale_factor: must be greater than 1")
	}
	if c.Detector.MinNeighbors < 0 {
		return fmt.Errorf("invalid detector.min_neighbors: must not be negative")
	}
	if c.Detector.MinSize < 0 {
		return fmt.Errorf("invalid detector.min_size: must not be negative")
	}

	if strings.TrimSpace(c.Gallery.Dir) == "" {
		return fmt.Errorf("invalid gallery.dir: must not be empty")
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		return fmt.Errorf("invalid store.dsn: must not be empty")
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
