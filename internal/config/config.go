// Package config provides runtime configuration for zonewatch pipelines.
// Configuration is loaded from a YAML file with documented defaults; a
// handful of env vars override the most operationally relevant fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration for one zonewatch process.
type Config struct {
	Cameras   []CameraConfig  `yaml:"cameras"`
	Detection DetectionConfig `yaml:"detection"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Zones     ZonesConfig     `yaml:"zones"`
	Alert     AlertConfig     `yaml:"alert"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	LogLevel  string          `yaml:"log_level"`
}

// CameraConfig identifies one monitored video source.
type CameraConfig struct {
	ID  string `yaml:"id"`
	URI string `yaml:"uri"`

	// Reconnection backoff for transient stream failures.
	MaxRetries    int           `yaml:"max_retries"`     // 0 means retry forever
	RetryDelay    time.Duration `yaml:"retry_delay"`     // initial backoff
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"` // backoff cap
}

// DetectionConfig controls the detector adapter.
type DetectionConfig struct {
	ModelPath     string  `yaml:"model_path"`
	Confidence    float64 `yaml:"confidence"`     // minimum detection confidence
	NMSThreshold  float64 `yaml:"nms_threshold"`  // non-maximum suppression IoU
	InputSize     int     `yaml:"input_size"`     // model input side (square)
	DetectionSize int     `yaml:"detection_size"` // downscale frames so longer side <= this; 0 disables
	FrameSkip     int     `yaml:"frame_skip"`     // run detection every Nth frame
}

// TrackingConfig controls cross-frame identity matching.
type TrackingConfig struct {
	GracePeriod  int     `yaml:"grace_period"`  // frames a track survives unmatched
	MinScore     float64 `yaml:"min_score"`     // minimum match similarity
	UseHungarian bool    `yaml:"use_hungarian"` // optimal assignment instead of greedy
	MaxHistory   int     `yaml:"max_history"`   // track position history length
	BottomOffset float64 `yaml:"bottom_offset"` // zone reference point lift, fraction of box height
}

// ZonesConfig controls zone loading and occupancy debouncing.
type ZonesConfig struct {
	File           string `yaml:"file"`            // JSON zone definitions
	DebounceFrames int    `yaml:"debounce_frames"` // K consecutive frames to commit a transition
	StaleFrames    int    `yaml:"stale_frames"`    // force-close pair state idle this many frames
}

// AlertConfig controls the HTTP alert sink.
type AlertConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Cooldown   time.Duration `yaml:"cooldown"` // per-zone suppression window after a sent alert
	QueueSize  int           `yaml:"queue_size"`
}

// DashboardConfig controls the optional observation server.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// Default returns the documented defaults. Fields left zero in the YAML
// file inherit these values.
func Default() Config {
	return Config{
		Detection: DetectionConfig{
			ModelPath:     "models/yolov8n.onnx",
			Confidence:    0.5,
			NMSThreshold:  0.45,
			InputSize:     640,
			DetectionSize: 640,
			FrameSkip:     1,
		},
		Tracking: TrackingConfig{
			GracePeriod:  15,
			MinScore:     0.15,
			UseHungarian: false,
			MaxHistory:   50,
			BottomOffset: 0.05,
		},
		Zones: ZonesConfig{
			File:           "config/zones.json",
			DebounceFrames: 3,
			StaleFrames:    300,
		},
		Alert: AlertConfig{
			Enabled:    false,
			Timeout:    10 * time.Second,
			RetryCount: 3,
			RetryDelay: time.Second,
			Cooldown:   20 * time.Second,
			QueueSize:  64,
		},
		Dashboard: DashboardConfig{
			Enabled: false,
			Port:    "8089",
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path on top of the defaults and validates
// the result. Env overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields that operators commonly set per deployment.
func applyEnv(cfg *Config) {
	if uri := os.Getenv("ZONEWATCH_STREAM_URI"); uri != "" && len(cfg.Cameras) > 0 {
		cfg.Cameras[0].URI = uri
	}
	if level := os.Getenv("ZONEWATCH_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if zones := os.Getenv("ZONEWATCH_ZONES_FILE"); zones != "" {
		cfg.Zones.File = zones
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("config: at least one camera is required")
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("config: camera %d has no id", i)
		}
		if cam.URI == "" {
			return fmt.Errorf("config: camera %q has no uri", cam.ID)
		}
		if seen[cam.ID] {
			return fmt.Errorf("config: duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
	}
	if c.Detection.Confidence < 0 || c.Detection.Confidence > 1 {
		return fmt.Errorf("config: detection.confidence must be in [0,1], got %v", c.Detection.Confidence)
	}
	if c.Detection.FrameSkip < 1 {
		return fmt.Errorf("config: detection.frame_skip must be >= 1, got %d", c.Detection.FrameSkip)
	}
	if c.Tracking.GracePeriod < 1 {
		return fmt.Errorf("config: tracking.grace_period must be >= 1, got %d", c.Tracking.GracePeriod)
	}
	if c.Zones.DebounceFrames < 1 {
		return fmt.Errorf("config: zones.debounce_frames must be >= 1, got %d", c.Zones.DebounceFrames)
	}
	return nil
}

// Backoff returns the camera's reconnection parameters with defaults filled in.
func (c CameraConfig) Backoff() (maxRetries int, retryDelay, maxRetryDelay time.Duration) {
	maxRetries = c.MaxRetries
	retryDelay = c.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	maxRetryDelay = c.MaxRetryDelay
	if maxRetryDelay <= 0 {
		maxRetryDelay = 30 * time.Second
	}
	return maxRetries, retryDelay, maxRetryDelay
}
