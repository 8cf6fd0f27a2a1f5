// Package config handles daemon configuration loading and validation.
//
// Configuration is a YAML file with per-section structs. Environment
// variables in the file are expanded before parsing. Every section has
// defaults so an empty file yields a working development setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration.
type Config struct {
	// DataDir is the root directory for the ring store files.
	DataDir string `yaml:"data_dir"`

	// Stores configures the two persisted ring stores.
	Stores StoresConfig `yaml:"stores"`

	// Sampler configures the measurement loop and tank geometry.
	Sampler SamplerConfig `yaml:"sampler"`

	// Tuning holds the empirically tuned analytics thresholds.
	Tuning TuningConfig `yaml:"tuning"`

	// HTTP configures the API server.
	HTTP HTTPConfig `yaml:"http"`

	// MQTT configures telemetry publishing.
	MQTT MQTTConfig `yaml:"mqtt"`
}

// StoresConfig configures the two persisted ring stores.
type StoresConfig struct {
	// HourlyCapacity is the slot count of the long-horizon store.
	// One slot per hour; 2160 covers roughly 90 days.
	HourlyCapacity int `yaml:"hourly_capacity"`

	// RecentCapacity is the slot count of the short-horizon store.
	// One slot per sampling tick; 60 covers one hour at minute cadence.
	RecentCapacity int `yaml:"recent_capacity"`

	// HourlyFile and RecentFile are file names inside DataDir.
	HourlyFile string `yaml:"hourly_file"`
	RecentFile string `yaml:"recent_file"`
}

// SamplerConfig configures the measurement loop and tank geometry.
type SamplerConfig struct {
	// Interval between measurements.
	Interval time.Duration `yaml:"interval"`

	// EmptyDistanceCm is the sensor-to-surface distance at 0%.
	EmptyDistanceCm float64 `yaml:"empty_distance_cm"`

	// FullDistanceCm is the sensor-to-surface distance at 100%.
	FullDistanceCm float64 `yaml:"full_distance_cm"`

	// DiameterCm is the barrel diameter. 0 disables volume derivation.
	DiameterCm float64 `yaml:"diameter_cm"`

	// EMAAlpha smooths raw distance readings. 1 disables smoothing.
	EMAAlpha float64 `yaml:"ema_alpha"`
}

// TuningConfig holds the empirically tuned analytics thresholds.
// The defaults come from field calibration against noisy barrel
// readings; change them only with data to back it up.
type TuningConfig struct {
	// UsageThresholdL: volume drops smaller than this are noise, not usage.
	UsageThresholdL float64 `yaml:"usage_threshold_l"`

	// FillThresholdL: minimum volume gain to register a fill event.
	FillThresholdL float64 `yaml:"fill_threshold_l"`

	// DrawThresholdL: minimum volume drop to register a draw event.
	DrawThresholdL float64 `yaml:"draw_threshold_l"`

	// LeakThresholdL and LeakRateLPerH: a drop qualifies as a leak only
	// when both the magnitude and the rate thresholds are met.
	LeakThresholdL float64 `yaml:"leak_threshold_l"`
	LeakRateLPerH  float64 `yaml:"leak_rate_l_per_h"`

	// EventMergeWindow: adjacent same-kind events within this window merge.
	EventMergeWindow time.Duration `yaml:"event_merge_window"`

	// TrendGapMin/Max bound the inter-sample gap accepted by the trend
	// scan. Gaps outside the bounds are reboot/clock artifacts.
	TrendGapMin time.Duration `yaml:"trend_gap_min"`
	TrendGapMax time.Duration `yaml:"trend_gap_max"`

	// EventGapMin/Max bound the inter-sample gap accepted by event
	// detection.
	EventGapMin time.Duration `yaml:"event_gap_min"`
	EventGapMax time.Duration `yaml:"event_gap_max"`

	// Downsampling targets for history queries on the long-horizon
	// store. Large windows aim at TargetLarge points, moderate windows
	// at TargetModerate.
	DownsampleAfterHours int `yaml:"downsample_after_hours"`
	LargeWindowHours     int `yaml:"large_window_hours"`
	TargetLarge          int `yaml:"target_large"`
	TargetModerate       int `yaml:"target_moderate"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	// Listen address, e.g. "0.0.0.0:8080".
	Listen string `yaml:"listen"`

	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics"`
}

// MQTTConfig configures telemetry publishing.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Stores: StoresConfig{
			HourlyCapacity: 2160, // ~90 days of hourly snapshots
			RecentCapacity: 60,   // one hour at minute cadence
			HourlyFile:     "hist.bin",
			RecentFile:     "hist_recent.bin",
		},
		Sampler: SamplerConfig{
			Interval:        time.Minute,
			EmptyDistanceCm: 100,
			FullDistanceCm:  10,
			DiameterCm:      0,
			EMAAlpha:        1.0,
		},
		Tuning: TuningConfig{
			UsageThresholdL:      0.3,
			FillThresholdL:       6.0,
			DrawThresholdL:       6.0,
			LeakThresholdL:       4.0,
			LeakRateLPerH:        18.0,
			EventMergeWindow:     15 * time.Minute,
			TrendGapMin:          30 * time.Second,
			TrendGapMax:          6 * time.Hour,
			EventGapMin:          30 * time.Second,
			EventGapMax:          20 * time.Minute,
			DownsampleAfterHours: 168,
			LargeWindowHours:     720,
			TargetLarge:          80,
			TargetModerate:       110,
		},
		HTTP: HTTPConfig{
			Listen:  "0.0.0.0:8080",
			Metrics: true,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "localhost",
			Port:        1883,
			ClientID:    "tanksensed",
			TopicPrefix: "tanksense",
			QoS:         1,
			Retain:      true,
		},
	}
}

// Load loads configuration from a YAML file.
// Environment variables in the file are expanded before parsing, and
// missing sections keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// EnsureDirectories creates the data directory if needed.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// HourlyPath returns the absolute path of the long-horizon store file.
func (c *Config) HourlyPath() string {
	return filepath.Join(c.DataDir, c.Stores.HourlyFile)
}

// RecentPath returns the absolute path of the short-horizon store file.
func (c *Config) RecentPath() string {
	return filepath.Join(c.DataDir, c.Stores.RecentFile)
}
