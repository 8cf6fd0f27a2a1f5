package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	if err := c.Stores.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stores: %w", err))
	}
	if err := c.Sampler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sampler: %w", err))
	}
	if err := c.Tuning.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tuning: %w", err))
	}
	if err := c.MQTT.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the store configuration.
func (c *StoresConfig) Validate() error {
	var errs []error

	// Header head/count fields are uint16, so capacity is bounded.
	if c.HourlyCapacity <= 0 || c.HourlyCapacity > 65535 {
		errs = append(errs, errors.New("hourly_capacity must be in 1..65535"))
	}
	if c.RecentCapacity <= 0 || c.RecentCapacity > 65535 {
		errs = append(errs, errors.New("recent_capacity must be in 1..65535"))
	}
	if c.HourlyFile == "" {
		errs = append(errs, errors.New("hourly_file is required"))
	}
	if c.RecentFile == "" {
		errs = append(errs, errors.New("recent_file is required"))
	}
	if c.HourlyFile == c.RecentFile {
		errs = append(errs, errors.New("hourly_file and recent_file must differ"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the sampler configuration.
func (c *SamplerConfig) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.EmptyDistanceCm <= c.FullDistanceCm {
		errs = append(errs, errors.New("empty_distance_cm must exceed full_distance_cm"))
	}
	if c.DiameterCm < 0 {
		errs = append(errs, errors.New("diameter_cm must not be negative"))
	}
	if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
		errs = append(errs, errors.New("ema_alpha must be in (0, 1]"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the tuning thresholds.
func (c *TuningConfig) Validate() error {
	var errs []error

	if c.UsageThresholdL <= 0 {
		errs = append(errs, errors.New("usage_threshold_l must be positive"))
	}
	if c.FillThresholdL <= 0 {
		errs = append(errs, errors.New("fill_threshold_l must be positive"))
	}
	if c.DrawThresholdL <= 0 {
		errs = append(errs, errors.New("draw_threshold_l must be positive"))
	}
	if c.LeakThresholdL <= 0 || c.LeakRateLPerH <= 0 {
		errs = append(errs, errors.New("leak thresholds must be positive"))
	}
	if c.EventMergeWindow <= 0 {
		errs = append(errs, errors.New("event_merge_window must be positive"))
	}
	if c.TrendGapMin <= 0 || c.TrendGapMax <= c.TrendGapMin {
		errs = append(errs, errors.New("trend gap bounds must satisfy 0 < min < max"))
	}
	if c.EventGapMin <= 0 || c.EventGapMax <= c.EventGapMin {
		errs = append(errs, errors.New("event gap bounds must satisfy 0 < min < max"))
	}
	if c.DownsampleAfterHours <= 0 {
		errs = append(errs, errors.New("downsample_after_hours must be positive"))
	}
	if c.TargetLarge <= 0 || c.TargetModerate <= 0 {
		errs = append(errs, errors.New("downsample targets must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the MQTT configuration.
func (c *MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Broker == "" {
		errs = append(errs, errors.New("broker is required when enabled"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.New("port must be in 1..65535"))
	}
	if c.TopicPrefix == "" {
		errs = append(errs, errors.New("topic_prefix is required when enabled"))
	}
	if c.QoS > 2 {
		errs = append(errs, errors.New("qos must be 0, 1 or 2"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
