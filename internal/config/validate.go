package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProvider() error {
	switch c.Provider.Kind {
	case ProviderCSV:
		if strings.TrimSpace(c.Paths.CSVDir) == "" {
			return errors.New("paths.csv_dir must be set when provider.kind is csv")
		}
	case ProviderHTTP:
		if c.Provider.BaseURL == "" {
			return errors.New("provider.base_url must be set when provider.kind is http")
		}
		if !strings.HasPrefix(c.Provider.BaseURL, "http://") && !strings.HasPrefix(c.Provider.BaseURL, "https://") {
			return fmt.Errorf("provider.base_url must be an http(s) URL, got %q", c.Provider.BaseURL)
		}
	default:
		return fmt.Errorf("provider.kind must be %q or %q, got %q", ProviderCSV, ProviderHTTP, c.Provider.Kind)
	}
	if c.Provider.RatePerSecond < 0 {
		return errors.New("provider.rate_per_second must be >= 0 (0 disables throttling)")
	}
	return ensurePositiveMap(map[string]int{
		"provider.request_timeout":      c.Provider.RequestTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateDetection() error {
	d := c.Detection
	if err := ensurePositiveMap(map[string]int{
		"detection.trees":           d.Trees,
		"detection.sample_size":     d.SampleSize,
		"detection.zone_min_points": d.ZoneMinPoints,
		"detection.min_window_days": d.MinWindowDays,
	}); err != nil {
		return err
	}
	if !inOpenUnit(d.ZoneQuantileUpper) {
		return errors.New("detection.zone_quantile_upper must be between 0 and 1")
	}
	if !inOpenUnit(d.ZoneQuantileLower) {
		return errors.New("detection.zone_quantile_lower must be between 0 and 1")
	}
	if d.ZoneQuantileLower >= d.ZoneQuantileUpper {
		return errors.New("detection.zone_quantile_lower must be less than detection.zone_quantile_upper")
	}
	if d.ZoneBufferDegrees <= 0 {
		return errors.New("detection.zone_buffer_degrees must be positive")
	}
	if d.PixelAreaM2 <= 0 {
		return errors.New("detection.pixel_area_m2 must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	return ensurePositiveMap(map[string]int{
		"pipeline.max_concurrent_tasks":     c.Pipeline.MaxConcurrentTasks,
		"pipeline.task_ttl_seconds":         c.Pipeline.TaskTTLSeconds,
		"pipeline.janitor_interval_seconds": c.Pipeline.JanitorIntervalSeconds,
	})
}

func inOpenUnit(v float64) bool {
	return v > 0 && v < 1
}

// ensurePositiveMap reports the first non-positive key in sorted order.
func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
