package occupancy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the unified configuration from a YAML file. Missing
// sections fall back to defaults; the result is validated before return.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ValidateConfig checks the configuration for fatal errors. A range filter
// with both bounds unset is a configuration error, not a silent no-op.
func ValidateConfig(config *Config) error {
	f := &config.Features
	for col, b := range f.Bounds {
		if b.Lo == nil && b.Hi == nil {
			return fmt.Errorf("bounds for %s: both lo and hi are unset", col)
		}
		if b.Lo != nil && b.Hi != nil && *b.Lo > *b.Hi {
			return fmt.Errorf("bounds for %s: lo %.2f above hi %.2f", col, *b.Lo, *b.Hi)
		}
	}

	if f.InterpolationLimit < 0 {
		return fmt.Errorf("features.interpolation_limit must be >= 0")
	}
	if f.StagnationMinRun < 2 {
		return fmt.Errorf("features.stagnation_min_run must be >= 2")
	}
	if f.DayCompleteness < 0 || f.DayCompleteness > 1 {
		return fmt.Errorf("features.day_completeness must be in [0, 1]")
	}
	if f.SmoothingSigma <= 0 {
		return fmt.Errorf("features.smoothing_sigma must be > 0")
	}
	if f.KinematicWindow < 2 {
		return fmt.Errorf("features.kinematic_window must be >= 2")
	}
	if len(f.Columns) == 0 {
		return fmt.Errorf("features.columns must not be empty")
	}
	for _, col := range f.Columns {
		if _, err := (FeatureRow{}).Value(col); err != nil {
			return fmt.Errorf("features.columns: %w", err)
		}
	}

	for _, n := range []NightConfig{f.Night, config.Heuristics.Night} {
		if n.StartHour < 0 || n.StartHour > 23 || n.EndHour < 0 || n.EndHour > 24 {
			return fmt.Errorf("night hours must be within 0..24, got %d..%d", n.StartHour, n.EndHour)
		}
	}

	u := config.Usage
	if u.Min > u.Max {
		return fmt.Errorf("usage.min %.2f above usage.max %.2f", u.Min, u.Max)
	}
	if u.Coeff <= 0 {
		return fmt.Errorf("usage.coeff must be > 0")
	}

	m := config.Model
	if m.Trees < 1 {
		return fmt.Errorf("model.trees must be >= 1")
	}
	if m.SampleSize < 2 {
		return fmt.Errorf("model.sample_size must be >= 2")
	}
	if m.DefaultContamination <= 0 || m.DefaultContamination > 0.5 {
		return fmt.Errorf("model.default_contamination must be in (0, 0.5]")
	}

	if config.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}

	return nil
}
