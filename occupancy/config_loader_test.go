package occupancy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := ValidateConfig(DefaultConfig()); err != nil {
		t.Errorf("Default configuration should validate, got: %v", err)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
model:
  trees: 150
usage:
  coeff: 1.5
workers: 8
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Model.Trees != 150 {
		t.Errorf("Expected overridden trees 150, got %d", cfg.Model.Trees)
	}
	if cfg.Usage.Coeff != 1.5 {
		t.Errorf("Expected overridden coeff 1.5, got %v", cfg.Usage.Coeff)
	}
	if cfg.Workers != 8 {
		t.Errorf("Expected overridden workers 8, got %d", cfg.Workers)
	}

	// Untouched sections keep their defaults.
	if cfg.Features.StagnationMinRun != 4 {
		t.Errorf("Untouched feature default lost: %d", cfg.Features.StagnationMinRun)
	}
	if cfg.Model.Seed != 42 {
		t.Errorf("Untouched model default lost: %d", cfg.Model.Seed)
	}
	if cfg.Heuristics.HighCO2 != 1400 {
		t.Errorf("Untouched heuristics default lost: %v", cfg.Heuristics.HighCO2)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatalf("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "model: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("Expected error for malformed YAML")
	}
}

func TestValidateConfigBothBoundsUnset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Features.Bounds[ColCO2] = Bounds{}

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatalf("Expected error for bounds with neither side set")
	}
	if !strings.Contains(err.Error(), "both lo and hi are unset") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidateConfigInvertedBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Features.Bounds[ColCO2] = Bounds{Lo: floatPtr(100), Hi: floatPtr(0)}
	if err := ValidateConfig(cfg); err == nil {
		t.Errorf("Expected error for inverted bounds")
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative interpolation limit", func(c *Config) { c.Features.InterpolationLimit = -1 }},
		{"stagnation run below 2", func(c *Config) { c.Features.StagnationMinRun = 1 }},
		{"day completeness above 1", func(c *Config) { c.Features.DayCompleteness = 1.5 }},
		{"zero smoothing sigma", func(c *Config) { c.Features.SmoothingSigma = 0 }},
		{"kinematic window below 2", func(c *Config) { c.Features.KinematicWindow = 1 }},
		{"empty feature columns", func(c *Config) { c.Features.Columns = nil }},
		{"unknown feature column", func(c *Config) { c.Features.Columns = []string{"BOGUS"} }},
		{"night hour out of range", func(c *Config) { c.Features.Night.StartHour = 25 }},
		{"usage min above max", func(c *Config) { c.Usage.Min = 0.5; c.Usage.Max = 0.1 }},
		{"zero usage coeff", func(c *Config) { c.Usage.Coeff = 0 }},
		{"zero trees", func(c *Config) { c.Model.Trees = 0 }},
		{"sample size below 2", func(c *Config) { c.Model.SampleSize = 1 }},
		{"contamination above half", func(c *Config) { c.Model.DefaultContamination = 0.6 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")

	cfg := DefaultConfig()
	cfg.Model.Trees = 123
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Model.Trees != 123 {
		t.Errorf("Round trip lost trees override: %d", loaded.Model.Trees)
	}
	if loaded.Features.FillCO2 != cfg.Features.FillCO2 {
		t.Errorf("Round trip lost fill default: %v", loaded.Features.FillCO2)
	}
}

func TestNightConfigContains(t *testing.T) {
	wrap := NightConfig{StartHour: 22, EndHour: 6}
	for _, h := range []int{22, 23, 0, 3, 5} {
		if !wrap.Contains(h) {
			t.Errorf("Hour %d should be night in 22..6", h)
		}
	}
	for _, h := range []int{6, 12, 21} {
		if wrap.Contains(h) {
			t.Errorf("Hour %d should not be night in 22..6", h)
		}
	}

	plain := NightConfig{StartHour: 0, EndHour: 6}
	if !plain.Contains(0) || !plain.Contains(5) || plain.Contains(6) {
		t.Errorf("Plain range 0..6 misbehaves")
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{Lo: floatPtr(0), Hi: floatPtr(100)}
	if !b.Contains(0) || !b.Contains(100) || !b.Contains(50) {
		t.Errorf("Inclusive bounds should contain endpoints")
	}
	if b.Contains(-0.1) || b.Contains(100.1) {
		t.Errorf("Values outside bounds should be rejected")
	}

	open := Bounds{Lo: floatPtr(0)}
	if !open.Contains(1e9) {
		t.Errorf("Unbounded high side should accept any large value")
	}
}
