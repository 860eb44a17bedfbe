package fall

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the classifier thresholds.
type Config struct {
	RatioThreshold float64 `yaml:"ratio_threshold" json:"ratioThreshold"` // aspect ratio above which the body is wide
	LowYThreshold  float64 `yaml:"low_y_threshold" json:"lowYThreshold"`  // ankle Y above which the body is near the floor
	AngleThreshold float64 `yaml:"angle_threshold" json:"angleThreshold"` // degrees from vertical
	ConfirmFrames  int     `yaml:"confirm_frames" json:"confirmFrames"`   // consecutive indicated frames to confirm
	DecayStep      int     `yaml:"decay_step" json:"decayStep"`           // counter decrement per clean frame
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		RatioThreshold: 0.6,
		LowYThreshold:  0.7,
		AngleThreshold: 60,
		ConfirmFrames:  5,
		DecayStep:      2,
	}
}

// Validate checks that every threshold is usable.
func (c Config) Validate() error {
	var errs []error
	if c.RatioThreshold < 0 {
		errs = append(errs, fmt.Errorf("ratio_threshold must be >= 0, got %v", c.RatioThreshold))
	}
	if c.LowYThreshold < 0 || c.LowYThreshold > 1 {
		errs = append(errs, fmt.Errorf("low_y_threshold must be in [0,1], got %v", c.LowYThreshold))
	}
	if c.AngleThreshold < 0 || c.AngleThreshold > 90 {
		errs = append(errs, fmt.Errorf("angle_threshold must be in [0,90], got %v", c.AngleThreshold))
	}
	if c.ConfirmFrames <= 0 {
		errs = append(errs, fmt.Errorf("confirm_frames must be > 0, got %d", c.ConfirmFrames))
	}
	if c.DecayStep <= 0 {
		errs = append(errs, fmt.Errorf("decay_step must be > 0, got %d", c.DecayStep))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML tuning file and merges it over DefaultConfig.
// Keys absent from the file keep their default values. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read fall config (%s): %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse fall config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid fall config: %w", err)
	}
	return cfg, nil
}
