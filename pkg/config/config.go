// Package config provides configuration loading and management for pcadenoise.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"pcadenoise/pkg/denoise"
	"pcadenoise/pkg/patch"
	"pcadenoise/pkg/threshold"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many tiles are denoised concurrently
		NumCores int `yaml:"numCores"`

		// PatchSide is the edge length of the square patches
		PatchSide int `yaml:"patchSide"`

		// MinOverlap is the minimum overlap between neighboring patches,
		// negative for half the patch side
		MinOverlap int `yaml:"minOverlap"`

		// Global selects one PCA for the whole image instead of one per tile
		Global bool `yaml:"global"`

		// TileCount is the requested number of tiles in local mode
		TileCount int `yaml:"tileCount"`
	} `yaml:"processing"`

	// Threshold parameters
	Threshold struct {
		// Kind is the shrinkage operator, "hard" or "soft"
		Kind string `yaml:"kind"`

		// Shrink is the threshold estimator, "visu" or "bayes"
		Shrink string `yaml:"shrink"`

		// Sigma is the noise standard deviation, <= 0 to estimate it
		Sigma float64 `yaml:"sigma"`

		// NoiseFraction is the share of low-energy components used to
		// estimate sigma
		NoiseFraction float64 `yaml:"noiseFraction"`

		// Blend is how overlapping patches are merged, "last" or "average"
		Blend string `yaml:"blend"`
	} `yaml:"threshold"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is the directory for intermediary results
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Grayscale is the conversion used for color inputs, "luma" or "lightness"
		Grayscale string `yaml:"grayscale"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogFile additionally receives all log output when set
		LogFile string `yaml:"logFile"`
	} `yaml:"output"`

	// Server parameters
	Server struct {
		// Addr is the listen address of the HTTP API
		Addr string `yaml:"addr"`

		// MaxPixels bounds the width*height of uploaded images, <= 0 for no limit
		MaxPixels int64 `yaml:"maxPixels"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.PatchSide = 8
	cfg.Processing.MinOverlap = -1
	cfg.Processing.Global = true
	cfg.Processing.TileCount = 4

	// Set default threshold parameters
	cfg.Threshold.Kind = threshold.Soft.String()
	cfg.Threshold.Shrink = threshold.Visu.String()
	cfg.Threshold.Sigma = 0
	cfg.Threshold.NoiseFraction = threshold.DefaultNoiseFraction
	cfg.Threshold.Blend = patch.LastWriter.String()

	// Set default output parameters
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Grayscale = "luma"
	cfg.Output.Verbose = true

	cfg.Server.Addr = ":8080"
	cfg.Server.MaxPixels = 64 << 20

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Params converts the configuration into denoising parameters. Only the
// blend mode is parsed here; everything else is validated by the denoiser.
func (cfg *Config) Params() (*denoise.Params, error) {
	blend, err := patch.ParseBlend(cfg.Threshold.Blend)
	if err != nil {
		return nil, err
	}

	params := denoise.DefaultParams()
	params.NumCores = cfg.Processing.NumCores
	params.PatchSide = cfg.Processing.PatchSide
	params.MinOverlap = cfg.Processing.MinOverlap
	params.Global = cfg.Processing.Global
	params.TileCount = cfg.Processing.TileCount
	params.Threshold = cfg.Threshold.Kind
	params.Shrink = cfg.Threshold.Shrink
	params.Sigma = cfg.Threshold.Sigma
	params.NoiseFraction = cfg.Threshold.NoiseFraction
	params.Blend = blend
	params.SaveIntermediaryResults = cfg.Output.SaveIntermediaryResults
	params.IntermediaryDir = cfg.Output.IntermediaryDir
	return params, nil
}
