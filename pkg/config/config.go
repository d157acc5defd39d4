// Package config provides configuration loading and management for txmconvert.
// It handles loading configuration from YAML or TOML files and provides
// default values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"txmconvert/internal/logging"
	"txmconvert/pkg/metadata"
	"txmconvert/pkg/rescale"
	"txmconvert/pkg/volume"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Image and metadata output formats.
const (
	ImageTIFF = "tiff"
	ImagePNG  = "png"
	ImageBMP  = "bmp"
	ImageNone = "none"

	MetadataText  = "txt"
	MetadataCSV   = "csv"
	MetadataArrow = "arrow"
	MetadataNone  = "none"
)

// Config represents the application configuration.
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers is the number of files converted concurrently
		Workers int `yaml:"workers" toml:"workers"`

		// StreamPrefix names the per-slice image streams
		StreamPrefix string `yaml:"streamPrefix" toml:"stream_prefix"`

		// Extensions lists the container kinds picked up when walking a directory
		Extensions []string `yaml:"extensions" toml:"extensions"`

		// MetadataOnly skips volume assembly
		MetadataOnly bool `yaml:"metadataOnly" toml:"metadata_only"`
	} `yaml:"processing" toml:"processing"`

	// Intensity rescaling before export
	Rescale struct {
		Enabled bool    `yaml:"enabled" toml:"enabled"`
		Lower   float64 `yaml:"lowerPercentile" toml:"lower_percentile"`
		Upper   float64 `yaml:"upperPercentile" toml:"upper_percentile"`
		Bits    int     `yaml:"bits" toml:"bits"`
	} `yaml:"rescale" toml:"rescale"`

	// Output parameters
	Output struct {
		// Dir is the output root; one sub-directory is created per input file
		Dir string `yaml:"dir" toml:"dir"`

		// ImageFormat is tiff, png, bmp or none
		ImageFormat string `yaml:"imageFormat" toml:"image_format"`

		// MetadataFormat is txt, csv, arrow or none
		MetadataFormat string `yaml:"metadataFormat" toml:"metadata_format"`

		// Zip packages each file's images into <stem>.zip
		Zip bool `yaml:"zip" toml:"zip"`
	} `yaml:"output" toml:"output"`

	// Logging parameters
	Logging struct {
		// Embedded without a TOML name so both formats keep the log file
		// keys directly under the logging section.
		logging.Config `yaml:",inline"`

		// Level is debug, info, warning, error, critical or silent
		Level string `yaml:"level" toml:"level"`
	} `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.StreamPrefix = volume.DefaultPrefix
	for _, k := range []metadata.Kind{metadata.KindTXM, metadata.KindTXRM, metadata.KindXRM, metadata.KindRCP} {
		cfg.Processing.Extensions = append(cfg.Processing.Extensions, k.Extension())
	}

	p := rescale.DefaultParams()
	cfg.Rescale.Enabled = true
	cfg.Rescale.Lower = p.Lower
	cfg.Rescale.Upper = p.Upper
	cfg.Rescale.Bits = p.Bits

	cfg.Output.Dir = "converted"
	cfg.Output.ImageFormat = ImageTIFF
	cfg.Output.MetadataFormat = MetadataText

	cfg.Logging.Logfile = "txm_converter.log"
	cfg.Logging.MaxSize = 10
	cfg.Logging.MaxAge = 30
	cfg.Logging.Level = "info"

	return cfg
}

// RescaleParams returns the rescale section as rescale.Params, or nil when
// rescaling is disabled.
func (c *Config) RescaleParams() *rescale.Params {
	if !c.Rescale.Enabled {
		return nil
	}
	return &rescale.Params{Lower: c.Rescale.Lower, Upper: c.Rescale.Upper, Bits: c.Rescale.Bits}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Processing.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Processing.Workers)
	}
	if p := c.RescaleParams(); p != nil {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	switch c.Output.ImageFormat {
	case ImageTIFF, ImagePNG, ImageBMP, ImageNone:
	default:
		return fmt.Errorf("%w: unknown image format %q", ErrInvalidConfig, c.Output.ImageFormat)
	}
	switch c.Output.MetadataFormat {
	case MetadataText, MetadataCSV, MetadataArrow, MetadataNone:
	default:
		return fmt.Errorf("%w: unknown metadata format %q", ErrInvalidConfig, c.Output.MetadataFormat)
	}
	if _, err := logging.ParseMode(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or, for .toml paths, TOML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration, as TOML for .toml paths and YAML
// otherwise.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
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
