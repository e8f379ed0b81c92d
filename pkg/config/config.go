// Package config provides configuration loading and management for mlmhead.
// Values come from defaults, an optional YAML file, MLMHEAD_ environment
// variables and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Model bundle location
	Model ModelConfig `mapstructure:"model" yaml:"model"`

	// Processing parameters
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`

	// Output parameters
	Output OutputConfig `mapstructure:"output" yaml:"output"`

	// Server parameters (serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Logging parameters
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// ModelConfig locates the model bundle and the reference meshes.
type ModelConfig struct {
	// Dir holds the tensor, basis matrices and eigenvalue files
	Dir string `mapstructure:"dir" yaml:"dir"`

	// SkinMesh and SkullMesh are resolved against Dir when relative
	SkinMesh  string `mapstructure:"skin_mesh" yaml:"skin_mesh"`
	SkullMesh string `mapstructure:"skull_mesh" yaml:"skull_mesh"`
}

// ProcessingConfig controls evaluation.
type ProcessingConfig struct {
	// NumCores specifies how many CPU cores to use for parallel processing
	NumCores int `mapstructure:"num_cores" yaml:"num_cores"`
}

// OutputConfig controls where and how meshes are written.
type OutputConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig configures the HTTP evaluation service.
type ServerConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	MaxBodyKB int    `mapstructure:"max_body_kb" yaml:"max_body_kb"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validLogFormats    = []string{"text", "json"}
	validOutputFormats = []string{"off", "stl"}
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Model.Dir = "data"
	cfg.Model.SkinMesh = "skin.off"
	cfg.Model.SkullMesh = "skull.off"

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.Dir = "."
	cfg.Output.Format = "off"

	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Server.MaxBodyKB = 64

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// Validate checks enums and ranges.
func (c *Config) Validate() error {
	if c.Model.Dir == "" {
		return fmt.Errorf("model.dir must not be empty")
	}
	if c.Processing.NumCores < 0 {
		return fmt.Errorf("invalid processing.num_cores: %d (must be >= 0)", c.Processing.NumCores)
	}
	if !slices.Contains(validOutputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validOutputFormats, ", "))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.MaxBodyKB <= 0 {
		return fmt.Errorf("invalid server.max_body_kb: %d (must be > 0)", c.Server.MaxBodyKB)
	}
	if !slices.Contains(validLogLevels, c.Log.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Log.Level, strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validLogFormats, c.Log.Format) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.Log.Format, strings.Join(validLogFormats, ", "))
	}
	return nil
}

// SkinMeshPath returns the skin mesh path resolved against the model directory.
func (c *Config) SkinMeshPath() string {
	return resolve(c.Model.Dir, c.Model.SkinMesh)
}

// SkullMeshPath returns the skull mesh path resolved against the model directory.
func (c *Config) SkullMeshPath() string {
	return resolve(c.Model.Dir, c.Model.SkullMesh)
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("error marshaling config: %w", err)
	}
	return data, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
