package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// SourcePath is the root directory browsed for RAW files
	SourcePath string `yaml:"source_path" json:"source_path"`

	// OutputPath is the default destination for converted images.
	// If empty, outputs are written beside their source files.
	OutputPath string `yaml:"output_path" json:"output_path"`

	// Format is the default output format: "jpeg" or "webp"
	Format string `yaml:"format" json:"format"`

	// Quality is the default encode quality, 1-100 (default 95)
	Quality int `yaml:"quality" json:"quality"`

	// DeleteOriginals removes a source file after its output is written
	DeleteOriginals bool `yaml:"delete_originals" json:"delete_originals"`

	// WatchPath is an optional inbox directory. RAW files appearing in it
	// are converted automatically. Empty disables watching.
	WatchPath string `yaml:"watch_path" json:"watch_path"`

	// DcrawPath is the path to the dcraw binary (default: "dcraw")
	DcrawPath string `yaml:"dcraw_path" json:"dcraw_path"`

	// LogLevel is the logging level: debug, info, warn, error
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SourcePath: "/photos",
		OutputPath: "", // beside the source file
		Format:     "jpeg",
		Quality:    95,
		DcrawPath:  "dcraw",
		LogLevel:   "info",
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Apply defaults for empty values
	if cfg.Format == "" {
		cfg.Format = "jpeg"
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		cfg.Quality = 95
	}
	if cfg.DcrawPath == "" {
		cfg.DcrawPath = "dcraw"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
