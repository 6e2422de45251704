// Package config holds the server configuration: defaults, optional YAML
// file loading, and semantic validation. Flags override whatever the file
// provides.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Server configures one mock node process.
type Server struct {
	// Port is the local port to listen on.
	Port uint16 `yaml:"port" validate:"min=1"`
	// LogDir is the directory the log file is written to. It must exist.
	LogDir string `yaml:"log_dir" validate:"required"`
	// LogFile is the log file name inside LogDir.
	LogFile string `yaml:"log_file" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Server {
	return Server{
		Port:    9001,
		LogDir:  ".",
		LogFile: "fidi_server.log",
	}
}

// Load reads a YAML configuration file over the defaults. Keys absent
// from the file keep their default values.
func Load(path string) (Server, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// Validate runs the struct-level checks.
func (s Server) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
