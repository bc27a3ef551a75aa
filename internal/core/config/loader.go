package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Engine.MonitorInterval == 0 {
		cfg.Engine.MonitorInterval = Duration(30 * time.Second)
	}

	for i := range cfg.Services {
		if cfg.Services[i].Interval == 0 {
			cfg.Services[i].Interval = Duration(30 * time.Second)
		}
		if cfg.Services[i].Timeout == 0 {
			cfg.Services[i].Timeout = Duration(5 * time.Second)
		}
	}

	return &cfg, nil
}
