package plugin

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RegistryConfig describes which built-in plugins are enabled and the
// install-time capability policy applied to every registration.
type RegistryConfig struct {
	Defaults CapabilityPolicy          `yaml:"defaults"`
	Plugins  map[string]PluginSettings `yaml:"plugins"`
}

// PluginSettings is the configuration block for a single plugin instance.
type PluginSettings struct {
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

// LoadRegistryConfig reads a YAML file into a RegistryConfig.
func LoadRegistryConfig(path string) (RegistryConfig, error) {
	var cfg RegistryConfig
	if path == "" {
		return cfg, errors.New("registry config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read registry config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal registry config: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginSettings{}
	}
	return cfg, nil
}

// Validate ensures the registry configuration is internally consistent.
func (c RegistryConfig) Validate() error {
	for id := range c.Plugins {
		if id == "" {
			return errors.New("plugin id cannot be empty")
		}
	}
	return nil
}

// Enabled reports whether the configuration enables a plugin id. Plugins
// absent from the file default to disabled.
func (c RegistryConfig) Enabled(id string) bool {
	settings, ok := c.Plugins[id]
	return ok && settings.Enabled
}
