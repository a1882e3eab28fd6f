package secretstore

import (
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// LoadConfig reads provider settings from the handler config file. The file may
// hold them under a top-level "secrets" key or be a bare secrets config. An empty
// path yields an empty Config.
func LoadConfig(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(raw)
}

// ParseConfig decodes YAML or JSON provider settings.
func ParseConfig(raw []byte) (Config, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Config{}, nil
	}
	var wrapper struct {
		Secrets *Config `json:"secrets"`
	}
	if err := yaml.Unmarshal(raw, &wrapper); err != nil {
		return Config{}, fmt.Errorf("parse secrets config: %w", err)
	}
	if wrapper.Secrets != nil {
		return *wrapper.Secrets, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse secrets config: %w", err)
	}
	return cfg, nil
}
