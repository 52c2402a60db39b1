package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fieldtasker.yml.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret    string `yaml:"jwt_secret"`
		TokenTTLMins int    `yaml:"token_ttl_minutes"`
	} `yaml:"auth"`
	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig subscribes an endpoint to a project's history feed.
type WebhookConfig struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	ProjectID string `yaml:"project_id"`
	Secret    string `yaml:"secret"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ft config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config.server.port %d out of range", c.Server.Port)
	}
	if c.Auth.TokenTTLMins < 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must not be negative")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	seen := map[string]bool{}
	for i, wh := range c.Webhooks {
		if wh.Name == "" {
			return fmt.Errorf("webhook %d has no name", i)
		}
		if seen[wh.Name] {
			return fmt.Errorf("duplicate webhook name %s", wh.Name)
		}
		seen[wh.Name] = true
		if wh.URL == "" {
			return fmt.Errorf("webhook %s has no url", wh.Name)
		}
	}
	return nil
}

// Addr returns the listen address, applying defaults.
func (c *Config) Addr() string {
	host := c.Server.Host
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// TokenTTLMinutes returns the configured token lifetime, applying the default.
func (c *Config) TokenTTLMinutes() int {
	if c.Auth.TokenTTLMins == 0 {
		return 12 * 60
	}
	return c.Auth.TokenTTLMins
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldtasker.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  host: ""
  port: 8080

auth:
  jwt_secret: ""
  token_ttl_minutes: 720

logging:
  level: info
  json: true

webhooks: []
`
