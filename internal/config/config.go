package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "jobline.yml"

// Config models jobline.yml.
type Config struct {
	App struct {
		ID string `yaml:"id"`
	} `yaml:"app"`
	Owner struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"owner"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	if w.Enabled != nil && !*w.Enabled {
		return false
	}
	return strings.TrimSpace(w.URL) != ""
}

// TokenTTL returns the parsed auth.token_ttl, defaulting to 12h.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with jl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.App.ID) == "" {
		return fmt.Errorf("config.app.id is required")
	}
	if strings.Contains(c.App.ID, "/") {
		return fmt.Errorf("config.app.id must not contain '/'")
	}
	if c.Owner.Email == "" || c.Owner.Password == "" {
		return fmt.Errorf("config.owner.email and config.owner.password are required")
	}
	if c.Auth.TokenTTL != "" {
		if d, err := time.ParseDuration(c.Auth.TokenTTL); err != nil || d <= 0 {
			return fmt.Errorf("config.auth.token_ttl must be a positive duration")
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.logging.format %q is not one of text, json", c.Logging.Format)
	}
	if c.RBAC.Roles == nil {
		return fmt.Errorf("config.rbac.roles is required")
	}
	for _, required := range []string{"owner", "worker"} {
		if _, ok := c.RBAC.Roles[required]; !ok {
			return fmt.Errorf("config.rbac.roles must include %s", required)
		}
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(appID string) string {
	return fmt.Sprintf(defaultTemplate, appID)
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

// Default returns the default Config struct for an application id.
func Default(appID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(appID))).Decode(&cfg)
	return &cfg
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

const defaultTemplate = `app:
  id: %s

owner:
  email: owner@example.com
  password: owner123

server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  token_ttl: 12h

logging:
  level: info
  format: text

rbac:
  roles:
    owner:
      description: "Assigns paid jobs and reviews completions"
      permissions:
        - worker.create
        - worker.list
        - job.create
        - job.list
        - notification.read
        - notification.ack
        - events.read
        - view.stream
    worker:
      description: "Completes jobs assigned to them"
      permissions:
        - job.list
        - job.complete
        - view.stream

webhooks: []
`
