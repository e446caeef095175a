package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("demo")
	require.NoError(t, cfg.Validate())
	require.Equal(t, "demo", cfg.App.ID)
	require.Equal(t, 12*time.Hour, cfg.TokenTTL())
	require.NotEmpty(t, cfg.RBAC.Roles["worker"].Permissions)
}

func TestValidateRejectsMissingRoles(t *testing.T) {
	cfg := Default("demo")
	delete(cfg.RBAC.Roles, "worker")
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "worker")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"app id":   func(c *Config) { c.App.ID = "" },
		"slash":    func(c *Config) { c.App.ID = "a/b" },
		"owner":    func(c *Config) { c.Owner.Password = "" },
		"ttl":      func(c *Config) { c.Auth.TokenTTL = "soon" },
		"level":    func(c *Config) { c.Logging.Level = "loud" },
		"format":   func(c *Config) { c.Logging.Format = "xml" },
		"webhook":  func(c *Config) { c.Webhooks = []WebhookConfig{{URL: " "}} },
		"perm":     func(c *Config) { c.RBAC.Roles["owner"] = RBACRole{Permissions: []string{""}} },
		"no rbac":  func(c *Config) { c.RBAC.Roles = nil },
		"timeouts": func(c *Config) { c.Webhooks = []WebhookConfig{{URL: "http://x", TimeoutSeconds: -1}} },
	}
	for name, mutate := range cases {
		cfg := Default("demo")
		mutate(cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	require.Nil(t, cfg)
	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("shop")), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	require.Equal(t, "shop", cfg.App.ID)
}

func TestWebhookActive(t *testing.T) {
	off := false
	require.False(t, WebhookConfig{URL: "http://x", Enabled: &off}.Active())
	require.True(t, WebhookConfig{URL: "http://x"}.Active())
}
