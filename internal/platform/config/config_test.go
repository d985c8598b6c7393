package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// No config file: defaults apply. Point the loader at an empty dir so
	// it cannot pick up a stray config.yaml.
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected an error for an explicitly missing file")
	}

	cfg, err = loadFromDir(t, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != "bolt" {
		t.Errorf("Expected bolt backend by default, got %s", cfg.Store.Backend)
	}
	if cfg.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("Expected 5m default TTL, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.DefaultNamespace != "app" {
		t.Errorf("Expected app namespace, got %s", cfg.Cache.DefaultNamespace)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Errorf("Expected 5 max attempts, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.ReplayTimeout != 30*time.Second {
		t.Errorf("Expected 30s replay timeout, got %v", cfg.Queue.ReplayTimeout)
	}
	if cfg.Connectivity.ReconnectPulse != 5*time.Second {
		t.Errorf("Expected 5s reconnect pulse, got %v", cfg.Connectivity.ReconnectPulse)
	}

	t.Log("✓ Defaults produce a valid configuration")
}

// loadFromDir writes content as config.yaml into a temp dir, chdirs there,
// and loads with no explicit path.
func loadFromDir(t *testing.T, content string) (*Config, error) {
	t.Helper()

	dir := t.TempDir()
	if content != "" {
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	return Load("")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  backend: memory
cache:
  default_ttl: 90s
  default_namespace: mobile
queue:
  max_attempts: 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != "memory" {
		t.Errorf("Expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Cache.DefaultTTL != 90*time.Second {
		t.Errorf("Expected 90s TTL, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.DefaultNamespace != "mobile" {
		t.Errorf("Expected mobile namespace, got %s", cfg.Cache.DefaultNamespace)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Errorf("Expected 3 max attempts, got %d", cfg.Queue.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if cfg.Queue.ReplayTimeout != 30*time.Second {
		t.Errorf("Expected default replay timeout, got %v", cfg.Queue.ReplayTimeout)
	}

	t.Log("✓ File values override defaults without clobbering the rest")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	base := func() *Config {
		cfg, err := loadFromDir(t, "")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }},
		{"bolt without path", func(c *Config) { c.Store.Bolt.Path = "" }},
		{"redis without address", func(c *Config) {
			c.Store.Backend = "redis"
			c.Store.Redis.Address = ""
		}},
		{"dynamo without table", func(c *Config) {
			c.Store.Backend = "dynamo"
			c.Store.Dynamo.Table = ""
		}},
		{"zero TTL", func(c *Config) { c.Cache.DefaultTTL = 0 }},
		{"empty namespace", func(c *Config) { c.Cache.DefaultNamespace = "" }},
		{"zero max attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }},
		{"probe without URL", func(c *Config) {
			c.Connectivity.Probe.Enabled = true
			c.Connectivity.Probe.URL = ""
		}},
		{"notifications without topic", func(c *Config) {
			c.Notifications.Enabled = true
			c.Notifications.SNSTopicARN = ""
		}},
		{"bad log level", func(c *Config) { c.Observability.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Observability.Logging.Format = "xml" }},
	}

	for _, tc := range tests {
		cfg := base()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}

	t.Log("✓ Validation rejects each broken field")
}
