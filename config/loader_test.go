// 配置加载器与校验测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "production", cfg.Reconciler.Environment)
	assert.Equal(t, time.Minute, cfg.Reconciler.StatusInterval)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

database:
  driver: mysql
  host: db.internal
  port: 3306

redis:
  enabled: true
  addr: "redis.example.com:6379"
  db: 1

status_source:
  url: "https://search.internal:9200"
  index: "kp-status"
  timeout: 5s

activity_source:
  production_url: "https://orchestrator.internal"
  project_key: "KNOWLEDGE"

reconciler:
  environment: development
  sync_enabled: true
  sync_interval: 2m
  recipe_prefix: "cdc_"

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	// 未在 YAML 中出现的字段保留默认值
	assert.Equal(t, 3, cfg.Database.MaxTxRetries)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)

	assert.Equal(t, "kp-status", cfg.StatusSource.Index)
	assert.Equal(t, 5*time.Second, cfg.StatusSource.Timeout)
	assert.Equal(t, 1000, cfg.StatusSource.PageSize)

	assert.Equal(t, "KNOWLEDGE", cfg.ActivitySource.ProjectKey)
	assert.Equal(t, "development", cfg.Reconciler.Environment)
	assert.True(t, cfg.Reconciler.SyncEnabled)
	assert.Equal(t, 2*time.Minute, cfg.Reconciler.SyncInterval)
	assert.Equal(t, "cdc_", cfg.Reconciler.RecipePrefix)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("KPRECONCILE_SERVER_HTTP_PORT", "7777")
	t.Setenv("KPRECONCILE_SERVER_API_KEYS", "a, b")
	t.Setenv("KPRECONCILE_REDIS_ENABLED", "true")
	t.Setenv("KPRECONCILE_STATUS_SOURCE_QPS", "2.5")
	t.Setenv("KPRECONCILE_RECONCILER_STATUS_INTERVAL", "30s")
	t.Setenv("KPRECONCILE_ACTIVITY_SOURCE_API_KEY", "secret")
	t.Setenv("KPRECONCILE_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"a", "b"}, cfg.Server.APIKeys)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2.5, cfg.StatusSource.QPS)
	assert.Equal(t, 30*time.Second, cfg.Reconciler.StatusInterval)
	assert.Equal(t, "secret", cfg.ActivitySource.APIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
server:
  http_port: 8888
reconciler:
  environment: development
  recipe_prefix: "yaml_"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("KPRECONCILE_SERVER_HTTP_PORT", "9999")
	t.Setenv("KPRECONCILE_RECONCILER_ENVIRONMENT", "production")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "production", cfg.Reconciler.Environment)
	assert.Equal(t, "yaml_", cfg.Reconciler.RecipePrefix)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("KPRECONCILE_RECONCILER_CYCLE_TIMEOUT", "ten minutes")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KPRECONCILE_RECONCILER_CYCLE_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("KPRECONCILE_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestMustLoad_PanicsOnInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: ["), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.HTTPPort = 0 }, wantErr: "invalid HTTP port"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: "unsupported database driver"},
		{name: "redis without addr", mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, wantErr: "redis.addr"},
		{name: "bad environment", mutate: func(c *Config) { c.Reconciler.Environment = "staging" }, wantErr: "reconciler.environment"},
		{name: "short environment name", mutate: func(c *Config) { c.Reconciler.Environment = "DEV" }},
		{name: "zero status interval", mutate: func(c *Config) { c.Reconciler.StatusInterval = 0 }, wantErr: "status_interval"},
		{name: "status disabled ignores interval", mutate: func(c *Config) {
			c.Reconciler.StatusEnabled = false
			c.Reconciler.StatusInterval = 0
		}},
		{name: "sync without project key", mutate: func(c *Config) { c.Reconciler.SyncEnabled = true }, wantErr: "project_key"},
		{name: "half tls", mutate: func(c *Config) { c.Server.TLSCertFile = "cert.pem" }, wantErr: "tls_cert_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config DatabaseConfig
		want   string
	}{
		{
			name:   "postgres",
			config: DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "kp", Password: "pw", Name: "knowledge", SSLMode: "disable"},
			want:   "host=localhost port=5432 user=kp password=pw dbname=knowledge sslmode=disable",
		},
		{
			name:   "mysql",
			config: DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "kp", Password: "pw", Name: "knowledge"},
			want:   "kp:pw@tcp(db:3306)/knowledge?parseTime=true",
		},
		{
			name:   "sqlite",
			config: DatabaseConfig{Driver: "sqlite", Name: "/tmp/kp.db"},
			want:   "/tmp/kp.db",
		},
		{
			name:   "unknown",
			config: DatabaseConfig{Driver: "oracle"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}

func TestJWTConfig_Enabled(t *testing.T) {
	assert.False(t, JWTConfig{}.Enabled())
	assert.True(t, JWTConfig{Secret: "s"}.Enabled())
	assert.True(t, JWTConfig{PublicKey: "pem"}.Enabled())
}
