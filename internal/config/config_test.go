package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/normalize"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  secret: hunter2
target:
  url: https://example.com/watched
  headers:
    Accept-Language: en-US
http:
  timeout_seconds: 45
headless:
  engine: rod
diff:
  max_lines: 10
storage:
  backend: memory
alert:
  timezone: America/New_York
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Auth.Secret)
	assert.Equal(t, "https://example.com/watched", cfg.Target.URL)
	assert.Equal(t, "en-US", cfg.Target.Headers["accept-language"])
	assert.Equal(t, 45*time.Second, cfg.FetchTimeout())
	assert.Equal(t, EngineRod, cfg.Headless.Engine)
	assert.True(t, cfg.Headless.Enabled)
	assert.Equal(t, 10, cfg.Diff.MaxLines)
	assert.Equal(t, diff.DefaultContextLines, cfg.Diff.ContextLines)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "America/New_York", cfg.Location().String())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDefaultsFromEnvironment(t *testing.T) {
	t.Setenv("PAGEWATCH_AUTH_SECRET", "from-env")
	t.Setenv("PAGEWATCH_STORAGE_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultTargetURL, cfg.Target.URL)
	assert.Equal(t, 2*time.Minute, cfg.CheckTimeout())
	assert.Equal(t, 3*time.Minute, cfg.RequestTimeout())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, EngineChromedp, cfg.Headless.Engine)
	assert.Equal(t, 2048, cfg.Headless.ChallengeThreshold)
	assert.Equal(t, []string{normalize.DefaultCountdownID}, cfg.Normalize.VolatileIDs)
	assert.Equal(t, []string{normalize.DefaultFooterPattern}, cfg.Normalize.FooterPatterns)
	assert.Equal(t, diff.DefaultMaxLines, cfg.Diff.MaxLines)
	assert.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 0)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("WATCHER_SECRET", "legacy-secret")
	t.Setenv("TG_TOKEN", "123:abc")
	t.Setenv("TG_CHAT_ID", "42")
	t.Setenv("PORT", "8181")
	t.Setenv("PAGEWATCH_STORAGE_BACKEND", BackendMemory)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "legacy-secret", cfg.Auth.Secret)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestLoadPrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	t.Setenv("WATCHER_SECRET", "legacy")
	t.Setenv("PAGEWATCH_AUTH_SECRET", "prefixed")
	t.Setenv("PAGEWATCH_STORAGE_BACKEND", BackendMemory)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Auth.Secret)
}

func TestLoadMissingSecret(t *testing.T) {
	t.Setenv("PAGEWATCH_STORAGE_BACKEND", BackendMemory)

	_, err := Load("")
	require.ErrorContains(t, err, "auth.secret")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Auth:     AuthConfig{Secret: "s"},
		Target:   TargetConfig{URL: "https://example.com"},
		HTTP:     HTTPConfig{TimeoutSeconds: 10},
		Headless: HeadlessConfig{Enabled: true, Engine: EngineChromedp},
		Diff:     diff.Config{MaxLines: 40},
		Storage:  StorageConfig{Backend: BackendLocal, Dir: "data"},
		Alert:    AlertConfig{Timezone: "UTC"},
		Logging:  LoggingConfig{Level: "info"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "blank secret", mutate: func(c *Config) { c.Auth.Secret = "  " }, want: "auth.secret"},
		{name: "relative url", mutate: func(c *Config) { c.Target.URL = "/page" }, want: "target.url"},
		{name: "ftp url", mutate: func(c *Config) { c.Target.URL = "ftp://example.com" }, want: "target.url"},
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "unknown engine", mutate: func(c *Config) { c.Headless.Engine = "webkit" }, want: "headless.engine"},
		{name: "zero diff lines", mutate: func(c *Config) { c.Diff.MaxLines = 0 }, want: "diff.max_lines"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Dir = "" }, want: "storage.dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = BackendGCS }, want: "storage.gcs_bucket"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "token without chat", mutate: func(c *Config) { c.Telegram.Token = "t" }, want: "telegram.token"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "changes" }, want: "pubsub.project_id"},
		{name: "bad timezone", mutate: func(c *Config) { c.Alert.Timezone = "Mars/Olympus" }, want: "alert.timezone"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, want: "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestDisabledHeadlessIgnoresEngine(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:   ServerConfig{Port: 1},
		Auth:     AuthConfig{Secret: "s"},
		Target:   TargetConfig{URL: "http://example.com"},
		HTTP:     HTTPConfig{TimeoutSeconds: 1},
		Headless: HeadlessConfig{Engine: "anything"},
		Diff:     diff.Config{MaxLines: 1},
		Storage:  StorageConfig{Backend: BackendMemory},
		Alert:    AlertConfig{Timezone: "UTC"},
		Logging:  LoggingConfig{Level: "warn"},
	}
	require.NoError(t, cfg.Validate())
}
