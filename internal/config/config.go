// Package config loads and validates watcher configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/normalize"
)

// DefaultTargetURL is the page watched when none is configured.
const DefaultTargetURL = "https://www.intelligentexistence.com/connect-to-clarity/"

// Storage backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Browser engines for challenge promotion.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Target    TargetConfig     `mapstructure:"target"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Headless  HeadlessConfig   `mapstructure:"headless"`
	Normalize normalize.Config `mapstructure:"normalize"`
	Diff      diff.Config      `mapstructure:"diff"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Telegram  TelegramConfig   `mapstructure:"telegram"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Alert     AlertConfig      `mapstructure:"alert"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Tracing   TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig holds the shared secret that gates triggers.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// TargetConfig describes the watched page.
type TargetConfig struct {
	URL                 string            `mapstructure:"url"`
	Headers             map[string]string `mapstructure:"headers"`
	CheckTimeoutSeconds int               `mapstructure:"check_timeout_seconds"`
}

// HTTPConfig configures the plain HTTP probe.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures browser promotion.
type HeadlessConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Engine             string `mapstructure:"engine"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	SettleSeconds      int    `mapstructure:"settle_seconds"`
	ExecPath           string `mapstructure:"exec_path"`
	RemoteURL          string `mapstructure:"remote_url"`
	ChallengeThreshold int    `mapstructure:"challenge_threshold"`
}

// StorageConfig selects where state objects live.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	SeedDir   string `mapstructure:"seed_dir"`
}

// TelegramConfig enables the Telegram sink when Token is set.
type TelegramConfig struct {
	Token          string `mapstructure:"token"`
	ChatID         string `mapstructure:"chat_id"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PubSubConfig enables change events when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// AlertConfig shapes alert text.
type AlertConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig controls span sampling.
type TracingConfig struct {
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// legacyEnv maps keys to the unprefixed variables older deployments used.
var legacyEnv = map[string]string{
	"auth.secret":      "WATCHER_SECRET",
	"telegram.token":   "TG_TOKEN",
	"telegram.chat_id": "TG_CHAT_ID",
	"server.port":      "PORT",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := "PAGEWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 180)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.secret", "")
	v.SetDefault("target.url", DefaultTargetURL)
	v.SetDefault("target.check_timeout_seconds", 120)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.engine", EngineChromedp)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_seconds", 2)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.remote_url", "")
	v.SetDefault("headless.challenge_threshold", 2048)
	v.SetDefault("normalize.volatile_ids", []string{normalize.DefaultCountdownID})
	v.SetDefault("normalize.footer_patterns", []string{normalize.DefaultFooterPattern})
	v.SetDefault("diff.max_lines", diff.DefaultMaxLines)
	v.SetDefault("diff.context_lines", diff.DefaultContextLines)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.dir", DefaultDataDir())
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.seed_dir", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.endpoint", "")
	v.SetDefault("telegram.timeout_seconds", 15)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("alert.timezone", "UTC")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// DefaultDataDir prefers a mounted /data volume and falls back to ./data.
func DefaultDataDir() string {
	if info, err := os.Stat("/data"); err == nil && info.IsDir() {
		return "/data"
	}
	return "data"
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("auth.secret must be set")
	}
	u, err := url.Parse(c.Target.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target.url must be an absolute http(s) URL")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.Engine != EngineChromedp && c.Headless.Engine != EngineRod {
		return fmt.Errorf("headless.engine must be %q or %q", EngineChromedp, EngineRod)
	}
	if c.Diff.MaxLines <= 0 {
		return fmt.Errorf("diff.max_lines must be > 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.Dir) == "" {
			return fmt.Errorf("storage.dir must be set for the local backend")
		}
	case BackendGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend)
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.token and telegram.chat_id must be set together")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if _, err := time.LoadLocation(c.Alert.Timezone); err != nil {
		return fmt.Errorf("alert.timezone: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}

// FetchTimeout is the plain probe timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CheckTimeout bounds a whole check.
func (c Config) CheckTimeout() time.Duration {
	return time.Duration(c.Target.CheckTimeoutSeconds) * time.Second
}

// RequestTimeout bounds one HTTP request to the server.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// Location returns the alert time zone, UTC if it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Alert.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
