// Package config loads botwire settings from a JSON file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/platform"
)

// configFilePerm is the file permission for config.json (owner rw, group/others read).
const configFilePerm = 0644

// Replaceable for testing error paths.
var (
	atomicWrite       = platform.AtomicWrite
	jsonMarshalIndent = func(v any, prefix, indent string) ([]byte, error) { return json.MarshalIndent(v, prefix, indent) }
	envDecode         = envdecode.Decode
	dotEnvFile        = ".env"
)

// Duration wraps time.Duration with custom JSON marshal/unmarshal for string durations.
type Duration struct {
	time.Duration
}

// MarshalJSON encodes the duration as a JSON string (e.g., "30m0s").
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// UnmarshalJSON decodes a JSON string into a Duration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.Decode(s)
}

// Decode parses an environment value such as "90s".
func (d *Duration) Decode(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// WebhookConfig configures webhook delivery. PublicURL is the externally
// reachable base under which Path is served.
type WebhookConfig struct {
	Listen    string `json:"listen" env:"BOTWIRE_WEBHOOK_LISTEN"`
	Path      string `json:"path" env:"BOTWIRE_WEBHOOK_PATH"`
	PublicURL string `json:"public_url,omitempty" env:"BOTWIRE_WEBHOOK_PUBLIC_URL"`

	// CheckInterval is how often getWebhookInfo is polled for delivery
	// problems; zero disables the check.
	CheckInterval Duration `json:"check_interval" env:"BOTWIRE_WEBHOOK_CHECK_INTERVAL"`
	MaxPending    int      `json:"max_pending,omitempty" env:"BOTWIRE_WEBHOOK_MAX_PENDING"`
}

// OTelConfig configures trace export.
type OTelConfig struct {
	Enabled     bool    `json:"enabled" env:"OTEL_ENABLED"`
	Endpoint    string  `json:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `json:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName string  `json:"service_name" env:"OTEL_SERVICE_NAME"`
	SampleRatio float64 `json:"sample_ratio" env:"OTEL_TRACES_SAMPLER_ARG"`
}

// Config holds the application configuration.
type Config struct {
	APIURL        string        `json:"api_url" env:"BOTWIRE_API_URL"`
	Timeout       Duration      `json:"timeout" env:"BOTWIRE_TIMEOUT"`
	PollTimeout   Duration      `json:"poll_timeout" env:"BOTWIRE_POLL_TIMEOUT"`
	RateLimit     float64       `json:"rate_limit" env:"BOTWIRE_RATE_LIMIT"`
	RateBurst     int           `json:"rate_burst" env:"BOTWIRE_RATE_BURST"`
	LogLevel      string        `json:"log_level" env:"LOG_LEVEL"`
	LogPretty     bool          `json:"log_pretty" env:"LOG_PRETTY"`
	SchemaFile    string        `json:"schema_file,omitempty" env:"BOTWIRE_SCHEMA_FILE"`
	SchemaReload  Duration      `json:"schema_reload" env:"BOTWIRE_SCHEMA_RELOAD"`
	AllowedIDs    []int64       `json:"allowed_ids" env:"BOTWIRE_ALLOWED_IDS"`
	Webhook       WebhookConfig `json:"webhook"`
	MetricsListen string        `json:"metrics_listen,omitempty" env:"BOTWIRE_METRICS_LISTEN"`
	OTel          OTelConfig    `json:"otel"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		APIURL:      "https://api.telegram.org/",
		Timeout:     Duration{60 * time.Second},
		PollTimeout: Duration{50 * time.Second},
		RateBurst:   1,
		LogLevel:    "info",
		AllowedIDs:  []int64{},
		Webhook: WebhookConfig{
			Listen:        ":8443",
			Path:          "/webhook",
			CheckInterval: Duration{5 * time.Minute},
			MaxPending:    100,
		},
		OTel: OTelConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "botwire",
			SampleRatio: 1.0,
		},
	}
}

// Load builds the configuration: defaults, then the JSON file at path (if
// path is not empty), then .env and process environment overrides. The
// result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: load: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: load: unmarshal: %w", err)
		}
	}

	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load: %s: %w", dotEnvFile, err)
	}
	if err := envDecode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: load: env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("component", "config").Str("operation", "load").Str("path", path).Msg("config loaded")
	return cfg, nil
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api_url must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.Timeout.Duration <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.PollTimeout.Duration < 0 || c.PollTimeout.Duration >= c.Timeout.Duration {
		return errors.New("config: poll_timeout must be >= 0 and shorter than timeout")
	}
	if c.RateLimit < 0 {
		return errors.New("config: rate_limit must be >= 0")
	}
	if c.RateBurst < 0 {
		return errors.New("config: rate_burst must be >= 0")
	}
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if !strings.HasPrefix(c.Webhook.Path, "/") {
		return fmt.Errorf("config: webhook.path must start with '/', got %q", c.Webhook.Path)
	}
	if c.Webhook.PublicURL != "" {
		if u, err := url.Parse(c.Webhook.PublicURL); err != nil || u.Scheme != "https" {
			return fmt.Errorf("config: webhook.public_url must be an https URL, got %q", c.Webhook.PublicURL)
		}
	}
	if c.SchemaReload.Duration < 0 {
		return errors.New("config: schema_reload must be >= 0")
	}
	if c.Webhook.CheckInterval.Duration < 0 {
		return errors.New("config: webhook.check_interval must be >= 0")
	}
	if c.Webhook.MaxPending < 0 {
		return errors.New("config: webhook.max_pending must be >= 0")
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		return errors.New("config: otel.sample_ratio must be in [0,1]")
	}
	if c.OTel.Enabled && c.OTel.Endpoint == "" {
		return errors.New("config: otel.endpoint is required when otel is enabled")
	}
	return nil
}

// Save writes the config struct to the given path atomically with JSON formatting.
func Save(cfg *Config, path string) error {
	data, err := jsonMarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: save: marshal: %w", err)
	}
	data = append(data, '\n')
	if err := atomicWrite(path, data, configFilePerm); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	log.Info().Str("component", "config").Str("operation", "save").Str("path", path).Msg("config saved")
	return nil
}
