package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/auralis/internal/ai"
	"github.com/starford/auralis/internal/auth"
)

// Insights cache modes.
const (
	CacheModeMemory = "memory"
	CacheModeRedis  = "redis"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	AI     AIConfig          `yaml:"ai"`
	Cache  CacheConfig       `yaml:"cache"`
	Events EventsConfig      `yaml:"events"`
	Export ExportConfig      `yaml:"export"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
		{"ai", &c.AI},
		{"cache", &c.Cache},
		{"events", &c.Events},
		{"export", &c.Export},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how the request owner is resolved:
//   - "disabled" (default): every request acts as DefaultOwner, suitable for local use.
//   - "jwt": HS256 bearer tokens signed with Secret; the subject is the owner.
type AuthConfig struct {
	Mode         string        `yaml:"mode"`
	Secret       string        `yaml:"secret"`
	DefaultOwner string        `yaml:"default_owner"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled".
	if c.Mode == "" {
		c.Mode = auth.ModeDisabled
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(auth.ModeDisabled, auth.ModeJWT)),
		validation.Field(&c.Secret,
			validation.When(c.Mode == auth.ModeJWT, validation.Required.Error("is required in jwt mode"), validation.Length(16, 0))),
		validation.Field(&c.DefaultOwner,
			validation.When(c.Mode == auth.ModeDisabled, validation.Required.Error("is required in disabled mode"))),
		validation.Field(&c.TokenTTL, validation.Min(time.Minute)),
	)
}

// AuthEnabled returns true when tokens are required.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == auth.ModeJWT
}

// AIConfig holds the LLM backend settings. An empty APIKey leaves the
// summarize and insights features reporting the backend as unavailable.
type AIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// Client returns the ai.Config for this section.
func (c *AIConfig) Client() ai.Config {
	return ai.Config{BaseURL: c.BaseURL, APIKey: c.APIKey, Model: c.Model, Timeout: c.Timeout}
}

// CacheConfig selects where derived insight categories are cached.
type CacheConfig struct {
	Mode     string        `yaml:"mode"`
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = CacheModeMemory
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(CacheModeMemory, CacheModeRedis)),
		validation.Field(&c.RedisURL,
			validation.When(c.Mode == CacheModeRedis, validation.Required.Error("is required in redis mode"))),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
	)
}

// EventsConfig tunes the SSE stream.
type EventsConfig struct {
	InsightsThrottle time.Duration `yaml:"insights_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.InsightsThrottle, validation.Min(100*time.Millisecond)),
	)
}

// ExportConfig holds the target directory of the export command.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./auralis.db",
		},
		Auth: AuthConfig{
			Mode:         auth.ModeDisabled,
			DefaultOwner: "local",
			TokenTTL:     24 * time.Hour,
		},
		AI: AIConfig{
			BaseURL: ai.DefaultBaseURL,
			Model:   ai.DefaultModel,
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Mode: CacheModeMemory,
			TTL:  10 * time.Minute,
		},
		Events: EventsConfig{
			InsightsThrottle: 2 * time.Second,
		},
		Export: ExportConfig{
			Dir: "./export",
		},
	}
}
