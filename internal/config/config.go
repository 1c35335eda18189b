// Package config loads and validates promptdj settings.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dgnsrekt/promptdj/internal/lyria"
)

// Config contains all promptdj configuration options.
type Config struct {
	// Backend settings
	Model      string `yaml:"model" mapstructure:"model"`
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	APIVersion string `yaml:"api_version" mapstructure:"api_version"`

	// Playback settings
	BufferTime     time.Duration `yaml:"buffer_time" mapstructure:"buffer_time"`
	FadeTime       time.Duration `yaml:"fade_time" mapstructure:"fade_time"`
	PromptThrottle time.Duration `yaml:"prompt_throttle" mapstructure:"prompt_throttle"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// Audio settings
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels   int `yaml:"channels" mapstructure:"channels"`

	// Credentials
	EphemeralTokens bool          `yaml:"ephemeral_tokens" mapstructure:"ephemeral_tokens"`
	TokenTTL        time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`

	Presets  string `yaml:"presets" mapstructure:"presets"`
	Autoplay bool   `yaml:"autoplay" mapstructure:"autoplay"`

	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Music   MusicConfig   `yaml:"music" mapstructure:"music"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address /metrics is served on. Empty disables it.
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// MusicConfig holds optional generation parameters. Zero values are left
// to the backend.
type MusicConfig struct {
	BPM         int     `yaml:"bpm" mapstructure:"bpm"`
	Density     float64 `yaml:"density" mapstructure:"density"`
	Brightness  float64 `yaml:"brightness" mapstructure:"brightness"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	Guidance    float64 `yaml:"guidance" mapstructure:"guidance"`
	Scale       string  `yaml:"scale" mapstructure:"scale"`
}

// Secrets are read from the environment only.
type Secrets struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`
}

// APIKey returns the first key that is set.
func (s Secrets) APIKey() string {
	if s.GeminiAPIKey != "" {
		return s.GeminiAPIKey
	}
	return s.GoogleAPIKey
}

// ErrNoAPIKey is returned when neither GEMINI_API_KEY nor GOOGLE_API_KEY is set.
var ErrNoAPIKey = errors.New("no API key: set GEMINI_API_KEY or GOOGLE_API_KEY")

// LoadSecrets parses credentials from the environment.
func LoadSecrets() (Secrets, error) {
	s, err := env.ParseAs[Secrets]()
	if err != nil {
		return s, fmt.Errorf("error parsing environment: %w", err)
	}
	if s.APIKey() == "" {
		return s, ErrNoAPIKey
	}
	return s, nil
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Model:           lyria.DefaultModel,
		Endpoint:        lyria.DefaultEndpoint,
		APIVersion:      lyria.DefaultAPIVersion,
		BufferTime:      2 * time.Second,
		FadeTime:        100 * time.Millisecond,
		PromptThrottle:  200 * time.Millisecond,
		ConnectTimeout:  30 * time.Second,
		SampleRate:      48000,
		Channels:        2,
		EphemeralTokens: false,
		TokenTTL:        30 * time.Minute,
		Log:             LogConfig{Level: "info"},
	}
}

var (
	validSampleRates = []int{44100, 48000}
	validLevels      = []string{"debug", "info", "warn", "error"}
)

// Validate checks if the configuration is valid and reports every problem
// found.
func (c *Config) Validate() error {
	var errs []error

	if c.Model == "" {
		errs = append(errs, errors.New("model cannot be empty"))
	}
	if c.BufferTime <= 0 {
		errs = append(errs, fmt.Errorf("buffer_time must be positive, got %v", c.BufferTime))
	}
	if c.FadeTime <= 0 {
		errs = append(errs, fmt.Errorf("fade_time must be positive, got %v", c.FadeTime))
	}
	if c.PromptThrottle < 0 {
		errs = append(errs, fmt.Errorf("prompt_throttle cannot be negative, got %v", c.PromptThrottle))
	}
	if c.ConnectTimeout < time.Second {
		errs = append(errs, fmt.Errorf("connect_timeout must be at least 1 second, got %v", c.ConnectTimeout))
	}
	if !slices.Contains(validSampleRates, c.SampleRate) {
		errs = append(errs, fmt.Errorf("invalid sample rate %d: must be one of %v", c.SampleRate, validSampleRates))
	}
	if c.Channels != 1 && c.Channels != 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", c.Channels))
	}
	if c.EphemeralTokens && c.TokenTTL < time.Minute {
		errs = append(errs, fmt.Errorf("token_ttl must be at least 1 minute, got %v", c.TokenTTL))
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if !slices.Contains(validLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("invalid log level '%s': must be one of %v", c.Log.Level, validLevels))
	}

	if err := c.Music.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("music config: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks the generation parameters against the backend's ranges.
func (m *MusicConfig) Validate() error {
	var errs []error
	if m.BPM != 0 && (m.BPM < 60 || m.BPM > 200) {
		errs = append(errs, fmt.Errorf("bpm must be between 60 and 200, got %d", m.BPM))
	}
	if m.Density < 0 || m.Density > 1 {
		errs = append(errs, fmt.Errorf("density must be between 0.0 and 1.0, got %f", m.Density))
	}
	if m.Brightness < 0 || m.Brightness > 1 {
		errs = append(errs, fmt.Errorf("brightness must be between 0.0 and 1.0, got %f", m.Brightness))
	}
	if m.Temperature < 0 || m.Temperature > 3 {
		errs = append(errs, fmt.Errorf("temperature must be between 0.0 and 3.0, got %f", m.Temperature))
	}
	if m.Guidance < 0 || m.Guidance > 6 {
		errs = append(errs, fmt.Errorf("guidance must be between 0.0 and 6.0, got %f", m.Guidance))
	}
	if m.Scale != "" && !slices.Contains(lyria.Scales(), lyria.Scale(strings.ToUpper(m.Scale))) {
		errs = append(errs, fmt.Errorf("invalid scale '%s'", m.Scale))
	}
	return errors.Join(errs...)
}

// Generation converts the music settings to the wire form. It returns nil
// when nothing is configured.
func (m MusicConfig) Generation() *lyria.MusicGenerationConfig {
	if m == (MusicConfig{}) {
		return nil
	}
	out := &lyria.MusicGenerationConfig{}
	if m.BPM != 0 {
		out.BPM = &m.BPM
	}
	if m.Density != 0 {
		out.Density = &m.Density
	}
	if m.Brightness != 0 {
		out.Brightness = &m.Brightness
	}
	if m.Temperature != 0 {
		out.Temperature = &m.Temperature
	}
	if m.Guidance != 0 {
		out.Guidance = &m.Guidance
	}
	if m.Scale != "" {
		out.Scale = lyria.Scale(strings.ToUpper(m.Scale))
	}
	return out
}
