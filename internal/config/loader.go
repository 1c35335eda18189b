package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from v on top of the defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()

	// Backend settings
	if v.IsSet("model") {
		cfg.Model = v.GetString("model")
	}
	if v.IsSet("endpoint") {
		cfg.Endpoint = v.GetString("endpoint")
	}
	if v.IsSet("api_version") {
		cfg.APIVersion = v.GetString("api_version")
	}

	// Playback settings
	if v.IsSet("buffer_time") {
		cfg.BufferTime = v.GetDuration("buffer_time")
	}
	if v.IsSet("fade_time") {
		cfg.FadeTime = v.GetDuration("fade_time")
	}
	if v.IsSet("prompt_throttle") {
		cfg.PromptThrottle = v.GetDuration("prompt_throttle")
	}
	if v.IsSet("connect_timeout") {
		cfg.ConnectTimeout = v.GetDuration("connect_timeout")
	}
	if v.IsSet("autoplay") {
		cfg.Autoplay = v.GetBool("autoplay")
	}

	// Audio settings
	if v.IsSet("sample_rate") {
		cfg.SampleRate = v.GetInt("sample_rate")
	}
	if v.IsSet("channels") {
		cfg.Channels = v.GetInt("channels")
	}

	// Credentials
	if v.IsSet("ephemeral_tokens") {
		cfg.EphemeralTokens = v.GetBool("ephemeral_tokens")
	}
	if v.IsSet("token_ttl") {
		cfg.TokenTTL = v.GetDuration("token_ttl")
	}

	if v.IsSet("presets") {
		cfg.Presets = v.GetString("presets")
	}
	if v.IsSet("metrics.listen") {
		cfg.Metrics.Listen = v.GetString("metrics.listen")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}

	cfg.Music = loadMusicConfig(v)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadMusicConfig(v *viper.Viper) MusicConfig {
	var m MusicConfig
	if v.IsSet("music.bpm") {
		m.BPM = v.GetInt("music.bpm")
	}
	if v.IsSet("music.density") {
		m.Density = v.GetFloat64("music.density")
	}
	if v.IsSet("music.brightness") {
		m.Brightness = v.GetFloat64("music.brightness")
	}
	if v.IsSet("music.temperature") {
		m.Temperature = v.GetFloat64("music.temperature")
	}
	if v.IsSet("music.guidance") {
		m.Guidance = v.GetFloat64("music.guidance")
	}
	if v.IsSet("music.scale") {
		m.Scale = v.GetString("music.scale")
	}
	return m
}
