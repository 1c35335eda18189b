package ui

import (
	"github.com/dgnsrekt/promptdj/internal/presets"
)

// Config contains TUI-specific configuration.
type Config struct {
	// Prompts in display order.
	Prompts []presets.Preset

	// Level reports the output level in [0,1] for the meter. Optional.
	Level func() float64

	// Autoplay starts playback as soon as the program runs.
	Autoplay bool

	// For debugging the UI
	AltScreen    bool    `env:"PROMPTDJ_ALT_SCREEN" envDefault:"true"`
	WeightStep   float64 `env:"PROMPTDJ_WEIGHT_STEP" envDefault:"0.1"`
	RefreshEvery int     `env:"PROMPTDJ_REFRESH_MS" envDefault:"100"`
}
