// Package presets loads prompt sets from YAML files and reloads them when
// the file changes on disk.
package presets

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/promptdj/internal/session"
)

// MaxWeight is the largest weight a prompt may carry.
const MaxWeight = 2.0

// Preset is one prompt as written in a presets file.
type Preset struct {
	ID     string  `yaml:"id,omitempty"`
	Text   string  `yaml:"text"`
	Weight float64 `yaml:"weight"`
	CC     int     `yaml:"cc,omitempty"`
	Color  string  `yaml:"color,omitempty"`
}

// File is the on-disk layout of a presets file.
type File struct {
	Prompts []Preset `yaml:"prompts"`
}

var defaultTexts = []string{
	"Bossa Nova", "Chillwave", "Drum and Bass", "Post Punk",
	"Shoegaze", "Funk", "Chiptune", "Lush Strings",
	"Sparkling Arpeggios", "Staccato Rhythms", "Punchy Kick", "Dubstep",
	"K Pop", "Neo Soul", "Trip Hop", "Thrash",
}

var defaultColors = []string{
	"#9900ff", "#5200ff", "#ff25f6", "#2af6de",
	"#ffdd28", "#3dffab", "#d8ff3e", "#d9b2ff",
}

// Defaults returns the built-in prompt set with three random prompts
// switched on.
func Defaults() []Preset {
	out := make([]Preset, len(defaultTexts))
	for i, text := range defaultTexts {
		out[i] = Preset{
			ID:    "prompt-" + strconv.Itoa(i),
			Text:  text,
			CC:    i,
			Color: defaultColors[i%len(defaultColors)],
		}
	}
	for _, i := range rand.Perm(len(out))[:3] {
		out[i].Weight = 1
	}
	return out
}

// Load reads and validates a presets file.
func Load(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates presets YAML. Missing IDs are derived from
// the prompt's position.
func Parse(data []byte) ([]Preset, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if len(f.Prompts) == 0 {
		return nil, errors.New("presets file has no prompts")
	}

	seen := make(map[string]bool, len(f.Prompts))
	var errs []error
	for i := range f.Prompts {
		p := &f.Prompts[i]
		if p.ID == "" {
			p.ID = "prompt-" + strconv.Itoa(i)
		}
		if p.Text == "" {
			errs = append(errs, fmt.Errorf("prompt %q: text is required", p.ID))
		}
		if p.Weight < 0 || p.Weight > MaxWeight {
			errs = append(errs, fmt.Errorf("prompt %q: weight must be between 0 and %.0f, got %v", p.ID, MaxWeight, p.Weight))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("prompt %q: duplicate id", p.ID))
		}
		seen[p.ID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Prompts, nil
}

// Save writes presets to path.
func Save(path string, presets []Preset) error {
	data, err := yaml.Marshal(File{Prompts: presets})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Snapshot converts presets to the form the session manager takes.
func Snapshot(presets []Preset) session.Snapshot {
	s := make(session.Snapshot, len(presets))
	for _, p := range presets {
		s[p.ID] = session.Prompt{
			ID:     p.ID,
			Text:   p.Text,
			Weight: p.Weight,
			CC:     p.CC,
			Color:  p.Color,
		}
	}
	return s
}
