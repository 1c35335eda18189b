package audio

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/promptdj/internal/pcm"
)

// Device is an output that buffers can be scheduled on against a clock.
type Device interface {
	Now() float64
	Resume() error
	Connect(env *Envelope)
	Schedule(env *Envelope, buf *pcm.Buffer, at float64) error
	Flush()
	Level() float64
	Close() error
}

// Kind selects which device Open returns.
type Kind int

const (
	// KindAuto opens the system device unless running in CI or asked not
	// to, falling back to a silent output when the device fails.
	KindAuto Kind = iota
	// KindSystem always opens the system device.
	KindSystem
	// KindNull always returns a silent real-time output.
	KindNull
)

// Open returns a device for kind.
func Open(config OutputConfig, kind Kind) (Device, error) {
	switch kind {
	case KindSystem:
		return NewOutput(config)
	case KindNull:
		log.Debug("Creating silent audio output")
		return NewNullOutput(config.format(), 0), nil
	case KindAuto:
		if IsCI() {
			log.Debug("Using silent audio output", "reason", "ci or mock audio requested")
			return NewNullOutput(config.format(), 0), nil
		}
		out, err := NewOutput(config)
		if err != nil {
			log.Warn("Audio device unavailable, playing silently", "error", err)
			return NewNullOutput(config.format(), 0), nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown audio device kind: %d", kind)
	}
}

// IsCI detects if we're running in a CI environment or mock audio was
// requested.
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
	}
	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}
	return os.Getenv("MOCK_AUDIO") == "true" || os.Getenv("PROMPTDJ_MOCK_AUDIO") == "true"
}

var (
	_ Device = (*Output)(nil)
	_ Device = (*NullOutput)(nil)
	_ Device = (*FakeDevice)(nil)
)
