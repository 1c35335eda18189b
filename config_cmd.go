package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# music generation model
model: "lyria-realtime-exp"
# API version of the websocket endpoint
api_version: "v1alpha"

# audio queued ahead of the output clock before playback starts
buffer_time: "2s"
# volume fade when pausing and resuming
fade_time: "100ms"
# prompt updates are sent at most this often
prompt_throttle: "200ms"
# give up connecting after this long
connect_timeout: "30s"

# output format (44100 or 48000 Hz, 1 or 2 channels)
sample_rate: 48000
channels: 2

# trade the API key for a single-use token on every connect
ephemeral_tokens: false
token_ttl: "30m"

# presets file with the prompt list (hot reloaded)
# presets: "~/promptdj/presets.yml"

# start playing as soon as the UI opens
autoplay: false

metrics:
  # serve Prometheus metrics, e.g. ":9090"
  listen: ""

log:
  # debug, info, warn or error
  level: "info"

# generation parameters, unset values are left to the service
music:
  # bpm: 120
  # density: 0.5
  # brightness: 0.5
  # temperature: 1.1
  # guidance: 4.0
  # scale: "C_MAJOR_A_MINOR"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the promptdj config file",
	Long:    paragraph(fmt.Sprintf("\n%s the promptdj config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("promptdj config\npromptdj config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("promptdj", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
