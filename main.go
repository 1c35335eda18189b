// Package main provides the entry point for the promptdj CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/promptdj/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	noTUI      bool

	// cfg is the validated configuration, loaded before any command runs.
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "promptdj",
		Short: "Steer a live stream of generated music from your terminal",
		Long: paragraph(
			fmt.Sprintf("\nSteer a live stream of generated music by %s, from your terminal.", keyword("weighting text prompts")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: executePlay,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
	}

	if viper.GetBool("debug") {
		viper.Set("log.level", "debug")
	}

	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.Debug("Configuration loaded", "file", viper.ConfigFileUsed(), "command", cmd.Name())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = closeLog()
		os.Exit(1)
	}
	_ = closeLog()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().String("presets", "", "presets file with the prompt list (hot reloaded)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.Flags().Duration("buffer-time", defaults.BufferTime, "audio to queue before playback starts")
	rootCmd.Flags().String("model", defaults.Model, "music generation model")
	rootCmd.Flags().String("metrics-listen", "", "serve Prometheus metrics on this address")
	rootCmd.Flags().Bool("autoplay", false, "start playing immediately")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "run without the terminal UI")

	// Config bindings
	_ = viper.BindPFlag("presets", rootCmd.PersistentFlags().Lookup("presets"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("buffer_time", rootCmd.Flags().Lookup("buffer-time"))
	_ = viper.BindPFlag("model", rootCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("metrics.listen", rootCmd.Flags().Lookup("metrics-listen"))
	_ = viper.BindPFlag("autoplay", rootCmd.Flags().Lookup("autoplay"))

	playCmd.Flags().AddFlagSet(rootCmd.Flags())
	rootCmd.AddCommand(playCmd, configCmd, presetsCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "promptdj")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "promptdj")}, dirs...)
	}

	if c := os.Getenv("PROMPTDJ_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("promptdj")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("promptdj")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "promptdj.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// shutdownTimeout bounds how long the play command waits for the session
// to wind down after an interrupt.
const shutdownTimeout = 5 * time.Second
