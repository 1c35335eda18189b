package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

var closeLog = func() error { return nil }

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "promptdj").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "promptdj.log"), nil
}

// setupLog routes logs to a file while the terminal UI owns the screen,
// and to stderr when running headless. Debug runs always get the file.
func setupLog(headless bool) error {
	var writers []io.Writer
	if headless {
		writers = append(writers, os.Stderr)
	}

	if !headless || log.GetLevel() == log.DebugLevel {
		logFile, err := getLogFilePath()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
			return err
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
		if err != nil {
			return err
		}
		closeLog = f.Close
		writers = append(writers, f)
	}

	log.SetOutput(io.MultiWriter(writers...))
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.RFC3339)
	return nil
}
