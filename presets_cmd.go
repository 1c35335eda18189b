package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/promptdj/internal/presets"
	"github.com/dgnsrekt/promptdj/internal/session"
)

var presetsCmd = &cobra.Command{
	Use:     "presets",
	Short:   "Show the effective prompt list",
	Long:    paragraph(fmt.Sprintf("\n%s the prompts a session would start with, and which of them are active.", keyword("Show"))),
	Example: paragraph("promptdj presets\npromptdj presets --presets ~/jam.yml\npromptdj presets --save ~/jam.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		prompts, err := loadPresets(cfg.Presets)
		if err != nil {
			return err
		}
		if err := savePresets(savePath, prompts); err != nil {
			return err
		}
		return printPresets(os.Stdout, prompts)
	},
}

var savePath string

func init() {
	presetsCmd.Flags().StringVar(&savePath, "save", "", "write the effective prompt list to this file")
}

// savePresets exports prompts so they can be edited and passed back with
// --presets. An empty path does nothing.
func savePresets(path string, prompts []presets.Preset) error {
	if path == "" {
		return nil
	}
	if err := presets.Save(path, prompts); err != nil {
		return fmt.Errorf("unable to save presets: %w", err)
	}
	log.Info("Saved presets", "path", path, "prompts", len(prompts))
	return nil
}

func printPresets(w io.Writer, prompts []presets.Preset) error {
	active := make(map[string]bool)
	for _, p := range session.ActivePrompts(presets.Snapshot(prompts), nil) {
		active[p.Text] = true
	}

	for _, p := range prompts {
		mark := " "
		if active[p.Text] {
			mark = "●"
		}
		name := p.Text
		if p.Color != "" {
			name = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).Render(name)
		}
		if _, err := fmt.Fprintf(w, "%s %-12s %3.1f  %s\n", mark, p.ID, p.Weight, name); err != nil {
			return fmt.Errorf("unable to write to writer: %w", err)
		}
	}
	return nil
}
