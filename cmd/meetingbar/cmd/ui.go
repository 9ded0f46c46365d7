package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/leits/MeetingBar-sub001/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the interactive meeting view",
	Long: `Launch an interactive terminal view of your upcoming meetings.

The fetch loop keeps running in the background, so the view follows
preference edits, the refresh timer and manual refreshes while open.`,
	RunE: runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	appPrefs.WatchFile()
	go orch.Run(ctx)

	p := tea.NewProgram(tui.NewModel(orch), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running ui: %w", err)
	}

	return nil
}
