package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the fetch loop in the foreground",
	Long: `Run the fetch loop in the foreground, logging each cycle.

Cycles run on the configured refresh interval and whenever the config
file changes. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appPrefs.WatchFile()
	logger.Info("watching",
		"provider", appPrefs.Provider(),
		"calendars", len(appPrefs.SelectedCalendars()),
		"interval", appPrefs.RefreshInterval())

	orch.Run(ctx)
	logger.Info("stopped")
	return nil
}
