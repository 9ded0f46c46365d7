package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next meeting you should care about",
	Long: `Show the next relevant meeting: the soonest upcoming event that
survives your filters, is not dismissed, and (if configured) carries a
meeting link. An ongoing meeting may still count depending on the
ongoing-events preference.`,
	RunE: runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)
}

func runNext(cmd *cobra.Command, args []string) error {
	if err := orch.RunOnce(cmd.Context()); err != nil {
		return describeFetchError(err)
	}

	event := orch.NextEvent()
	if event == nil {
		fmt.Println("No upcoming meetings. Enjoy the quiet.")
		return nil
	}

	now := time.Now()
	fmt.Println(separator)
	fmt.Println("  NEXT MEETING")
	fmt.Println(separator)
	fmt.Println()
	if event.InProgress(now) {
		fmt.Printf("  🟢 IN PROGRESS - %s remaining\n", formatDurationCompact(event.End.Sub(now)))
	} else {
		fmt.Printf("  ⏳ STARTS IN: %s\n", formatCountdown(event.Start.Sub(now)))
	}

	printEvent(*event, false, false)

	fmt.Println()
	fmt.Println(separator)
	return nil
}
