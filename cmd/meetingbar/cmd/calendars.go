package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var calendarsCmd = &cobra.Command{
	Use:     "calendars",
	Aliases: []string{"cal", "cals"},
	Short:   "List calendars and the current selection",
	Long:    `List all calendars of the configured provider. Selected calendars, the ones events are fetched from, are marked with ●.`,
	RunE:    runCalendars,
}

var calendarsSelectCmd = &cobra.Command{
	Use:   "select <calendar-id>...",
	Short: "Choose the calendars to watch",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCalendarsSelect,
}

func init() {
	calendarsCmd.AddCommand(calendarsSelectCmd)
	rootCmd.AddCommand(calendarsCmd)
}

func runCalendars(cmd *cobra.Command, args []string) error {
	if err := orch.RunOnce(cmd.Context()); err != nil {
		return describeFetchError(err)
	}
	snap := orch.Snapshot()

	selected := make(map[string]bool)
	for _, id := range appPrefs.SelectedCalendars() {
		selected[id] = true
	}

	fmt.Println("📅 Available calendars:")
	fmt.Println(separator)

	count := 0
	for _, cal := range snap.Calendars {
		marker := "○"
		if selected[cal.ID] {
			marker = "●"
			count++
		}
		fmt.Printf("\n  %s %s\n", marker, cal.Title)
		fmt.Printf("    ID: %s\n", cal.ID)
		if cal.Owner != "" {
			fmt.Printf("    Owner: %s\n", cal.Owner)
		}
	}

	fmt.Println()
	fmt.Printf("Total: %d calendars, %d selected\n", len(snap.Calendars), count)
	fmt.Println("\nTip: 'meetingbar calendars select <id>...' chooses the calendars to watch")

	return nil
}

func runCalendarsSelect(cmd *cobra.Command, args []string) error {
	if err := appPrefs.SetSelectedCalendars(args); err != nil {
		return err
	}
	fmt.Printf("✅ Watching %d calendars.\n", len(args))
	return nil
}
