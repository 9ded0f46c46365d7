package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leits/MeetingBar-sub001/internal/auth"
	"github.com/leits/MeetingBar-sub001/internal/core"
	"github.com/leits/MeetingBar-sub001/internal/orchestrator"
	"github.com/leits/MeetingBar-sub001/internal/prefs"
	"github.com/leits/MeetingBar-sub001/internal/source/google"
	"github.com/leits/MeetingBar-sub001/internal/source/outlook"
	"github.com/leits/MeetingBar-sub001/internal/util"
)

const separator = "─────────────────────────────────────────────────"

var (
	cfgFile string
	verbose bool

	logger   *slog.Logger
	appPrefs *prefs.Prefs
	factory  orchestrator.Factory
	orch     *orchestrator.Orchestrator
)

var rootCmd = &cobra.Command{
	Use:   "meetingbar",
	Short: "See the meetings happening now or soon, straight from your terminal",
	Long: `meetingbar pulls events from your calendar provider (Google, Outlook,
or the on-device store) and shows the ones that matter: what is happening
now and what comes next.

Run it bare for today's filtered events, 'meetingbar next' for the one
you should care about, or 'meetingbar ui' for the interactive view.`,
	PersistentPreRunE: initApp,
	RunE:              runList,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/meetingbar/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initApp(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	path := cfgFile
	if path == "" {
		var err error
		path, err = prefs.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}

	p, err := prefs.Load(path, logger)
	if err != nil {
		return err
	}
	appPrefs = p

	// Credentials live next to the config file.
	store := auth.NewFileStore(filepath.Dir(path))
	factory = newFactory(p, store, logger)

	orch, err = orchestrator.New(p, factory, logger)
	if err != nil {
		return err
	}
	return nil
}

func newFactory(p *prefs.Prefs, store auth.Store, logger *slog.Logger) orchestrator.Factory {
	return func(provider string) (core.EventSource, error) {
		switch provider {
		case "google":
			clientID, clientSecret := p.GoogleClient()
			if clientID == "" {
				return nil, fmt.Errorf("google.client_id not configured in %s", p.Path())
			}
			return google.New(clientID, clientSecret, store, logger), nil
		case "outlook":
			clientID, tenantID := p.OutlookClient()
			if clientID == "" {
				return nil, fmt.Errorf("outlook.client_id not configured in %s", p.Path())
			}
			return outlook.New(clientID, tenantID, store, logger), nil
		case "native":
			return nil, errors.New("the on-device calendar store is not available in this build")
		default:
			return nil, fmt.Errorf("unknown provider: %s (supported: google, outlook)", provider)
		}
	}
}

func runList(cmd *cobra.Command, args []string) error {
	if err := orch.RunOnce(cmd.Context()); err != nil {
		return describeFetchError(err)
	}
	snap := orch.Snapshot()

	fmt.Printf("📅 Events for %s:\n", windowLabel())
	fmt.Println(separator)

	if len(snap.Events) == 0 {
		if len(appPrefs.SelectedCalendars()) == 0 {
			fmt.Println("No calendars selected.")
			fmt.Println("Run 'meetingbar calendars' to list them and 'meetingbar calendars select <id>...' to pick.")
		} else {
			fmt.Println("No upcoming events found.")
		}
		return nil
	}

	dismissed := orch.Dismissed()
	for _, event := range snap.Events {
		printEvent(event, dismissed[event.ID], true)
	}

	fmt.Println(separator)
	fmt.Printf("Total: %d events\n", len(snap.Events))
	return nil
}

func windowLabel() string {
	if appPrefs.Lookahead() == core.LookaheadTodayTomorrow {
		return "today and tomorrow"
	}
	return "today"
}

// printEvent renders one event block. showProgress is off when the
// caller already printed an in-progress header.
func printEvent(event core.Event, dismissed, showProgress bool) {
	fmt.Println()
	title := event.Title
	if dismissed {
		title += " (dismissed)"
	}
	fmt.Printf("  %s\n", title)
	fmt.Printf("  🕐 When:     %s\n", formatEventTime(event.Start, event.End, event.IsAllDay))

	if event.Location != "" {
		fmt.Printf("  📍 Location: %s\n", event.Location)
	}
	if event.MeetingLink != "" {
		fmt.Printf("  📹 Join:     %s\n", util.Hyperlink(event.MeetingLink, event.MeetingLink))
	}
	if event.Organizer != "" {
		fmt.Printf("  👤 By:       %s\n", event.Organizer)
	}
	if event.Participation != core.ResponseUnknown {
		fmt.Printf("  📊 Response: %s\n", formatParticipation(event.Participation))
	}
	if showProgress && event.InProgress(time.Now()) {
		remaining := time.Until(event.End)
		fmt.Printf("  🟢 IN PROGRESS (%s remaining)\n", formatDurationCompact(remaining))
	}
}

// describeFetchError turns the error taxonomy into actionable messages.
func describeFetchError(err error) error {
	var authErr *core.AuthError
	if errors.As(err, &authErr) && authErr.Reason == core.AuthNotSignedIn {
		return fmt.Errorf("not signed in to %s, run 'meetingbar auth' first", appPrefs.Provider())
	}
	var srcErr *core.SourceError
	if errors.As(err, &srcErr) && srcErr.StatusCode >= 500 {
		return fmt.Errorf("%s is having trouble (HTTP %d), try again shortly", appPrefs.Provider(), srcErr.StatusCode)
	}
	return err
}

func formatEventTime(start, end time.Time, isAllDay bool) string {
	localStart := start.Local()
	localEnd := end.Local()

	if isAllDay {
		if localStart.Day() == localEnd.Day() || end.Sub(start) <= 24*time.Hour {
			return localStart.Format("Mon, Jan 2") + " (all day)"
		}
		return fmt.Sprintf("%s - %s (all day)", localStart.Format("Mon, Jan 2"), localEnd.Add(-24*time.Hour).Format("Mon, Jan 2"))
	}

	if localStart.Day() == localEnd.Day() {
		return fmt.Sprintf("%s, %s - %s", localStart.Format("Mon, Jan 2"), localStart.Format("3:04 PM"), localEnd.Format("3:04 PM"))
	}
	return fmt.Sprintf("%s - %s", localStart.Format("Mon, Jan 2 3:04 PM"), localEnd.Format("Mon, Jan 2 3:04 PM"))
}

func formatParticipation(r core.ResponseStatus) string {
	switch r {
	case core.ResponseAccepted:
		return "Accepted ✓"
	case core.ResponseDeclined:
		return "Declined ✗"
	case core.ResponseTentative:
		return "Tentative ?"
	case core.ResponsePending:
		return "Awaiting response"
	default:
		return "Unknown"
	}
}

func formatDurationCompact(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		if hours > 0 {
			return fmt.Sprintf("%dd %dh", days, hours)
		}
		return fmt.Sprintf("%dd", days)
	}
	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}

func formatCountdown(d time.Duration) string {
	if d < 0 {
		return "NOW"
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}

	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, ", ")
}
