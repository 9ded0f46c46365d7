package prefs

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/leits/MeetingBar-sub001/internal/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memPrefs() *Prefs {
	return New(viper.New(), "", discardLogger())
}

func filePrefs(t *testing.T, contents string) *Prefs {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if contents != "" {
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	p, err := Load(path, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	p := memPrefs()

	if got := p.Provider(); got != "google" {
		t.Errorf("Provider = %q", got)
	}
	if got := p.RefreshInterval(); got != defaultRefreshInterval {
		t.Errorf("RefreshInterval = %v", got)
	}
	if got := p.Lookahead(); got != core.LookaheadToday {
		t.Errorf("Lookahead = %v", got)
	}
	if p.LinkRequired() {
		t.Error("LinkRequired default should be false")
	}

	policy := p.Policy()
	if policy.AllDay != core.AllDayShow || policy.Ongoing != core.OngoingShowTenMinAfter {
		t.Errorf("default policy = %+v", policy)
	}
	if policy.Declined != core.DeclinedShowInactive {
		t.Errorf("default declined policy = %v", policy.Declined)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := filePrefs(t, `
lookahead: today_and_tomorrow
title_excludes:
  - "(?i)standup"
  - "([unclosed"
filters:
  all_day: hide
  timed: hide_without_link
  pending: show_inactive
  tentative: hide
  declined: hide
  ongoing: show_ten_min_before_next
  personal: hide
`)

	policy := p.Policy()
	if policy.AllDay != core.AllDayHide {
		t.Errorf("AllDay = %v", policy.AllDay)
	}
	if policy.Timed != core.TimedHideWithoutLink {
		t.Errorf("Timed = %v", policy.Timed)
	}
	if policy.Pending != core.ResponseShowInactive || policy.Tentative != core.ResponseHide {
		t.Errorf("Pending = %v, Tentative = %v", policy.Pending, policy.Tentative)
	}
	if policy.Declined != core.DeclinedHide {
		t.Errorf("Declined = %v", policy.Declined)
	}
	if policy.Ongoing != core.OngoingShowTenMinBeforeNext {
		t.Errorf("Ongoing = %v", policy.Ongoing)
	}
	if policy.Personal != core.PersonalHide {
		t.Errorf("Personal = %v", policy.Personal)
	}
	if policy.Lookahead != core.LookaheadTodayTomorrow {
		t.Errorf("Lookahead = %v", policy.Lookahead)
	}

	// The broken pattern is skipped, the valid one survives.
	if len(policy.TitleExcludes) != 1 {
		t.Fatalf("got %d exclude patterns, want 1", len(policy.TitleExcludes))
	}
	if !policy.TitleExcludes[0].MatchString("Daily Standup") {
		t.Error("surviving pattern does not match")
	}
}

func TestUnknownPolicyValueFallsBack(t *testing.T) {
	p := filePrefs(t, "filters:\n  ongoing: whenever\n")
	if got := p.Policy().Ongoing; got != core.OngoingShowTenMinAfter {
		t.Errorf("Ongoing = %v, want the default", got)
	}
}

func TestInvalidRefreshIntervalFallsBack(t *testing.T) {
	p := filePrefs(t, "refresh_interval: often\n")
	if got := p.RefreshInterval(); got != defaultRefreshInterval {
		t.Errorf("RefreshInterval = %v, want default", got)
	}
}

func TestSetSelectedCalendarsPersistsAndNotifies(t *testing.T) {
	p := filePrefs(t, "provider: outlook\n")

	notified := 0
	p.Watch(func() { notified++ })

	if err := p.SetSelectedCalendars([]string{"work", "team"}); err != nil {
		t.Fatal(err)
	}

	if got := p.SelectedCalendars(); len(got) != 2 || got[0] != "work" {
		t.Errorf("SelectedCalendars = %v", got)
	}
	if notified != 1 {
		t.Errorf("watcher fired %d times, want 1", notified)
	}

	// The rewrite keeps unrelated keys.
	data, err := os.ReadFile(p.path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]interface{}
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk["provider"] != "outlook" {
		t.Errorf("provider on disk = %v, rewrite clobbered it", onDisk["provider"])
	}
	if _, ok := onDisk["selected_calendars"]; !ok {
		t.Error("selected_calendars missing from rewritten config")
	}

	// A fresh load sees the new selection.
	reloaded, err := Load(p.path, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.SelectedCalendars(); len(got) != 2 {
		t.Errorf("reloaded SelectedCalendars = %v", got)
	}
}

func TestDismissedRoundTrip(t *testing.T) {
	p := filePrefs(t, "")

	end := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	in := []core.Dismissal{{EventID: "evt-1", End: end}}
	if err := p.SaveDismissed(in); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(p.path, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	out := reloaded.Dismissed()
	if len(out) != 1 || out[0].EventID != "evt-1" {
		t.Fatalf("Dismissed = %v", out)
	}
	if !out[0].End.Equal(end) {
		t.Errorf("End = %v, want %v", out[0].End, end)
	}
}

func TestSetProvider(t *testing.T) {
	p := filePrefs(t, "")
	if err := p.SetProvider("native"); err != nil {
		t.Fatal(err)
	}
	if got := p.Provider(); got != "native" {
		t.Errorf("Provider = %q", got)
	}
}
