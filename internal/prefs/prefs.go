// Package prefs is the preference surface: provider selection, calendar
// selection, visibility policies, refresh cadence and the persisted
// dismissed-event list, all backed by a viper config file.
package prefs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/leits/MeetingBar-sub001/internal/core"
)

const defaultRefreshInterval = 5 * time.Minute

// Prefs wraps a viper instance plus the config file path used for
// rewrites. Reads go through viper; the few keys the app itself mutates
// (selected calendars, provider, dismissals) are written back to the file
// so they survive restarts.
type Prefs struct {
	v      *viper.Viper
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	watchers []func()
}

func New(v *viper.Viper, path string, logger *slog.Logger) *Prefs {
	setDefaults(v)
	return &Prefs{v: v, path: path, logger: logger}
}

// Load reads (or creates defaults over) the config file at path.
func Load(path string, logger *slog.Logger) (*Prefs, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MEETINGBAR")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return &Prefs{v: v, path: path, logger: logger}, nil
}

// DefaultPath is ~/.config/meetingbar/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "meetingbar", "config.yaml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "google")
	v.SetDefault("refresh_interval", defaultRefreshInterval.String())
	v.SetDefault("lookahead", "today")
	v.SetDefault("link_required", false)
	v.SetDefault("filters.all_day", "show")
	v.SetDefault("filters.timed", "show")
	v.SetDefault("filters.pending", "show")
	v.SetDefault("filters.tentative", "show")
	v.SetDefault("filters.declined", "show_inactive")
	v.SetDefault("filters.ongoing", "show_ten_min_after")
	v.SetDefault("filters.personal", "show")
}

// Watch registers fn to run whenever the preferences change, either
// because the config file was edited (see WatchFile) or because a setter
// below ran.
func (p *Prefs) Watch(fn func()) {
	p.mu.Lock()
	p.watchers = append(p.watchers, fn)
	p.mu.Unlock()
}

// WatchFile starts watching the config file for external edits. Edits
// made through the setters fire the watchers directly and do not depend
// on it.
func (p *Prefs) WatchFile() {
	if p.path == "" {
		return
	}
	p.v.OnConfigChange(func(fsnotify.Event) { p.notify() })
	p.v.WatchConfig()
}

func (p *Prefs) notify() {
	p.mu.Lock()
	watchers := make([]func(), len(p.watchers))
	copy(watchers, p.watchers)
	p.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

func (p *Prefs) Provider() string { return p.v.GetString("provider") }

// Path is the config file location, or empty when running off an
// in-memory viper.
func (p *Prefs) Path() string { return p.path }

// GoogleClient returns the OAuth client registration for the Google
// backend.
func (p *Prefs) GoogleClient() (clientID, clientSecret string) {
	return p.v.GetString("google.client_id"), p.v.GetString("google.client_secret")
}

// OutlookClient returns the Azure app registration for the Outlook
// backend. An empty tenant means the multi-tenant "common" endpoint.
func (p *Prefs) OutlookClient() (clientID, tenantID string) {
	return p.v.GetString("outlook.client_id"), p.v.GetString("outlook.tenant_id")
}

func (p *Prefs) SelectedCalendars() []string {
	return p.v.GetStringSlice("selected_calendars")
}

func (p *Prefs) RefreshInterval() time.Duration {
	raw := p.v.GetString("refresh_interval")
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.logger.Warn("invalid refresh interval, using default", "value", raw)
		return defaultRefreshInterval
	}
	return d
}

func (p *Prefs) Lookahead() core.Lookahead {
	switch p.v.GetString("lookahead") {
	case "today_and_tomorrow":
		return core.LookaheadTodayTomorrow
	default:
		return core.LookaheadToday
	}
}

// LinkRequired reports whether next-event selection only considers events
// carrying a meeting link.
func (p *Prefs) LinkRequired() bool { return p.v.GetBool("link_required") }

// Policy assembles the filter policy from the config. Unknown policy
// values fall back to their defaults; invalid exclude regexes are logged
// and skipped rather than failing the whole policy.
func (p *Prefs) Policy() core.FilterPolicy {
	var excludes []*regexp.Regexp
	for _, pattern := range p.v.GetStringSlice("title_excludes") {
		re, err := regexp.Compile(pattern)
		if err != nil {
			p.logger.Warn("skipping invalid title exclude pattern", "pattern", pattern, "error", err)
			continue
		}
		excludes = append(excludes, re)
	}

	return core.FilterPolicy{
		TitleExcludes: excludes,
		AllDay:        p.allDayPolicy(),
		Timed:         p.timedPolicy(),
		Pending:       p.responsePolicy("filters.pending"),
		Tentative:     p.responsePolicy("filters.tentative"),
		Declined:      p.declinedPolicy(),
		Ongoing:       p.ongoingPolicy(),
		Personal:      p.personalPolicy(),
		Lookahead:     p.Lookahead(),
	}
}

func (p *Prefs) allDayPolicy() core.AllDayPolicy {
	value := p.v.GetString("filters.all_day")
	switch value {
	case "show":
		return core.AllDayShow
	case "show_with_link":
		return core.AllDayShowWithLink
	case "hide":
		return core.AllDayHide
	default:
		p.warnPolicy("filters.all_day", value)
		return core.AllDayShow
	}
}

func (p *Prefs) timedPolicy() core.TimedPolicy {
	value := p.v.GetString("filters.timed")
	switch value {
	case "show":
		return core.TimedShow
	case "show_inactive_without_link":
		return core.TimedShowInactiveWithoutLink
	case "hide_without_link":
		return core.TimedHideWithoutLink
	default:
		p.warnPolicy("filters.timed", value)
		return core.TimedShow
	}
}

func (p *Prefs) responsePolicy(key string) core.ResponsePolicy {
	value := p.v.GetString(key)
	switch value {
	case "show":
		return core.ResponseShow
	case "show_inactive":
		return core.ResponseShowInactive
	case "show_underlined":
		return core.ResponseShowUnderlined
	case "hide":
		return core.ResponseHide
	default:
		p.warnPolicy(key, value)
		return core.ResponseShow
	}
}

func (p *Prefs) declinedPolicy() core.DeclinedPolicy {
	value := p.v.GetString("filters.declined")
	switch value {
	case "show_inactive":
		return core.DeclinedShowInactive
	case "strikethrough":
		return core.DeclinedStrikethrough
	case "hide":
		return core.DeclinedHide
	default:
		p.warnPolicy("filters.declined", value)
		return core.DeclinedShowInactive
	}
}

func (p *Prefs) ongoingPolicy() core.OngoingPolicy {
	value := p.v.GetString("filters.ongoing")
	switch value {
	case "hide_immediately":
		return core.OngoingHideImmediately
	case "show_ten_min_after":
		return core.OngoingShowTenMinAfter
	case "show_ten_min_before_next":
		return core.OngoingShowTenMinBeforeNext
	default:
		p.warnPolicy("filters.ongoing", value)
		return core.OngoingShowTenMinAfter
	}
}

func (p *Prefs) personalPolicy() core.PersonalPolicy {
	value := p.v.GetString("filters.personal")
	switch value {
	case "show":
		return core.PersonalShow
	case "show_inactive":
		return core.PersonalShowInactive
	case "hide":
		return core.PersonalHide
	default:
		p.warnPolicy("filters.personal", value)
		return core.PersonalShow
	}
}

func (p *Prefs) warnPolicy(key, value string) {
	if value != "" {
		p.logger.Warn("unknown policy value, using default", "key", key, "value", value)
	}
}

// Dismissed returns the persisted dismissal records.
func (p *Prefs) Dismissed() []core.Dismissal {
	var dismissals []core.Dismissal
	raw := p.v.Get("dismissed")
	if raw == nil {
		return nil
	}
	// Round-trip through yaml to avoid hand-decoding viper's nested maps.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil
	}
	if err := yaml.Unmarshal(data, &dismissals); err != nil {
		p.logger.Warn("discarding malformed dismissed list", "error", err)
		return nil
	}
	return dismissals
}

// SaveDismissed replaces the persisted dismissal records. Dismissals are
// orchestrator state, not a preference: saving them does not fire the
// watchers, so a save from inside a fetch cycle cannot re-trigger one.
func (p *Prefs) SaveDismissed(dismissals []core.Dismissal) error {
	p.v.Set("dismissed", dismissals)
	if p.path == "" {
		return nil
	}
	return p.rewriteConfig("dismissed", dismissals)
}

// SetSelectedCalendars replaces the selected-calendar id set.
func (p *Prefs) SetSelectedCalendars(ids []string) error {
	return p.set("selected_calendars", ids)
}

// SetProvider switches the active provider name.
func (p *Prefs) SetProvider(name string) error {
	return p.set("provider", name)
}

// set updates the live viper value, rewrites the config file and fires
// the watchers.
func (p *Prefs) set(key string, value interface{}) error {
	p.v.Set(key, value)
	if p.path != "" {
		if err := p.rewriteConfig(key, value); err != nil {
			return err
		}
	}
	p.notify()
	return nil
}

// rewriteConfig edits one top-level key in the config file, preserving
// everything else in it.
func (p *Prefs) rewriteConfig(key string, value interface{}) error {
	config := make(map[string]interface{})
	data, err := os.ReadFile(p.path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if config == nil {
		config = make(map[string]interface{})
	}

	config[key] = value

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, out, 0o644)
}
