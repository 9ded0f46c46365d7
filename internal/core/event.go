package core

import (
	"sort"
	"time"
)

// EventStatus is the event's own status as reported by the provider,
// distinct from the current user's response (ResponseStatus).
type EventStatus int

const (
	StatusUnknown EventStatus = iota
	StatusConfirmed
	StatusTentative
	StatusCanceled
)

// ResponseStatus represents an attendee's response to an invitation.
type ResponseStatus int

const (
	ResponseUnknown ResponseStatus = iota
	ResponseAccepted
	ResponseDeclined
	ResponseTentative
	// Invitation received, no answer yet
	ResponsePending
)

// Calendar represents a single calendar within a provider.
// ID is unique within that provider only.
type Calendar struct {
	ID    string
	Title string
	// Owner identity (usually an email), empty for subscribed calendars
	Owner string
	// Provider color hint, e.g. "#9fe1e7"
	Color string
}

// Attendee is one entry of an event's attendee list, in provider order.
type Attendee struct {
	Name          string
	Email         string
	IsCurrentUser bool
	IsOptional    bool
	Response      ResponseStatus
}

// Event is the unified event model. All backends (Google, Outlook, the
// on-device store) convert their data to this format. Events are value
// objects: refetched wholesale each cycle, never mutated in place.
type Event struct {
	// Unique within its calendar; not guaranteed globally unique
	ID           string
	CalendarID   string
	Title        string
	Status       EventStatus
	Start        time.Time
	End          time.Time
	IsAllDay     bool
	IsRecurring  bool
	LastModified time.Time
	// Details
	Notes       string
	Location    string
	MeetingLink string
	Organizer   string
	Attendees   []Attendee
	// The current user's response, derived at parse time from the
	// matching attendee entry (or the provider-level equivalent).
	Participation ResponseStatus
}

// InProgress checks if the event is happening right now.
func (e Event) InProgress(now time.Time) bool {
	return now.After(e.Start) && now.Before(e.End)
}

// Overlaps reports whether the event intersects the half-open window
// [from, to).
func (e Event) Overlaps(from, to time.Time) bool {
	return e.End.After(from) && e.Start.Before(to)
}

// Snapshot is the orchestrator's published state: the provider's calendars
// and the filtered, start-time-sorted events of the selected ones. It is
// replaced atomically on every successful fetch cycle.
type Snapshot struct {
	Calendars []Calendar
	Events    []Event
	// Completion time of the fetch cycle that produced this snapshot
	FetchedAt time.Time
}

// Dismissal records a user-dismissed upcoming event. It is revalidated
// against the live event's end time on every fetch cycle and dropped once
// that end time has passed.
type Dismissal struct {
	EventID string    `yaml:"event_id"`
	End     time.Time `yaml:"end"`
}

// SortByStart sorts events ascending by start time, in place. The sort is
// stable so same-start events keep their fetch order.
func SortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
