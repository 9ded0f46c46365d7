package core

import "regexp"

// AllDayPolicy controls visibility of all-day events.
type AllDayPolicy int

const (
	AllDayShow AllDayPolicy = iota
	AllDayShowWithLink
	AllDayHide
)

// TimedPolicy controls visibility of non-all-day events.
type TimedPolicy int

const (
	TimedShow TimedPolicy = iota
	// Keep link-less events but present them inactive. Presentation
	// concern only: never a drop.
	TimedShowInactiveWithoutLink
	TimedHideWithoutLink
)

// ResponsePolicy controls visibility of events the user has not accepted.
// Pending and tentative invitations share this policy shape.
type ResponsePolicy int

const (
	ResponseShow ResponsePolicy = iota
	ResponseShowInactive
	ResponseShowUnderlined
	ResponseHide
)

// DeclinedPolicy controls visibility of declined events.
type DeclinedPolicy int

const (
	DeclinedShowInactive DeclinedPolicy = iota
	DeclinedStrikethrough
	DeclinedHide
)

// OngoingPolicy controls how long an already-started event remains the
// "next" event.
type OngoingPolicy int

const (
	// Drop an event from selection the moment it starts
	OngoingHideImmediately OngoingPolicy = iota
	// Keep an event for ten minutes after its start
	OngoingShowTenMinAfter
	// Keep the ongoing event until the following one starts within ten
	// minutes, which then pre-empts it
	OngoingShowTenMinBeforeNext
)

// PersonalPolicy controls events without attendees.
type PersonalPolicy int

const (
	PersonalShow PersonalPolicy = iota
	PersonalShowInactive
	PersonalHide
)

// Lookahead selects the forward window events are considered in.
type Lookahead int

const (
	LookaheadToday Lookahead = iota
	LookaheadTodayTomorrow
)

// FilterPolicy is an immutable snapshot of the user's visibility
// preferences, taken once per fetch cycle.
type FilterPolicy struct {
	TitleExcludes []*regexp.Regexp
	AllDay        AllDayPolicy
	Timed         TimedPolicy
	Pending       ResponsePolicy
	Tentative     ResponsePolicy
	Declined      DeclinedPolicy
	Ongoing       OngoingPolicy
	Personal      PersonalPolicy
	Lookahead     Lookahead
}

// Filtered returns the events that survive the policy's exclusion cascade,
// in input order. Each event is judged on its own fields only; the rules
// are independent and the first matching one excludes, so rule order is a
// short-circuit, not a ranking. Sorting is the caller's job.
func Filtered(events []Event, p FilterPolicy) []Event {
	kept := make([]Event, 0, len(events))
	for _, e := range events {
		if excluded(e, p) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func excluded(e Event, p FilterPolicy) bool {
	for _, re := range p.TitleExcludes {
		if re.MatchString(e.Title) {
			return true
		}
	}

	if e.IsAllDay {
		switch p.AllDay {
		case AllDayHide:
			return true
		case AllDayShowWithLink:
			if e.MeetingLink == "" {
				return true
			}
		}
	} else if p.Timed == TimedHideWithoutLink && e.MeetingLink == "" {
		return true
	}

	if e.Participation == ResponsePending && p.Pending == ResponseHide {
		return true
	}
	if e.Participation == ResponseTentative && p.Tentative == ResponseHide {
		return true
	}
	if e.Participation == ResponseDeclined && p.Declined == DeclinedHide {
		return true
	}

	return false
}
