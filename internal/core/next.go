package core

import "time"

const (
	// An event about to start counts as relevant one minute early
	selectionLeadTime = time.Minute
	// Window used by the ongoing-visibility policies
	ongoingGrace = 10 * time.Minute
)

// NextEvent selects the single most relevant upcoming or ongoing event.
//
// Candidates are events overlapping (now+1m, end of the lookahead window).
// The walk is in start-time order; the first acceptable candidate becomes
// the provisional pick. With OngoingShowTenMinBeforeNext the very next
// acceptable candidate can still replace it when it starts within ten
// minutes — the scan looks exactly one candidate ahead and then stops,
// matching the behavior users already rely on.
//
// linkRequired forces a meeting link even when the timed-event policy
// would allow link-less events. dismissed holds the ids of explicitly
// dismissed events; nil means none.
func NextEvent(events []Event, now time.Time, p FilterPolicy, linkRequired bool, dismissed map[string]bool) *Event {
	lower := now.Add(selectionLeadTime)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := 1
	if p.Lookahead == LookaheadTodayTomorrow {
		days = 2
	}
	upper := midnight.AddDate(0, 0, days)

	needLink := linkRequired || p.Timed == TimedHideWithoutLink

	var candidates []Event
	for _, e := range events {
		if !e.Overlaps(lower, upper) {
			continue
		}
		if p.Personal != PersonalShow && len(e.Attendees) == 0 {
			continue
		}
		candidates = append(candidates, e)
	}
	SortByStart(candidates)

	var next *Event
	for i := range candidates {
		e := &candidates[i]

		if dismissed[e.ID] {
			continue
		}
		if e.IsAllDay {
			continue
		}
		if needLink && e.MeetingLink == "" {
			continue
		}
		if e.Participation == ResponseDeclined {
			continue
		}
		if e.Participation == ResponsePending && (p.Pending == ResponseHide || p.Pending == ResponseShowInactive) {
			continue
		}
		if e.Participation == ResponseTentative && (p.Tentative == ResponseHide || p.Tentative == ResponseShowInactive) {
			continue
		}
		if e.Status == StatusCanceled {
			continue
		}

		if next == nil {
			if e.Start.Before(now) {
				switch p.Ongoing {
				case OngoingHideImmediately:
					continue
				case OngoingShowTenMinAfter:
					if now.Sub(e.Start) > ongoingGrace {
						continue
					}
				}
			}
			next = e
			continue
		}

		// An imminent next meeting pre-empts one already in progress.
		if p.Ongoing == OngoingShowTenMinBeforeNext && e.Start.Sub(now) < ongoingGrace {
			next = e
		}
		break
	}

	return next
}
