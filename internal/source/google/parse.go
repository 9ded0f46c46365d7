package google

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/leits/MeetingBar-sub001/internal/core"
)

// All-day events carry date-only values in this calendar-day format
// instead of a timestamp.
const allDayFormat = "2006-01-02"

// parseEvent converts a Google Calendar event into the unified model.
// ok is false when the item has no resolvable start or end.
func parseEvent(item *calendar.Event, calendarID string) (core.Event, bool) {
	start, end, isAllDay, ok := parseTimes(item)
	if !ok {
		return core.Event{}, false
	}

	var lastModified time.Time
	if item.Updated != "" {
		lastModified, _ = time.Parse(time.RFC3339, item.Updated)
	}

	organizer := ""
	if item.Organizer != nil {
		organizer = item.Organizer.Email
	}

	attendees := parseAttendees(item.Attendees)

	return core.Event{
		ID:            item.Id,
		CalendarID:    calendarID,
		Title:         item.Summary,
		Status:        parseStatus(item.Status),
		Start:         start,
		End:           end,
		IsAllDay:      isAllDay,
		IsRecurring:   item.RecurringEventId != "",
		LastModified:  lastModified,
		Notes:         item.Description,
		Location:      item.Location,
		MeetingLink:   extractMeetingLink(item),
		Organizer:     organizer,
		Attendees:     attendees,
		Participation: participation(attendees),
	}, true
}

func parseTimes(item *calendar.Event) (start, end time.Time, isAllDay, ok bool) {
	if item.Start == nil || item.End == nil {
		return time.Time{}, time.Time{}, false, false
	}

	var startErr, endErr error
	if item.Start.DateTime != "" {
		start, startErr = time.Parse(time.RFC3339, item.Start.DateTime)
		end, endErr = time.Parse(time.RFC3339, item.End.DateTime)
	} else {
		// Date-only values mark an all-day event.
		start, startErr = time.ParseInLocation(allDayFormat, item.Start.Date, time.Local)
		end, endErr = time.ParseInLocation(allDayFormat, item.End.Date, time.Local)
		isAllDay = true
	}
	if startErr != nil || endErr != nil {
		return time.Time{}, time.Time{}, false, false
	}
	return start, end, isAllDay, true
}

func parseStatus(status string) core.EventStatus {
	switch status {
	case "confirmed":
		return core.StatusConfirmed
	case "tentative":
		return core.StatusTentative
	case "cancelled":
		return core.StatusCanceled
	default:
		return core.StatusUnknown
	}
}

func parseResponse(response string) core.ResponseStatus {
	switch response {
	case "accepted":
		return core.ResponseAccepted
	case "declined":
		return core.ResponseDeclined
	case "tentative":
		return core.ResponseTentative
	case "needsAction":
		return core.ResponsePending
	default:
		return core.ResponseUnknown
	}
}

func parseAttendees(items []*calendar.EventAttendee) []core.Attendee {
	var attendees []core.Attendee
	for _, a := range items {
		attendees = append(attendees, core.Attendee{
			Name:          a.DisplayName,
			Email:         a.Email,
			IsCurrentUser: a.Self,
			IsOptional:    a.Optional,
			Response:      parseResponse(a.ResponseStatus),
		})
	}
	return attendees
}

// participation derives the current user's response from their attendee
// entry, if present.
func participation(attendees []core.Attendee) core.ResponseStatus {
	for _, a := range attendees {
		if a.IsCurrentUser {
			return a.Response
		}
	}
	return core.ResponseUnknown
}

// extractMeetingLink scans the conference data for the first video entry
// point, falling back to the legacy hangout link.
func extractMeetingLink(item *calendar.Event) string {
	if item.ConferenceData != nil {
		for _, entry := range item.ConferenceData.EntryPoints {
			if entry.EntryPointType == "video" {
				return entry.Uri
			}
		}
	}
	return item.HangoutLink
}
