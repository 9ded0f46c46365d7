package outlook

import (
	"strings"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/leits/MeetingBar-sub001/internal/core"
)

// Graph returns local times without an offset; the Prefer header pins the
// zone to UTC so these layouts are enough.
var graphTimeLayouts = []string{
	"2006-01-02T15:04:05.0000000",
	"2006-01-02T15:04:05",
}

// parseGraphEvent converts a Graph SDK event into the unified model.
// selfEmail identifies the signed-in account among the attendees. ok is
// false when the item has no resolvable start or end.
func parseGraphEvent(item models.Eventable, calendarID, selfEmail string) (core.Event, bool) {
	start := parseGraphTime(item.GetStart())
	end := parseGraphTime(item.GetEnd())
	if start.IsZero() || end.IsZero() {
		return core.Event{}, false
	}

	var lastModified time.Time
	if lm := item.GetLastModifiedDateTime(); lm != nil {
		lastModified = *lm
	}

	organizer := ""
	if org := item.GetOrganizer(); org != nil {
		if addr := org.GetEmailAddress(); addr != nil {
			organizer = derefStr(addr.GetAddress())
		}
	}

	meetingLink := ""
	if om := item.GetOnlineMeeting(); om != nil {
		meetingLink = derefStr(om.GetJoinUrl())
	}

	notes := ""
	if body := item.GetBody(); body != nil {
		notes = derefStr(body.GetContent())
	}

	location := ""
	if loc := item.GetLocation(); loc != nil {
		location = derefStr(loc.GetDisplayName())
	}

	return core.Event{
		ID:            derefStr(item.GetId()),
		CalendarID:    calendarID,
		Title:         derefStr(item.GetSubject()),
		Status:        parseGraphStatus(item),
		Start:         start,
		End:           end,
		IsAllDay:      derefBool(item.GetIsAllDay()),
		IsRecurring:   item.GetSeriesMasterId() != nil,
		LastModified:  lastModified,
		Notes:         notes,
		Location:      location,
		MeetingLink:   meetingLink,
		Organizer:     organizer,
		Attendees:     parseGraphAttendees(item.GetAttendees(), selfEmail),
		Participation: parseGraphResponse(item.GetResponseStatus()),
	}, true
}

func parseGraphTime(dt models.DateTimeTimeZoneable) time.Time {
	if dt == nil {
		return time.Time{}
	}
	str := dt.GetDateTime()
	if str == nil {
		return time.Time{}
	}
	for _, layout := range graphTimeLayouts {
		if t, err := time.Parse(layout, *str); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseGraphStatus maps cancellation and the showAs hint onto the event
// status; Outlook has no direct confirmed/tentative field.
func parseGraphStatus(item models.Eventable) core.EventStatus {
	if derefBool(item.GetIsCancelled()) {
		return core.StatusCanceled
	}
	if showAs := item.GetShowAs(); showAs != nil && *showAs == models.TENTATIVE_FREEBUSYSTATUS {
		return core.StatusTentative
	}
	return core.StatusConfirmed
}

func parseGraphResponse(rs models.ResponseStatusable) core.ResponseStatus {
	if rs == nil {
		return core.ResponseUnknown
	}
	resp := rs.GetResponse()
	if resp == nil {
		return core.ResponseUnknown
	}
	switch *resp {
	case models.ACCEPTED_RESPONSETYPE, models.ORGANIZER_RESPONSETYPE:
		return core.ResponseAccepted
	case models.DECLINED_RESPONSETYPE:
		return core.ResponseDeclined
	case models.TENTATIVELYACCEPTED_RESPONSETYPE:
		return core.ResponseTentative
	case models.NOTRESPONDED_RESPONSETYPE:
		return core.ResponsePending
	default:
		return core.ResponseUnknown
	}
}

func parseGraphAttendees(items []models.Attendeeable, selfEmail string) []core.Attendee {
	var attendees []core.Attendee
	for _, a := range items {
		var name, email string
		if addr := a.GetEmailAddress(); addr != nil {
			name = derefStr(addr.GetName())
			email = derefStr(addr.GetAddress())
		}
		optional := false
		if t := a.GetTypeEscaped(); t != nil && *t == models.OPTIONAL_ATTENDEETYPE {
			optional = true
		}
		var response core.ResponseStatus = core.ResponseUnknown
		if st := a.GetStatus(); st != nil {
			response = parseGraphResponse(st)
		}
		attendees = append(attendees, core.Attendee{
			Name:          name,
			Email:         email,
			IsCurrentUser: selfEmail != "" && strings.EqualFold(email, selfEmail),
			IsOptional:    optional,
			Response:      response,
		})
	}
	return attendees
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}
