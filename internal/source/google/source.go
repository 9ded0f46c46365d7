// Package google implements the remote OAuth2 event source backed by the
// Google Calendar API.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/leits/MeetingBar-sub001/internal/auth"
	"github.com/leits/MeetingBar-sub001/internal/core"
)

const revokeURL = "https://oauth2.googleapis.com/revoke"

// Source implements core.EventSource against Google Calendar. All
// requests carry a bearer token obtained from the credential manager, so
// a stale token is refreshed (once, shared by concurrent requests) before
// any call goes out.
type Source struct {
	manager *auth.Manager
	logger  *slog.Logger

	// Overridden in tests to point the client at a fake API.
	endpoint string

	mu      sync.Mutex
	service *calendar.Service
}

func New(clientID, clientSecret string, store auth.Store, logger *slog.Logger) *Source {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     googleoauth.Endpoint,
		Scopes: []string{
			"email",
			calendar.CalendarCalendarlistReadonlyScope,
			calendar.CalendarEventsReadonlyScope,
		},
	}
	return &Source{
		manager: auth.NewManager("google", cfg, store, revokeURL, logger),
		logger:  logger,
	}
}

// Manager exposes the credential manager so callers can surface account
// identity or customize the browser launch.
func (s *Source) Manager() *auth.Manager { return s.manager }

func (s *Source) SignIn(ctx context.Context) error {
	return s.manager.SignIn(ctx)
}

func (s *Source) SignOut(ctx context.Context) {
	s.manager.SignOut(ctx)
	s.mu.Lock()
	s.service = nil
	s.mu.Unlock()
}

// RefreshSources is a no-op: the Google backend keeps no local cache.
func (s *Source) RefreshSources(ctx context.Context) {}

func (s *Source) FetchCalendars(ctx context.Context) ([]core.Calendar, error) {
	svc, err := s.ensureService(ctx)
	if err != nil {
		return nil, err
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, s.mapError(err)
	}

	calendars := make([]core.Calendar, 0, len(list.Items))
	for _, item := range list.Items {
		owner := ""
		if strings.Contains(item.Id, "@") {
			owner = item.Id
		}
		calendars = append(calendars, core.Calendar{
			ID:    item.Id,
			Title: item.Summary,
			Owner: owner,
			Color: item.BackgroundColor,
		})
	}
	return calendars, nil
}

// FetchEvents issues one query per calendar, with the range as an
// inclusive lower / exclusive upper RFC3339 bound.
func (s *Source) FetchEvents(ctx context.Context, calendars []core.Calendar, from, to time.Time) ([]core.Event, error) {
	svc, err := s.ensureService(ctx)
	if err != nil {
		return nil, err
	}

	var results []core.Event
	for _, cal := range calendars {
		events, err := s.fetchCalendarEvents(ctx, svc, cal.ID, from, to)
		if err != nil {
			return nil, err
		}
		results = append(results, events...)
	}
	return results, nil
}

func (s *Source) fetchCalendarEvents(ctx context.Context, svc *calendar.Service, calendarID string, from, to time.Time) ([]core.Event, error) {
	var results []core.Event
	pageToken := ""

	for {
		call := svc.Events.List(calendarID).
			SingleEvents(true).
			OrderBy("startTime").
			EventTypes("default").
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, s.mapError(fmt.Errorf("calendar %s: %w", calendarID, err))
		}

		for _, item := range page.Items {
			event, ok := parseEvent(item, calendarID)
			if !ok {
				// Items without a resolvable start or end are dropped,
				// never fatal.
				s.logger.Debug("skipping event without resolvable times", "calendar", calendarID, "event", item.Id)
				continue
			}
			results = append(results, event)
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return results, nil
}

// ensureService makes sure a session exists (prompting sign-in only when
// there never was one) and returns the API client.
func (s *Source) ensureService(ctx context.Context) (*calendar.Service, error) {
	if !s.manager.SignedIn() {
		if err := s.manager.SignIn(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service != nil {
		return s.service, nil
	}

	client := &http.Client{Transport: &bearerTransport{manager: s.manager}}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, &core.SourceError{Err: fmt.Errorf("create calendar service: %w", err)}
	}
	s.service = svc
	return svc, nil
}

// mapError translates API failures into the shared taxonomy. A 401 or 403
// means the credential is no longer honored: it is wiped immediately so
// the next fetch re-enters the sign-in path.
func (s *Source) mapError(err error) error {
	var authErr *core.AuthError
	if errors.As(err, &authErr) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			s.manager.Invalidate()
			return &core.AuthError{Reason: core.AuthNotSignedIn, Err: err}
		}
		return &core.SourceError{StatusCode: apiErr.Code, Err: err}
	}

	return &core.SourceError{Err: err}
}

// bearerTransport injects the access token into every API request.
type bearerTransport struct {
	manager *auth.Manager
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.manager.Token(req.Context())
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+tok)
	return http.DefaultTransport.RoundTrip(clone)
}
