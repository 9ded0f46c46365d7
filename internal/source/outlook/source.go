// Package outlook implements the remote OAuth2 event source backed by the
// Microsoft Graph API.
package outlook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/leits/MeetingBar-sub001/internal/auth"
	"github.com/leits/MeetingBar-sub001/internal/core"
)

const pageSize = int32(100)

// tokenCredential bridges the credential manager into the Azure SDK's
// TokenCredential interface so the Graph client authenticates through the
// same refresh path as everything else.
type tokenCredential struct {
	manager *auth.Manager
}

func (c *tokenCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok, err := c.manager.Token(ctx)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{
		Token: tok,
		// The manager already refreshes ahead of expiry; a short horizon
		// keeps the SDK asking it rather than caching stale tokens.
		ExpiresOn: time.Now().Add(time.Minute),
	}, nil
}

// Source implements core.EventSource against Microsoft Outlook / Office 365.
type Source struct {
	manager *auth.Manager
	logger  *slog.Logger

	mu     sync.Mutex
	client *msgraphsdk.GraphServiceClient
}

// New builds an Outlook source for the given Azure app registration. An
// empty tenant means the multi-tenant "common" endpoint.
func New(clientID, tenantID string, store auth.Store, logger *slog.Logger) *Source {
	if tenantID == "" {
		tenantID = "common"
	}
	cfg := &oauth2.Config{
		ClientID: clientID,
		Endpoint: microsoft.AzureADEndpoint(tenantID),
		Scopes: []string{
			"https://graph.microsoft.com/Calendars.Read",
			"https://graph.microsoft.com/User.Read",
			"offline_access",
		},
	}
	// The Microsoft identity platform has no token revocation endpoint;
	// sign-out only drops local state.
	return &Source{
		manager: auth.NewManager("outlook", cfg, store, "", logger),
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
	s.client = nil
	s.mu.Unlock()
}

// RefreshSources is a no-op: the Graph backend keeps no local cache.
func (s *Source) RefreshSources(ctx context.Context) {}

func (s *Source) FetchCalendars(ctx context.Context) ([]core.Calendar, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.Me().Calendars().Get(ctx, nil)
	if err != nil {
		return nil, s.mapError(err)
	}

	var calendars []core.Calendar
	for _, item := range result.GetValue() {
		id := item.GetId()
		if id == nil {
			continue
		}
		owner := ""
		if o := item.GetOwner(); o != nil {
			owner = derefStr(o.GetAddress())
		}
		calendars = append(calendars, core.Calendar{
			ID:    *id,
			Title: derefStr(item.GetName()),
			Owner: owner,
			Color: derefStr(item.GetHexColor()),
		})
	}
	return calendars, nil
}

func (s *Source) FetchEvents(ctx context.Context, calendars []core.Calendar, from, to time.Time) ([]core.Event, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	var results []core.Event
	for _, cal := range calendars {
		events, err := s.fetchCalendarView(ctx, client, cal.ID, from, to)
		if err != nil {
			return nil, err
		}
		results = append(results, events...)
	}
	return results, nil
}

// fetchCalendarView queries the expanded occurrence view for one calendar.
// Times are requested in UTC via the Prefer header so the response needs no
// per-item timezone handling.
func (s *Source) fetchCalendarView(ctx context.Context, client *msgraphsdk.GraphServiceClient, calendarID string, from, to time.Time) ([]core.Event, error) {
	startStr := from.UTC().Format(time.RFC3339)
	endStr := to.UTC().Format(time.RFC3339)
	selectFields := []string{
		"id", "subject", "body", "start", "end", "location", "isAllDay",
		"isCancelled", "showAs", "responseStatus", "onlineMeeting",
		"attendees", "organizer", "seriesMasterId", "lastModifiedDateTime",
	}
	orderBy := []string{"start/dateTime"}
	top := pageSize

	headers := abstractions.NewRequestHeaders()
	headers.Add("Prefer", `outlook.timezone="UTC"`)

	config := &users.ItemCalendarsItemCalendarViewRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemCalendarsItemCalendarViewRequestBuilderGetQueryParameters{
			StartDateTime: &startStr,
			EndDateTime:   &endStr,
			Select:        selectFields,
			Orderby:       orderBy,
			Top:           &top,
		},
		Headers: headers,
	}
	result, err := client.Me().Calendars().ByCalendarId(calendarID).CalendarView().Get(ctx, config)
	if err != nil {
		return nil, s.mapError(fmt.Errorf("calendar %s: %w", calendarID, err))
	}

	iterator, err := msgraphcore.NewPageIterator[models.Eventable](
		result,
		client.GetAdapter(),
		models.CreateEventCollectionResponseFromDiscriminatorValue,
	)
	if err != nil {
		return nil, &core.SourceError{Err: fmt.Errorf("page iterator: %w", err)}
	}

	self := s.manager.Email()
	var results []core.Event
	iterErr := iterator.Iterate(ctx, func(item models.Eventable) bool {
		event, ok := parseGraphEvent(item, calendarID, self)
		if !ok {
			s.logger.Debug("skipping event without resolvable times", "calendar", calendarID, "event", derefStr(item.GetId()))
			return true
		}
		results = append(results, event)
		return true
	})
	if iterErr != nil {
		return nil, s.mapError(fmt.Errorf("calendar %s: %w", calendarID, iterErr))
	}

	return results, nil
}

func (s *Source) ensureClient(ctx context.Context) (*msgraphsdk.GraphServiceClient, error) {
	if !s.manager.SignedIn() {
		if err := s.manager.SignIn(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	cred := &tokenCredential{manager: s.manager}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{
		"https://graph.microsoft.com/.default",
	})
	if err != nil {
		return nil, &core.SourceError{Err: fmt.Errorf("create graph client: %w", err)}
	}
	s.client = client
	return client, nil
}

// mapError translates Graph failures into the shared taxonomy. A 401 or 403
// wipes the credential so the next fetch re-enters the sign-in path.
func (s *Source) mapError(err error) error {
	var authErr *core.AuthError
	if errors.As(err, &authErr) {
		return err
	}

	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		code := odataErr.ResponseStatusCode
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			s.manager.Invalidate()
			return &core.AuthError{Reason: core.AuthNotSignedIn, Err: err}
		}
		return &core.SourceError{StatusCode: code, Err: err}
	}

	return &core.SourceError{Err: err}
}
