package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/leits/MeetingBar-sub001/internal/core"
)

const authFlowTimeout = 5 * time.Minute

// inflight is a shared in-progress operation. The first caller creates it
// and stores it in the manager's slot; late callers wait on done and read
// the same result. The owner clears the slot before closing done.
type inflight struct {
	done chan struct{}
	cred *Credential
	err  error
}

func (f *inflight) wait(ctx context.Context) (*Credential, error) {
	select {
	case <-f.done:
		return f.cred, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Manager owns the OAuth2 credential lifecycle for one provider:
// authorization-code sign-in through the user's browser, token refresh
// with a safety margin, best-effort revocation, and persistence through
// the credential store.
//
// Concurrent sign-in calls share a single authorization flow, and
// concurrent token requests share a single refresh. Internal state is only
// touched under mu.
type Manager struct {
	provider  string
	config    *oauth2.Config
	store     Store
	revokeURL string
	logger    *slog.Logger

	// OpenURL launches the external user agent for the authorization
	// request. Replaceable in tests.
	OpenURL func(url string) error
	// ListenAddr is the local callback listener address. Port 0 picks a
	// free one; the redirect URL is derived from the bound address.
	ListenAddr string

	now func() time.Time

	mu         sync.Mutex
	cred       *Credential
	signingIn  *inflight
	refreshing *inflight
	authCancel context.CancelFunc
}

// NewManager restores any persisted credential for the provider without a
// network call: a blob with a refresh token is enough to reconstruct the
// session, and its validity is checked on first use.
func NewManager(provider string, config *oauth2.Config, store Store, revokeURL string, logger *slog.Logger) *Manager {
	m := &Manager{
		provider:   provider,
		config:     config,
		store:      store,
		revokeURL:  revokeURL,
		logger:     logger,
		OpenURL:    openBrowser,
		ListenAddr: "127.0.0.1:8085",
		now:        time.Now,
	}

	blob, err := store.Load(provider)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("could not load stored credential", "provider", provider, "error", err)
		}
		return m
	}
	cred, err := decodeCredential(blob)
	if err != nil || cred.RefreshToken == "" {
		logger.Warn("discarding unusable stored credential", "provider", provider)
		return m
	}
	m.cred = cred
	return m
}

// SignedIn reports whether a credential exists. It says nothing about
// freshness; Token settles that.
func (m *Manager) SignedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred != nil
}

// Email returns the account identity recorded at sign-in, if any.
func (m *Manager) Email() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return ""
	}
	return m.cred.Email
}

// SignIn runs the authorization-code flow. It is idempotent when a fresh
// session already exists, and concurrent callers join the flow already in
// flight instead of opening a second browser window.
func (m *Manager) SignIn(ctx context.Context) error {
	m.mu.Lock()
	if m.cred != nil {
		fresh := m.cred.Fresh(m.now())
		m.mu.Unlock()
		if fresh {
			return nil
		}
		// A stale session refreshes instead of re-prompting the user.
		_, err := m.Token(ctx)
		return err
	}
	if fl := m.signingIn; fl != nil {
		m.mu.Unlock()
		_, err := fl.wait(ctx)
		return err
	}
	fl := &inflight{done: make(chan struct{})}
	m.signingIn = fl

	// The flow is detached from the first caller's context so a joined
	// caller is not killed by the initiator going away; sign-out cancels
	// it explicitly.
	authCtx, cancel := context.WithTimeout(context.Background(), authFlowTimeout)
	m.authCancel = cancel
	m.mu.Unlock()

	cred, err := m.authorize(authCtx)
	cancel()

	m.mu.Lock()
	if err == nil {
		m.cred = cred
		m.persistLocked()
	}
	m.signingIn = nil
	m.authCancel = nil
	fl.cred, fl.err = cred, err
	close(fl.done)
	m.mu.Unlock()

	return err
}

// Token returns a fresh access token, refreshing the credential first when
// it is stale. Concurrent callers needing a refresh share one network call
// and observe the same token or the same failure.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return "", &core.AuthError{Reason: core.AuthNotSignedIn}
	}
	if m.cred.Fresh(m.now()) {
		tok := m.cred.AccessToken
		m.mu.Unlock()
		return tok, nil
	}
	if fl := m.refreshing; fl != nil {
		m.mu.Unlock()
		cred, err := fl.wait(ctx)
		if err != nil {
			return "", err
		}
		return cred.AccessToken, nil
	}
	fl := &inflight{done: make(chan struct{})}
	m.refreshing = fl
	stale := *m.cred
	m.mu.Unlock()

	cred, err := m.refreshCredential(ctx, &stale)

	m.mu.Lock()
	if err != nil {
		// An unusable refresh token ends the session; the user has to
		// sign in again.
		m.cred = nil
		m.deleteStoredLocked()
		err = &core.AuthError{Reason: core.AuthRefreshFailed, Err: err}
	} else {
		m.cred = cred
		m.persistLocked()
	}
	m.refreshing = nil
	fl.cred, fl.err = cred, err
	close(fl.done)
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Invalidate drops the credential in response to the backend rejecting it
// (401/403). The next fetch re-enters the sign-in path.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	m.deleteStoredLocked()
}

// SignOut cancels any in-flight authorization, revokes both tokens
// concurrently (each best effort, independent of the other's outcome) and
// wipes the persisted credential. It never fails.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	if m.authCancel != nil {
		m.authCancel()
	}
	cred := m.cred
	m.cred = nil
	m.deleteStoredLocked()
	m.mu.Unlock()

	if cred == nil || m.revokeURL == "" {
		return
	}

	var wg sync.WaitGroup
	for _, tok := range []string{cred.AccessToken, cred.RefreshToken} {
		if tok == "" {
			continue
		}
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			if err := m.revoke(ctx, tok); err != nil {
				m.logger.Warn("token revocation failed", "provider", m.provider, "error", err)
			}
		}(tok)
	}
	wg.Wait()
}

func (m *Manager) persistLocked() {
	blob, err := encodeCredential(m.cred)
	if err == nil {
		err = m.store.Save(m.provider, blob)
	}
	if err != nil {
		m.logger.Warn("could not persist credential", "provider", m.provider, "error", err)
	}
}

func (m *Manager) deleteStoredLocked() {
	if err := m.store.Delete(m.provider); err != nil {
		m.logger.Warn("could not delete stored credential", "provider", m.provider, "error", err)
	}
}

func (m *Manager) refreshCredential(ctx context.Context, stale *Credential) (*Credential, error) {
	src := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: stale.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Email:        stale.Email,
	}
	// Providers may omit the refresh token on renewal; keep the old one.
	if cred.RefreshToken == "" {
		cred.RefreshToken = stale.RefreshToken
	}
	return cred, nil
}

// authorize runs the browser flow against a local callback server and
// exchanges the authorization code for a credential.
func (m *Manager) authorize(ctx context.Context) (*Credential, error) {
	ln, err := net.Listen("tcp", m.ListenAddr)
	if err != nil {
		return nil, &core.AuthError{Reason: core.AuthNotSignedIn, Err: fmt.Errorf("callback listener: %w", err)}
	}
	defer ln.Close()

	state, err := randomState()
	if err != nil {
		return nil, &core.AuthError{Reason: core.AuthNotSignedIn, Err: err}
	}

	cfg := *m.config
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/callback"

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- errors.New("authorization response state mismatch")
			return
		}
		code := q.Get("code")
		if code == "" {
			msg := q.Get("error")
			http.Error(w, "Authorization failed: "+msg, http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization failed: %s", msg)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, callbackPage)
		codeCh <- code
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(ln); err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if err := m.OpenURL(authURL); err != nil {
		m.logger.Warn("could not open browser, visit the URL manually", "url", authURL)
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, &core.AuthError{Reason: core.AuthCancelled, Err: err}
	case <-ctx.Done():
		return nil, &core.AuthError{Reason: core.AuthCancelled, Err: ctx.Err()}
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &core.AuthError{Reason: core.AuthNotSignedIn, Err: fmt.Errorf("exchange code: %w", err)}
	}

	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Email:        tokenEmail(tok),
	}, nil
}

// revoke posts the token to the provider's revocation endpoint; anything
// but HTTP 200 is a failure.
func (m *Manager) revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// tokenEmail pulls the account email from the token response when the
// provider includes one (Google does for the email scope).
func tokenEmail(tok *oauth2.Token) string {
	if email, ok := tok.Extra("email").(string); ok {
		return email
	}
	return ""
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

const callbackPage = `<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body style="font-family: -apple-system, sans-serif; text-align: center; margin-top: 20vh;">
<h1>Signed in</h1>
<p>You can close this window and return to the app.</p>
</body>
</html>
`
