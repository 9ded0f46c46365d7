package core

import "fmt"

// AuthReason classifies credential-layer failures.
type AuthReason int

const (
	// No usable credential; the user has to sign in
	AuthNotSignedIn AuthReason = iota
	// A token refresh was attempted and rejected by the provider
	AuthRefreshFailed
	// The user cancelled the authorization flow
	AuthCancelled
)

func (r AuthReason) String() string {
	switch r {
	case AuthNotSignedIn:
		return "not signed in"
	case AuthRefreshFailed:
		return "refresh failed"
	case AuthCancelled:
		return "cancelled by user"
	default:
		return "unknown"
	}
}

// AuthError is returned by sign-in and by any fetch that could not
// establish a valid session.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// SourceError is a non-auth backend failure. StatusCode carries the HTTP
// status when the backend answered with an error code, and is zero for a
// malformed response.
type SourceError struct {
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source: http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source: malformed response: %v", e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
