package session

import (
	"github.com/prodonik/tierlist-client/internal/domain/user"
)

// State identifies where the session is in its lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
	StateError           State = "error"
)

// Session is the in-memory representation of the current authenticated
// user. Authenticated implies both Token and User are set.
type Session struct {
	Token           string
	User            *user.User
	IsAuthenticated bool

	// IsLoading is true for the whole duration of exactly one in-flight
	// session operation.
	IsLoading bool

	// LastError is the short human-readable reason for the most recent
	// failed operation, empty otherwise.
	LastError string

	// IsNewUser marks a first-run account that has not finished
	// onboarding yet.
	IsNewUser bool
}

// Empty returns the unauthenticated zero session.
func Empty() Session {
	return Session{}
}

// State derives the lifecycle state from the snapshot fields.
func (s Session) State() State {
	switch {
	case s.IsLoading:
		return StateLoading
	case s.LastError != "":
		return StateError
	case s.IsAuthenticated:
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Valid reports whether the snapshot upholds the session invariant:
// an authenticated session always carries a token and a user.
func (s Session) Valid() bool {
	if s.IsAuthenticated {
		return s.Token != "" && s.User != nil
	}
	return true
}
