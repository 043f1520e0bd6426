// Package session implements the client's session state machine: the
// central authority for who the current user is and whether they are
// authenticated.
package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/internal/domain/session"
	"github.com/prodonik/tierlist-client/internal/domain/user"
	"github.com/prodonik/tierlist-client/internal/httpx"
	"github.com/prodonik/tierlist-client/internal/oauth"
	"github.com/prodonik/tierlist-client/internal/storage"
	"github.com/prodonik/tierlist-client/pkg/errors"
	"github.com/prodonik/tierlist-client/pkg/logger"
)

// GoogleSignIn is the OAuth entry point the store depends on. Satisfied
// by *oauth.Flow.
type GoogleSignIn interface {
	SignIn(ctx context.Context) (*oauth.ExchangeResult, error)
}

// Store owns the session lifecycle. Session-affecting operations are
// serialized on an operation mutex: the IsLoading window of one
// operation never overlaps another, so callers observe one mutation at
// a time.
type Store struct {
	cfg    *config.Config
	creds  storage.Store
	http   *httpx.Client
	google GoogleSignIn
	log    logger.Logger

	opMu sync.Mutex

	mu   sync.RWMutex
	sess session.Session
}

// New creates a session store. google may be nil when third-party
// sign-in is not configured.
func New(cfg *config.Config, creds storage.Store, httpClient *httpx.Client, google GoogleSignIn, log logger.Logger) *Store {
	return &Store{
		cfg:    cfg,
		creds:  creds,
		http:   httpClient,
		google: google,
		log:    log.With(logger.Component("session")),
	}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.sess
	snap.User = s.sess.User.Clone()
	return snap
}

// authResponse is the flat sign-in/sign-up payload returned by the auth
// service.
type authResponse struct {
	Token    string   `json:"token"`
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (r *authResponse) user() *user.User {
	return &user.User{
		ID:       r.ID,
		Username: r.Username,
		Email:    r.Email,
		Roles:    r.Roles,
	}
}

// Login authenticates with an identifier and password. Client errors
// (bad credentials) surface immediately; only the HTTP layer's transient
// retry applies underneath.
func (s *Store) Login(ctx context.Context, identifier, password string) error {
	if identifier == "" || password == "" {
		return errors.Wrap(errors.ErrValidation, "identifier and password are required")
	}

	s.beginOp()
	var resp authResponse
	err := s.http.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		URL:    s.cfg.Auth.BaseURL + s.cfg.Auth.SignInPath,
		Body:   map[string]string{"username": identifier, "password": password},
	}, &resp)
	if err != nil {
		s.log.Warn("login failed", logger.Error(err))
		s.endOp(session.Empty(), err)
		return err
	}
	if resp.Token == "" || resp.ID == "" {
		err := errors.Wrap(errors.ErrInvalidResponse, "sign-in response missing token or user")
		s.endOp(session.Empty(), err)
		return err
	}

	u := resp.user()
	s.persistCredentials(ctx, resp.Token, u)

	s.log.Info("login succeeded", logger.UserID(u.ID))
	s.endOp(session.Session{
		Token:           resp.Token,
		User:            u,
		IsAuthenticated: true,
	}, nil)
	return nil
}

// Register creates a new account. A successful registration does NOT
// leave the client authenticated: the fresh session is invalidated
// immediately so the user signs in explicitly, which keeps any
// server-side post-registration gate (such as email verification) in
// the path. The returned bool is the distinct "registered" signal.
func (s *Store) Register(ctx context.Context, username, email, password string) (bool, error) {
	if username == "" || email == "" || password == "" {
		return false, errors.Wrap(errors.ErrValidation, "username, email and password are required")
	}

	s.beginOp()
	var resp authResponse
	err := s.http.Do(ctx, httpx.Request{
		Method:      http.MethodPost,
		URL:         s.cfg.Auth.BaseURL + s.cfg.Auth.SignUpPath,
		Body:        map[string]string{"username": username, "email": email, "password": password},
		Timeout:     s.cfg.HTTP.RegisterTimeout,
		MaxAttempts: s.cfg.HTTP.RegisterMaxAttempts,
	}, &resp)
	if err != nil {
		s.log.Warn("registration failed", logger.Error(err))
		s.endOp(session.Empty(), err)
		return false, err
	}

	// Discard the returned token: registration success and an
	// authenticated session are separate outcomes.
	s.clearCredentials(ctx)

	s.log.Info("registration succeeded", logger.UserID(resp.ID))
	s.endOp(session.Empty(), nil)
	return true, nil
}

// Logout clears the credential store and resets the session. Safe to
// call with no session present.
func (s *Store) Logout(ctx context.Context) error {
	s.beginOp()
	s.clearCredentials(ctx)
	s.endOp(session.Empty(), nil)
	return nil
}

// LoadStoredAuth rehydrates the session from the credential store at
// process start. Corrupted or half-written records are purged and
// treated as absent, never surfaced as an error.
func (s *Store) LoadStoredAuth(ctx context.Context) error {
	s.beginOp()

	token, tokenErr := s.creds.GetItem(ctx, storage.KeyToken)
	userJSON, userErr := s.creds.GetItem(ctx, storage.KeyUser)

	if tokenErr != nil || userErr != nil || token == "" {
		// Either entry missing means the record is not intact; clear
		// the orphan so the store returns to both-or-neither.
		s.clearCredentials(ctx)
		s.endOp(session.Empty(), nil)
		return nil
	}

	u, err := user.Parse(userJSON)
	if err != nil {
		s.log.Warn("stored user record corrupted, purging", logger.Error(err))
		s.clearCredentials(ctx)
		s.endOp(session.Empty(), nil)
		return nil
	}

	s.log.Info("session restored from storage", logger.UserID(u.ID))
	s.endOp(session.Session{
		Token:           token,
		User:            u,
		IsAuthenticated: true,
		IsNewUser:       !u.HasCompletedOnboarding,
	}, nil)
	return nil
}

// Status is the outcome of a CheckStatus validation.
type Status struct {
	IsAuthenticated bool
	User            *user.User
}

// CheckStatus validates the stored token against the who-am-I endpoint.
// Token validity and profile freshness fail independently: a positively
// invalid token logs the user out, while a transient profile-fetch
// failure falls back to the cached profile instead of discarding the
// session.
func (s *Store) CheckStatus(ctx context.Context) (Status, error) {
	s.beginOp()

	token, err := s.creds.GetItem(ctx, storage.KeyToken)
	if err != nil || token == "" {
		s.clearCredentials(ctx)
		s.endOp(session.Empty(), nil)
		return Status{}, nil
	}

	// The status probe runs on the startup path; it gets the short
	// health-check timeout rather than the ordinary request ceiling.
	var fresh user.User
	err = s.http.Do(ctx, httpx.Request{
		Method:        http.MethodGet,
		URL:           s.cfg.Auth.BaseURL + s.cfg.Auth.MePath,
		Timeout:       s.cfg.HTTP.HealthTimeout,
		Authenticated: true,
	}, &fresh)

	switch {
	case err == nil:
		// Token valid, profile fresh: merge and persist.
		merged := s.cachedUser(ctx)
		if merged == nil {
			merged = &user.User{}
		}
		merged.Merge(&fresh)
		s.persistCredentials(ctx, token, merged)
		s.endOp(session.Session{
			Token:           token,
			User:            merged,
			IsAuthenticated: true,
			IsNewUser:       !merged.HasCompletedOnboarding,
		}, nil)
		return Status{IsAuthenticated: true, User: merged.Clone()}, nil

	case errors.Is(err, errors.ErrInvalidCredentials):
		// Positive discovery of an invalid token: the only case that
		// forces logout.
		s.log.Info("stored token rejected, clearing session")
		s.clearCredentials(ctx)
		s.endOp(session.Empty(), nil)
		return Status{}, nil

	default:
		// Transient failure: keep the session on the cached profile
		// rather than logging the user out over a failed refresh.
		cached := s.cachedUser(ctx)
		if cached == nil {
			s.clearCredentials(ctx)
			s.endOp(session.Empty(), nil)
			return Status{}, nil
		}
		s.log.Warn("profile refresh failed, using cached profile", logger.Error(err))
		s.endOp(session.Session{
			Token:           token,
			User:            cached,
			IsAuthenticated: true,
			IsNewUser:       !cached.HasCompletedOnboarding,
		}, nil)
		return Status{IsAuthenticated: true, User: cached.Clone()}, nil
	}
}

// LoginWithGoogle runs the third-party authorization-code flow and
// finalizes it into an authenticated session. A user cancellation is a
// clean terminal state, not an authentication failure. The browser
// hand-off happens outside the operation window so other session
// operations (logout included) stay available while the user sits at
// the consent screen; only the finalize step serializes.
func (s *Store) LoginWithGoogle(ctx context.Context) error {
	if s.google == nil {
		return errors.Wrap(errors.ErrOAuthFailed, "google sign-in not configured")
	}

	result, err := s.google.SignIn(ctx)
	if err != nil {
		if !errors.Is(err, errors.ErrOAuthCancelled) {
			s.setError(err)
		}
		return err
	}
	_, err = s.SetUser(ctx, result.Token, result.User)
	return err
}

// SetUser installs an externally obtained token/user pair (the OAuth
// finalize step) and persists it.
func (s *Store) SetUser(ctx context.Context, token string, u *user.User) (bool, error) {
	if token == "" || u == nil {
		return false, errors.Wrap(errors.ErrValidation, "token and user are required")
	}

	s.beginOp()
	s.persistCredentials(ctx, token, u)
	s.endOp(session.Session{
		Token:           token,
		User:            u.Clone(),
		IsAuthenticated: true,
		IsNewUser:       !u.HasCompletedOnboarding,
	}, nil)
	return true, nil
}

// SetIsNewUser flags the session as a first-run account mid-onboarding.
func (s *Store) SetIsNewUser(isNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.IsNewUser = isNew
}

// --- State transitions ---

// beginOp opens the exclusive operation window: IsLoading is true from
// here until endOp.
func (s *Store) beginOp() {
	s.opMu.Lock()
	s.mu.Lock()
	s.sess.IsLoading = true
	s.sess.LastError = ""
	s.mu.Unlock()
}

// endOp installs the resulting session and closes the operation window.
// On failure the previous authenticated session is preserved only by
// callers that pass it back in; login-style operations pass Empty.
func (s *Store) endOp(next session.Session, err error) {
	s.mu.Lock()
	next.IsLoading = false
	if err != nil {
		next.LastError = errors.Reason(err)
	}
	s.sess = next
	s.mu.Unlock()
	s.opMu.Unlock()
}

// setError records a failure reason without touching the rest of the
// session.
func (s *Store) setError(err error) {
	s.mu.Lock()
	s.sess.LastError = errors.Reason(err)
	s.mu.Unlock()
}

// --- Credential record helpers ---

// persistCredentials writes token and user together. A write failure is
// a soft warning: the in-memory session stays usable, and a half-written
// pair is rolled back to keep the store in a both-or-neither state.
func (s *Store) persistCredentials(ctx context.Context, token string, u *user.User) {
	userJSON, err := u.ToJSON()
	if err != nil {
		s.log.Warn("cannot serialize user for storage", logger.Error(err))
		return
	}

	if err := s.creds.SetItem(ctx, storage.KeyToken, token); err != nil {
		s.log.Warn("cannot persist token", logger.Error(err))
		return
	}
	if err := s.creds.SetItem(ctx, storage.KeyUser, userJSON); err != nil {
		s.log.Warn("cannot persist user, rolling back token", logger.Error(err))
		if rbErr := s.creds.RemoveItem(ctx, storage.KeyToken); rbErr != nil {
			s.log.Warn("token rollback failed", logger.Error(rbErr))
		}
	}
}

// clearCredentials removes both entries. Read-side storage failures are
// swallowed; the session is reset regardless.
func (s *Store) clearCredentials(ctx context.Context) {
	if err := s.creds.RemoveItem(ctx, storage.KeyToken); err != nil && !errors.Is(err, errors.ErrItemNotFound) {
		s.log.Warn("cannot remove stored token", logger.Error(err))
	}
	if err := s.creds.RemoveItem(ctx, storage.KeyUser); err != nil && !errors.Is(err, errors.ErrItemNotFound) {
		s.log.Warn("cannot remove stored user", logger.Error(err))
	}
}

// cachedUser loads and parses the stored profile, or nil.
func (s *Store) cachedUser(ctx context.Context) *user.User {
	userJSON, err := s.creds.GetItem(ctx, storage.KeyUser)
	if err != nil {
		return nil
	}
	u, err := user.Parse(userJSON)
	if err != nil {
		return nil
	}
	return u
}
