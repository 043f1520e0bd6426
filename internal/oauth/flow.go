// Package oauth drives the authorization-code exchange against the
// third-party identity provider and trades the resulting token for an
// application session token.
package oauth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/internal/domain/user"
	"github.com/prodonik/tierlist-client/internal/httpx"
	"github.com/prodonik/tierlist-client/pkg/errors"
	"github.com/prodonik/tierlist-client/pkg/logger"
	"github.com/prodonik/tierlist-client/pkg/pkce"
)

// Callback is what the user-agent hand-off produces: the query
// parameters of the provider's redirect back to the client.
type Callback struct {
	Code  string
	State string
}

// UserAgent hands the authorization URL to an external browser and
// suspends until the provider redirects back. Implementations return
// errors.ErrOAuthCancelled when the user abandons the flow; that is a
// non-error terminal distinct from a failure.
type UserAgent interface {
	Authorize(ctx context.Context, authURL, redirectURI string) (*Callback, error)
}

// TokenResponse is the provider's token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeResult is the application-scoped outcome of a completed flow,
// ready to hand to the session store.
type ExchangeResult struct {
	Token string
	User  *user.User
}

// appTokenResponse is the application token-exchange response: the
// session token plus a minimal user record, flat.
type appTokenResponse struct {
	Token    string   `json:"token"`
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// Flow runs the single-shot authorization-code exchange. The per-flow
// state (verifier, state, nonce) is created inside SignIn, consumed
// exactly once, and never persisted.
type Flow struct {
	cfg   *config.Config
	http  *httpx.Client
	agent UserAgent
	log   logger.Logger
}

// NewFlow creates an OAuth flow.
func NewFlow(cfg *config.Config, httpClient *httpx.Client, agent UserAgent, log logger.Logger) *Flow {
	return &Flow{
		cfg:   cfg,
		http:  httpClient,
		agent: agent,
		log:   log.With(logger.Component("oauth")),
	}
}

// SignIn drives the full flow: authorize in an external browser,
// exchange the code at the provider, then exchange the provider token at
// the application. On any failure nothing has been persisted; the caller
// owns storing the result.
func (f *Flow) SignIn(ctx context.Context) (*ExchangeResult, error) {
	pair, err := pkce.GeneratePair()
	if err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, err.Error())
	}
	state, err := pkce.GenerateState()
	if err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, err.Error())
	}
	nonce, err := pkce.GenerateNonce()
	if err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, err.Error())
	}

	redirectURI := f.cfg.OAuth.RedirectURI()
	authURL, err := f.buildAuthorizationURL(pair.Challenge, state, nonce, redirectURI)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, err.Error())
	}

	f.log.Info("starting authorization", logger.URL(f.cfg.OAuth.AuthorizationEndpoint))

	cb, err := f.agent.Authorize(ctx, authURL, redirectURI)
	if err != nil {
		if errors.Is(err, errors.ErrOAuthCancelled) {
			f.log.Info("authorization cancelled by user")
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrOAuthFailed, err.Error())
	}
	if cb.State != state {
		return nil, errors.Wrap(errors.ErrOAuthFailed, "state mismatch")
	}
	if cb.Code == "" {
		return nil, errors.Wrap(errors.ErrOAuthFailed, "no authorization code in callback")
	}

	tokens, err := f.exchangeCode(ctx, cb.Code, pair.Verifier, redirectURI)
	if err != nil {
		return nil, err
	}

	// The ID token carries the profile claims the application needs;
	// fall back to the access token when the provider omitted it.
	providerToken := tokens.IDToken
	if providerToken == "" {
		providerToken = tokens.AccessToken
	}
	if providerToken == "" {
		return nil, errors.Wrap(errors.ErrOAuthFailed, "provider returned no tokens")
	}

	if claims, err := PeekIDToken(tokens.IDToken); err == nil {
		f.log.Debug("id token parsed",
			logger.String("subject", claims.Subject),
			logger.Bool("has_email", claims.Email != ""),
		)
	}

	return f.exchangeAppToken(ctx, providerToken)
}

// buildAuthorizationURL constructs the provider authorization URL with
// response_type=code, the requested scopes, and a PKCE S256 challenge.
func (f *Flow) buildAuthorizationURL(challenge, state, nonce, redirectURI string) (string, error) {
	u, err := url.Parse(f.cfg.OAuth.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}

	query := u.Query()
	query.Set("response_type", "code")
	query.Set("client_id", f.cfg.OAuth.ClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("scope", f.cfg.OAuth.ScopesString())
	query.Set("state", state)
	query.Set("nonce", nonce)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	query.Set("access_type", "offline")
	query.Set("prompt", "consent")
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// exchangeCode POSTs the authorization code to the provider's token
// endpoint.
func (f *Flow) exchangeCode(ctx context.Context, code, verifier, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("client_id", f.cfg.OAuth.ClientID)
	form.Set("client_secret", f.cfg.OAuth.ClientSecret)
	form.Set("redirect_uri", redirectURI)

	var tokens TokenResponse
	err := f.http.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		URL:    f.cfg.OAuth.TokenEndpoint,
		Form:   form,
	}, &tokens)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, err.Error())
	}
	if tokens.Error != "" {
		return nil, errors.Wrap(errors.ErrOAuthFailed, tokens.Error+": "+tokens.ErrorDescription)
	}
	return &tokens, nil
}

// exchangeAppToken trades the provider token for an application session
// token and minimal user record.
func (f *Flow) exchangeAppToken(ctx context.Context, providerToken string) (*ExchangeResult, error) {
	var resp appTokenResponse
	err := f.http.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		URL:    f.cfg.Auth.BaseURL + f.cfg.Auth.GoogleTokenPath,
		Body:   map[string]string{"token": providerToken},
	}, &resp)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, err.Error())
	}
	if resp.Token == "" {
		return nil, errors.Wrap(errors.ErrOAuthFailed, "application returned no session token")
	}

	f.log.Info("token exchange completed", logger.UserID(resp.ID))

	return &ExchangeResult{
		Token: resp.Token,
		User: &user.User{
			ID:       resp.ID,
			Username: resp.Username,
			Email:    resp.Email,
			Roles:    resp.Roles,
		},
	}, nil
}
