package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/internal/httpx"
	"github.com/prodonik/tierlist-client/pkg/errors"
	"github.com/prodonik/tierlist-client/pkg/logger"
)

// stubAgent completes the browser hand-off without a browser: it parses
// the state out of the authorization URL and redirects straight back.
type stubAgent struct {
	lastAuthURL string
	code        string
	stateWith   func(state string) string
	err         error
}

func (a *stubAgent) Authorize(ctx context.Context, authURL, redirectURI string) (*Callback, error) {
	a.lastAuthURL = authURL
	if a.err != nil {
		return nil, a.err
	}
	parsed, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	state := parsed.Query().Get("state")
	if a.stateWith != nil {
		state = a.stateWith(state)
	}
	return &Callback{Code: a.code, State: state}, nil
}

func newTestFlow(t *testing.T, agent UserAgent, provider, app http.Handler) *Flow {
	t.Helper()

	providerSrv := httptest.NewServer(provider)
	t.Cleanup(providerSrv.Close)
	appSrv := httptest.NewServer(app)
	t.Cleanup(appSrv.Close)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			BaseURL:         appSrv.URL,
			GoogleTokenPath: "/google-token",
		},
		HTTP: config.HTTPConfig{
			Timeout:        2 * time.Second,
			MaxAttempts:    1,
			RetryBaseDelay: time.Millisecond,
		},
		OAuth: config.OAuthConfig{
			AuthorizationEndpoint: providerSrv.URL + "/auth",
			TokenEndpoint:         providerSrv.URL + "/token",
			ClientID:              "client-id",
			ClientSecret:          "client-secret",
			Scopes:                []string{"openid", "profile", "email"},
			RedirectHost:          "127.0.0.1",
			RedirectPort:          19006,
			RedirectPath:          "/auth/google/callback",
		},
	}

	client := httpx.New(nil, &cfg.HTTP, logger.NewNop())
	return NewFlow(cfg, client, agent, logger.NewNop())
}

func TestSignIn_FullExchange(t *testing.T) {
	var tokenForm url.Values
	provider := http.NewServeMux()
	provider.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		tokenForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access",
			"id_token":     "provider-id-token",
			"token_type":   "Bearer",
		})
	})

	var appBody map[string]string
	app := http.NewServeMux()
	app.HandleFunc("/google-token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&appBody))
		json.NewEncoder(w).Encode(map[string]any{
			"token": "app-token", "id": "u1", "username": "dilshod", "email": "d@example.com",
		})
	})

	agent := &stubAgent{code: "auth-code"}
	flow := newTestFlow(t, agent, provider, app)

	result, err := flow.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "app-token", result.Token)
	assert.Equal(t, "u1", result.User.ID)

	// Authorization URL carries the code flow and PKCE parameters.
	authQuery, err := url.Parse(agent.lastAuthURL)
	require.NoError(t, err)
	q := authQuery.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEmpty(t, q.Get("state"))
	assert.Contains(t, q.Get("scope"), "openid")

	// Token exchange sends the code and the matching verifier.
	assert.Equal(t, "authorization_code", tokenForm.Get("grant_type"))
	assert.Equal(t, "auth-code", tokenForm.Get("code"))
	assert.NotEmpty(t, tokenForm.Get("code_verifier"))

	// The ID token, not the access token, goes to the application.
	assert.Equal(t, "provider-id-token", appBody["token"])
}

func TestSignIn_CancellationPassesThrough(t *testing.T) {
	agent := &stubAgent{err: errors.ErrOAuthCancelled}
	flow := newTestFlow(t, agent, http.NewServeMux(), http.NewServeMux())

	_, err := flow.SignIn(context.Background())
	assert.True(t, errors.Is(err, errors.ErrOAuthCancelled))
}

func TestSignIn_StateMismatchRejected(t *testing.T) {
	agent := &stubAgent{
		code:      "auth-code",
		stateWith: func(string) string { return "forged" },
	}
	flow := newTestFlow(t, agent, http.NewServeMux(), http.NewServeMux())

	_, err := flow.SignIn(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOAuthFailed))
	assert.False(t, errors.Is(err, errors.ErrOAuthCancelled))
}

func TestSignIn_ProviderErrorPayload(t *testing.T) {
	provider := http.NewServeMux()
	provider.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"error": "invalid_grant", "error_description": "code expired",
		})
	})

	agent := &stubAgent{code: "stale-code"}
	flow := newTestFlow(t, agent, provider, http.NewServeMux())

	_, err := flow.SignIn(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOAuthFailed))
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestSignIn_AccessTokenFallback(t *testing.T) {
	provider := http.NewServeMux()
	provider.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "provider-access"})
	})

	var appBody map[string]string
	app := http.NewServeMux()
	app.HandleFunc("/google-token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&appBody))
		json.NewEncoder(w).Encode(map[string]any{"token": "app-token", "id": "u1"})
	})

	flow := newTestFlow(t, &stubAgent{code: "auth-code"}, provider, app)

	_, err := flow.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "provider-access", appBody["token"])
}

func TestPeekIDToken(t *testing.T) {
	// Unsigned token with alg none is still parseable unverified.
	// header {"alg":"none","typ":"JWT"} payload {"sub":"u1","iss":"issuer","email":"d@example.com"}
	token := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." +
		"eyJzdWIiOiJ1MSIsImlzcyI6Imlzc3VlciIsImVtYWlsIjoiZEBleGFtcGxlLmNvbSJ9."

	claims, err := PeekIDToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "issuer", claims.Issuer)
	assert.Equal(t, "d@example.com", claims.Email)

	_, err = PeekIDToken("not-a-jwt")
	assert.Error(t, err)
}
