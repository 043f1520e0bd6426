package oauth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/prodonik/tierlist-client/pkg/errors"
)

// IDTokenClaims is the subset of OpenID Connect claims the client cares
// about.
type IDTokenClaims struct {
	Subject string
	Email   string
	Issuer  string
}

// PeekIDToken extracts claims from an ID token without verifying the
// signature. The application backend performs the real verification; the
// client only peeks to confirm the token looks usable before shipping it
// off (and to log which identity is being exchanged).
func PeekIDToken(idToken string) (*IDTokenClaims, error) {
	if idToken == "" {
		return nil, errors.Wrap(errors.ErrOAuthFailed, "empty id token")
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, err.Error())
	}

	out := &IDTokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if iss, err := claims.GetIssuer(); err == nil {
		out.Issuer = iss
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	return out, nil
}
