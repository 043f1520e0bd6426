package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// verifierLength is the length of the code verifier in bytes. The
// base64url-encoded result is 43 characters, within the 43-128 range
// OAuth 2.1 requires.
const verifierLength = 32

// Pair holds a generated code verifier and its S256 challenge.
type Pair struct {
	Verifier  string
	Challenge string
}

// GeneratePair generates a cryptographically random verifier and its
// corresponding challenge.
func GeneratePair() (*Pair, error) {
	bytes := make([]byte, verifierLength)
	if _, err := rand.Read(bytes); err != nil {
		return nil, err
	}
	verifier := base64.RawURLEncoding.EncodeToString(bytes)
	return &Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
	}, nil
}

// Challenge computes the S256 code challenge for a verifier:
// base64url(sha256(verifier)).
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState creates a random state value for CSRF protection.
func GenerateState() (string, error) {
	return randomToken(16)
}

// GenerateNonce creates a random nonce for OpenID Connect.
func GenerateNonce() (string, error) {
	return randomToken(16)
}

func randomToken(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
