// Package storage provides the credential store: a small key/value
// persistence layer scoped to the client's secrets. Implementations are
// secure where the platform allows (encrypted file store) and best-effort
// elsewhere (in-memory).
package storage

import "context"

// Well-known keys used by the session layer. Token and user form the
// credential record and are always written and cleared together.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Store is the credential store contract. GetItem returns
// errors.ErrItemNotFound when the key is absent; any other failure wraps
// errors.ErrStorage and readers treat it as "no stored credential".
type Store interface {
	SetItem(ctx context.Context, key, value string) error
	GetItem(ctx context.Context, key string) (string, error)
	RemoveItem(ctx context.Context, key string) error
}
