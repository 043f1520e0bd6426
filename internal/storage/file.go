package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"

	"github.com/prodonik/tierlist-client/pkg/errors"
)

// Argon2id parameters for deriving the encryption key from the
// passphrase (OWASP recommended).
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLength    = 32
	saltLength   = 16
)

const saltFile = ".salt"

// FileStore persists each item as an AES-GCM encrypted file under dir.
// The encryption key is derived from the passphrase with argon2id; the
// per-store salt lives alongside the items.
type FileStore struct {
	dir string
	key []byte
}

// NewFileStore opens (or initializes) an encrypted file store.
func NewFileStore(dir, passphrase string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(errors.ErrStorage, err.Error())
	}

	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, err
	}

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLength)
	return &FileStore{dir: dir, key: key}, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == saltLength {
		return salt, nil
	}

	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(errors.ErrStorage, err.Error())
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, errors.Wrap(errors.ErrStorage, err.Error())
	}
	return salt, nil
}

// SetItem encrypts and writes the value. The write goes through a temp
// file and rename so a crash never leaves a half-written item.
func (s *FileStore) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sealed, err := s.seal([]byte(value))
	if err != nil {
		return err
	}

	path := s.itemPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealed), 0600); err != nil {
		return errors.Wrap(errors.ErrStorage, err.Error())
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.ErrStorage, err.Error())
	}
	return nil
}

// GetItem reads and decrypts the value for key.
func (s *FileStore) GetItem(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(s.itemPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.ErrItemNotFound
		}
		return "", errors.Wrap(errors.ErrStorage, err.Error())
	}

	plain, err := s.open(string(data))
	if err != nil {
		// Undecryptable content is indistinguishable from corruption;
		// report it as a storage failure so the caller purges it.
		return "", errors.Wrap(errors.ErrStorage, "cannot decrypt item")
	}
	return string(plain), nil
}

// RemoveItem deletes the item. Removing an absent item is a no-op.
func (s *FileStore) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.itemPath(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrStorage, err.Error())
	}
	return nil
}

func (s *FileStore) itemPath(key string) string {
	// Keys are fixed well-known names; encode anyway so arbitrary keys
	// cannot escape the directory.
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+".cred")
}

func (s *FileStore) seal(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", errors.Wrap(errors.ErrStorage, err.Error())
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(errors.ErrStorage, err.Error())
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(errors.ErrStorage, err.Error())
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

func (s *FileStore) open(sealed string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.ErrStorage
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
