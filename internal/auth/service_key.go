package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrKeyNotFound is returned when no service account matches a key
var ErrKeyNotFound = errors.New("service key not found")

// ServiceAccount is the view of an internal caller needed at request
// time. Service accounts exchange their key for a short-lived JWT
// carrying the service role.
type ServiceAccount struct {
	ID      string
	Name    string
	KeyHash string
	Revoked bool
}

// ServiceKeyStore resolves plaintext service keys into accounts.
type ServiceKeyStore interface {
	Lookup(ctx context.Context, plaintextKey string) (*ServiceAccount, error)
}

// HashServiceKey hashes a service key for storage
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareServiceKey checks a plaintext key against a stored hash
func CompareServiceKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// InMemoryServiceKeyStore holds service accounts loaded at startup.
// The account set is small and static, so lookup compares against
// each stored hash.
type InMemoryServiceKeyStore struct {
	accounts []*ServiceAccount
}

func NewInMemoryServiceKeyStore(accounts []*ServiceAccount) *InMemoryServiceKeyStore {
	return &InMemoryServiceKeyStore{accounts: accounts}
}

func (s *InMemoryServiceKeyStore) Lookup(ctx context.Context, plaintextKey string) (*ServiceAccount, error) {
	for _, account := range s.accounts {
		if CompareServiceKey(account.KeyHash, plaintextKey) {
			if account.Revoked {
				return nil, ErrKeyNotFound
			}
			return account, nil
		}
	}
	return nil, ErrKeyNotFound
}
