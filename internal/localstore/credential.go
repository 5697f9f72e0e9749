package localstore

import (
	"context"

	"github.com/dmitrijs2005/emissionkeeper/internal/cryptox"
)

const credentialKey = "credential"

// CredentialCache keeps the last issued credential token so a restarted
// process can resume the session.
type CredentialCache struct {
	repo *Repository
	key  []byte
}

func NewCredentialCache(repo *Repository) *CredentialCache {
	return &CredentialCache{repo: repo}
}

// NewSealedCredentialCache stores the token encrypted with key (see
// cryptox.DeriveKey).
func NewSealedCredentialCache(repo *Repository, key []byte) *CredentialCache {
	return &CredentialCache{repo: repo, key: key}
}

// Load returns the cached token or "" when nothing is cached. A sealed
// value that no longer opens (e.g. after a key change) is dropped and
// reported as absent.
func (c *CredentialCache) Load(ctx context.Context) (string, error) {
	raw, err := c.repo.Get(ctx, credentialKey)
	if err != nil || raw == nil {
		return "", err
	}
	if c.key == nil {
		return string(raw), nil
	}

	plain, err := cryptox.Open(raw, c.key)
	if err != nil {
		return "", c.Clear(ctx)
	}
	return string(plain), nil
}

func (c *CredentialCache) Store(ctx context.Context, token string) error {
	value := []byte(token)
	if c.key != nil {
		sealed, err := cryptox.Seal(value, c.key)
		if err != nil {
			return err
		}
		value = sealed
	}
	return c.repo.Set(ctx, credentialKey, value)
}

func (c *CredentialCache) Clear(ctx context.Context) error {
	return c.repo.Delete(ctx, credentialKey)
}
