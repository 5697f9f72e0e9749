package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// ResetTokens stores password-reset token fingerprints until they are
// consumed or expire.
type ResetTokens interface {
	Put(ctx context.Context, tokenHash, userID string, ttl time.Duration) error
	// Consume returns the owner of tokenHash and forgets it. Unknown or
	// expired hashes yield ErrResetTokenInvalid.
	Consume(ctx context.Context, tokenHash string) (string, error)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	raw := make([]byte, n)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}

type memoryReset struct {
	userID    string
	expiresAt time.Time
}

// MemoryResetTokens keeps reset tokens in process memory. Used when no
// Redis is configured.
type MemoryResetTokens struct {
	mu     sync.Mutex
	tokens map[string]memoryReset
	now    func() time.Time
}

func NewMemoryResetTokens() *MemoryResetTokens {
	return &MemoryResetTokens{tokens: make(map[string]memoryReset), now: time.Now}
}

func (m *MemoryResetTokens) Put(_ context.Context, tokenHash, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = memoryReset{userID: userID, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryResetTokens) Consume(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.tokens[tokenHash]
	if !ok {
		return "", ErrResetTokenInvalid
	}
	delete(m.tokens, tokenHash)
	if !m.now().Before(r.expiresAt) {
		return "", ErrResetTokenInvalid
	}
	return r.userID, nil
}
