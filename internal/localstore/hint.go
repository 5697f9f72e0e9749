package localstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// HintKey is the metadata key of the durable "logged in" hint.
const HintKey = "isLoggedIn"

// LoginHint persists a single boolean under HintKey.
type LoginHint struct {
	repo *Repository
}

func NewLoginHint(repo *Repository) *LoginHint {
	return &LoginHint{repo: repo}
}

// Load reports the stored hint. A missing key reads as false.
func (h *LoginHint) Load(ctx context.Context) (bool, error) {
	raw, err := h.repo.Get(ctx, HintKey)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}

	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("decode %s: %w", HintKey, err)
	}
	return v, nil
}

func (h *LoginHint) Store(ctx context.Context, loggedIn bool) error {
	raw, err := json.Marshal(loggedIn)
	if err != nil {
		return err
	}
	return h.repo.Set(ctx, HintKey, raw)
}

// Clear removes the hint entirely.
func (h *LoginHint) Clear(ctx context.Context) error {
	return h.repo.Delete(ctx, HintKey)
}
