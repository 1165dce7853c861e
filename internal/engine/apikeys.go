package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"orgforge/internal/domain"
	"orgforge/internal/policy"
	"orgforge/internal/repo"
)

// CreateAPIKey mints a key for the user and returns the plaintext exactly
// once. Only the sha256 of it is stored.
func (e *Engine) CreateAPIKey(ctx context.Context, userID, name string) (string, domain.APIKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	plaintext := "ofk_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return plaintext, key, nil
}

// APIKeys lists the user's keys. Hashes only; the plaintext is gone.
func (e *Engine) APIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, userID)
}

// RevokeAPIKey deletes one of the user's keys. Deleting someone else's key
// reads as not found.
func (e *Engine) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			return e.Repo.DeleteAPIKey(ctx, keyID)
		}
	}
	return repo.ErrNotFound
}

// EventLog returns the newest matching audit events. Company scoping follows
// the usual visibility rule.
func (e *Engine) EventLog(ctx context.Context, actor policy.Actor, limit int, companyID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if companyID != "" {
		if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
			return nil, err
		}
		if err := e.requireView(ctx, companyID, actor); err != nil {
			return nil, err
		}
	} else if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleConsultant {
		return nil, policy.UnauthorizedError{Role: actor.Role, Operation: "list_events"}
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return e.Repo.LatestEvents(ctx, limit, companyID, evtType, entityKind, entityID)
}
