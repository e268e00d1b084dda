package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"scrumgame/internal/domain"
	"scrumgame/internal/repo"
)

const apiKeyPrefix = "sg_"

// CreateAPIKey mints a key for the caller. The plain key is only returned here.
func (e *Engine) CreateAPIKey(ctx context.Context, name string) (string, domain.APIKey, error) {
	userID, err := e.Auth.CurrentUserID(ctx)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	e.Logger.Info("api key created", "user_id", userID, "key_id", key.ID)
	return plain, key, nil
}

func (e *Engine) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	userID, err := e.Auth.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListAPIKeys(ctx, userID)
}

// DeleteAPIKey revokes one of the caller's keys.
func (e *Engine) DeleteAPIKey(ctx context.Context, id string) error {
	keys, err := e.ListAPIKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == id {
			return e.Repo.DeleteAPIKey(ctx, id)
		}
	}
	return domain.NotFound("api key", id)
}

// Authenticate resolves a plain API key to its owner.
func (e *Engine) Authenticate(ctx context.Context, plain string) (domain.APIKey, error) {
	if strings.TrimSpace(plain) == "" {
		return domain.APIKey{}, domain.Invalid("api_key", "required")
	}
	return e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
}
