package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"churchops/internal/models"
	"churchops/internal/storage"
)

// Length of generated tokens in characters. 32 random bytes hex-encoded,
// matching the entropy class of the original 64-character tokens.
const Length = 64

var ErrNotFound = errors.New("token: not found")

// New returns a high-entropy opaque token. Panics only if the OS entropy
// source is broken, in which case nothing else works either.
func New() string {
	buf := make([]byte, Length/2)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("token: entropy source unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Registry resolves response and server tokens against persisted values.
// Lookup is exact-match; a miss is always ErrNotFound, never a default or
// partial record.
type Registry struct {
	store storage.Storage
}

func NewRegistry(store storage.Storage) *Registry {
	return &Registry{store: store}
}

// ResolveNotification maps a response token to its notification.
func (r *Registry) ResolveNotification(ctx context.Context, tok string) (*models.Notification, error) {
	if tok == "" {
		return nil, ErrNotFound
	}
	n, err := r.store.GetNotificationByToken(ctx, tok)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ResolveServer maps a standalone server token to its server.
func (r *Registry) ResolveServer(ctx context.Context, tok string) (*models.Server, error) {
	if tok == "" {
		return nil, ErrNotFound
	}
	srv, err := r.store.GetServerByToken(ctx, tok)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// RegenerateServerToken replaces a server's standalone token, invalidating
// the previous value immediately, and returns the new token.
func (r *Registry) RegenerateServerToken(ctx context.Context, serverID string) (string, error) {
	newToken := New()
	err := r.store.UpdateServer(ctx, serverID, func(s *models.Server) {
		s.NotificationToken = newToken
	})
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return newToken, nil
}
