package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"churchops/internal/models"
	"churchops/internal/storage"
)

func TestNewTokenShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := New()
		if len(tok) != Length {
			t.Fatalf("token length %d, want %d", len(tok), Length)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = true
	}
}

func TestResolveNotification(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	reg := NewRegistry(store)

	tok := New()
	n := &models.Notification{
		ID:            "n-1",
		ServerID:      "srv-1",
		Type:          models.TypeAssignment,
		Status:        models.StatusPending,
		ResponseToken: tok,
		CreatedAt:     time.Now(),
	}
	if err := store.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	got, err := reg.ResolveNotification(ctx, tok)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "n-1" {
		t.Fatalf("resolved %q, want n-1", got.ID)
	}

	if _, err := reg.ResolveNotification(ctx, "no-such-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown token: got %v, want ErrNotFound", err)
	}
	if _, err := reg.ResolveNotification(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty token: got %v, want ErrNotFound", err)
	}
}

func TestResolveServerAndRegenerate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	reg := NewRegistry(store)

	oldToken := New()
	srv := &models.Server{
		ID:                "srv-1",
		IsExternal:        true,
		ExternalName:      "Ana",
		NotificationToken: oldToken,
	}
	if err := store.CreateServer(ctx, srv); err != nil {
		t.Fatalf("create server: %v", err)
	}

	got, err := reg.ResolveServer(ctx, oldToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "srv-1" {
		t.Fatalf("resolved %q, want srv-1", got.ID)
	}

	newToken, err := reg.RegenerateServerToken(ctx, "srv-1")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if newToken == oldToken {
		t.Fatal("regenerated token equals old token")
	}

	// The old value is invalid immediately.
	if _, err := reg.ResolveServer(ctx, oldToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old token: got %v, want ErrNotFound", err)
	}
	if got, err := reg.ResolveServer(ctx, newToken); err != nil || got.ID != "srv-1" {
		t.Fatalf("new token resolve: got %v, %v", got, err)
	}

	if _, err := reg.RegenerateServerToken(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("regenerate missing server: got %v, want ErrNotFound", err)
	}
}
