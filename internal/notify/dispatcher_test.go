package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"churchops/internal/clock"
	"churchops/internal/models"
	"churchops/internal/storage"
	"churchops/internal/token"
)

type fakeChannel struct {
	name  string
	err   error
	calls int
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(ctx context.Context, srv *models.Server, n *models.Notification) error {
	c.calls++
	return c.err
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testDispatcher(t *testing.T, store storage.Storage, email, sms *fakeChannel) *Dispatcher {
	t.Helper()
	return NewDispatcher(store, email, sms, clock.Fixed(testNow), zerolog.Nop())
}

func seedServer(t *testing.T, store storage.Storage, mutate func(*models.Server)) *models.Server {
	t.Helper()
	srv := &models.Server{
		ID:                     "srv-1",
		IsExternal:             true,
		ExternalName:           "Carlos",
		ExternalEmail:          "carlos@example.org",
		ExternalPhone:          "+5215550001",
		Position:               "Sonido",
		IsActive:               true,
		EmailNotifications:     true,
		SMSNotifications:       true,
		PreferredContactMethod: models.ContactBoth,
		NotificationToken:      token.New(),
	}
	if mutate != nil {
		mutate(srv)
	}
	if err := store.CreateServer(context.Background(), srv); err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv
}

func seedNotification(t *testing.T, store storage.Storage, method models.ContactMethod) *models.Notification {
	t.Helper()
	n := &models.Notification{
		ID:             "n-1",
		ServerID:       "srv-1",
		Type:           models.TypeAssignment,
		Title:          "Nueva Asignación de Servicio",
		Message:        "Hola Carlos",
		DeliveryMethod: method,
		Status:         models.StatusPending,
		ResponseToken:  token.New(),
		CreatedAt:      testNow,
	}
	if err := store.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	return n
}

func TestDispatchBothChannelsSucceed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	email := &fakeChannel{name: "email"}
	sms := &fakeChannel{name: "sms"}
	d := testDispatcher(t, store, email, sms)

	seedServer(t, store, nil)
	seedNotification(t, store, models.ContactBoth)

	if !d.Dispatch(ctx, "n-1") {
		t.Fatal("dispatch reported not sent")
	}
	if email.calls != 1 || sms.calls != 1 {
		t.Fatalf("channel calls email=%d sms=%d, want 1 and 1", email.calls, sms.calls)
	}

	n, err := store.GetNotification(ctx, "n-1")
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if n.Status != models.StatusSent {
		t.Fatalf("status %q, want sent", n.Status)
	}
	if n.SentAt == nil || !n.SentAt.Equal(testNow) {
		t.Fatalf("sent_at %v, want %v", n.SentAt, testNow)
	}
}

func TestDispatchNoEligibleChannelsFails(t *testing.T) {
	// Server with every notification preference off: dispatch completes,
	// zero channels attempted, notification ends up failed.
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	email := &fakeChannel{name: "email"}
	sms := &fakeChannel{name: "sms"}
	d := testDispatcher(t, store, email, sms)

	seedServer(t, store, func(srv *models.Server) {
		srv.EmailNotifications = false
		srv.SMSNotifications = false
	})
	seedNotification(t, store, models.ContactBoth)

	if d.Dispatch(ctx, "n-1") {
		t.Fatal("dispatch reported sent with no channels")
	}
	if email.calls != 0 || sms.calls != 0 {
		t.Fatalf("channel calls email=%d sms=%d, want 0 and 0", email.calls, sms.calls)
	}

	n, _ := store.GetNotification(ctx, "n-1")
	if n.Status != models.StatusFailed {
		t.Fatalf("status %q, want failed", n.Status)
	}
}

func TestDispatchOneChannelSuccessIsEnough(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	email := &fakeChannel{name: "email", err: errors.New("smtp down")}
	sms := &fakeChannel{name: "sms"}
	d := testDispatcher(t, store, email, sms)

	seedServer(t, store, nil)
	seedNotification(t, store, models.ContactBoth)

	if !d.Dispatch(ctx, "n-1") {
		t.Fatal("dispatch reported not sent")
	}
	n, _ := store.GetNotification(ctx, "n-1")
	if n.Status != models.StatusSent {
		t.Fatalf("status %q, want sent", n.Status)
	}
}

func TestDispatchAllChannelsFailing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	email := &fakeChannel{name: "email", err: errors.New("smtp down")}
	sms := &fakeChannel{name: "sms", err: errors.New("gateway down")}
	d := testDispatcher(t, store, email, sms)

	seedServer(t, store, nil)
	seedNotification(t, store, models.ContactBoth)

	if d.Dispatch(ctx, "n-1") {
		t.Fatal("dispatch reported sent")
	}
	n, _ := store.GetNotification(ctx, "n-1")
	if n.Status != models.StatusFailed {
		t.Fatalf("status %q, want failed", n.Status)
	}
}

func TestDispatchRespectsDeliveryMethod(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	email := &fakeChannel{name: "email"}
	sms := &fakeChannel{name: "sms"}
	d := testDispatcher(t, store, email, sms)

	seedServer(t, store, nil)
	seedNotification(t, store, models.ContactEmail)

	d.Dispatch(ctx, "n-1")
	if email.calls != 1 {
		t.Fatalf("email calls %d, want 1", email.calls)
	}
	if sms.calls != 0 {
		t.Fatalf("sms calls %d, want 0 for email-only delivery", sms.calls)
	}
}

func TestDispatchSkipsNonPending(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	email := &fakeChannel{name: "email"}
	sms := &fakeChannel{name: "sms"}
	d := testDispatcher(t, store, email, sms)

	seedServer(t, store, nil)
	n := seedNotification(t, store, models.ContactBoth)
	if err := store.UpdateNotification(ctx, n.ID, func(n *models.Notification) {
		n.Status = models.StatusSent
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	d.Dispatch(ctx, n.ID)
	if email.calls != 0 || sms.calls != 0 {
		t.Fatalf("channels attempted on already-sent notification")
	}
}
