package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"churchops/internal/clock"
	"churchops/internal/models"
	"churchops/internal/storage"
)

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func testService(t *testing.T, store storage.Storage, mailer Mailer, admins []string) *Service {
	t.Helper()
	email := &fakeChannel{name: "email"}
	sms := &fakeChannel{name: "sms"}
	d := NewDispatcher(store, email, sms, clock.Fixed(testNow), zerolog.Nop())
	return NewService(store, d, mailer, clock.Fixed(testNow), admins, zerolog.Nop())
}

func seedSchedule(t *testing.T, store storage.Storage) *models.Schedule {
	t.Helper()
	m := &models.Ministry{ID: "min-1", Name: "Alabanza", IsActive: true}
	if err := store.CreateMinistry(context.Background(), m); err != nil {
		t.Fatalf("create ministry: %v", err)
	}
	sch := &models.Schedule{
		ID:         "sch-1",
		MinistryID: "min-1",
		ServerID:   "srv-1",
		DayOfWeek:  "sunday",
		StartTime:  "09:00",
		EndTime:    "11:00",
		Status:     models.ScheduleAssigned,
	}
	if err := store.CreateSchedule(context.Background(), sch); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return sch
}

func TestNotifyAssignmentCreatesPending(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	svc := testService(t, store, nil, nil)

	seedServer(t, store, nil)
	seedSchedule(t, store)

	n, err := svc.NotifyAssignment(ctx, "srv-1", "sch-1")
	if err != nil {
		t.Fatalf("notify assignment: %v", err)
	}
	if n.Status != models.StatusPending {
		t.Fatalf("status %q, want pending", n.Status)
	}
	if n.DeliveryMethod != models.ContactBoth {
		t.Fatalf("delivery method %q, want server preference both", n.DeliveryMethod)
	}
	if len(n.ResponseToken) != 64 {
		t.Fatalf("token length %d, want 64", len(n.ResponseToken))
	}
	if !strings.Contains(n.Message, "Alabanza") {
		t.Fatalf("message missing ministry name: %q", n.Message)
	}
	if !strings.Contains(n.Message, "Domingo") {
		t.Fatalf("message missing translated day: %q", n.Message)
	}
}

func TestCreateReminderScheduledAhead(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	svc := testService(t, store, nil, nil)

	seedServer(t, store, nil)
	seedSchedule(t, store)
	orig, err := svc.NotifyAssignment(ctx, "srv-1", "sch-1")
	if err != nil {
		t.Fatalf("notify assignment: %v", err)
	}

	rem, err := svc.CreateReminder(ctx, orig.ID, 0)
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if rem.Type != models.TypeReminder {
		t.Fatalf("type %q, want reminder", rem.Type)
	}
	want := testNow.Add(24 * time.Hour)
	if rem.ScheduledFor == nil || !rem.ScheduledFor.Equal(want) {
		t.Fatalf("scheduled_for %v, want %v (24h default)", rem.ScheduledFor, want)
	}

	// Not due yet, so a sweep now must leave it alone.
	due, err := store.GetDueNotifications(ctx, testNow)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	for _, n := range due {
		if n.ID == rem.ID {
			t.Fatal("reminder reported due before its scheduled time")
		}
	}

	due, err = store.GetDueNotifications(ctx, want.Add(time.Minute))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	found := false
	for _, n := range due {
		if n.ID == rem.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("reminder not reported due after its scheduled time")
	}
}

func TestRecordResponseValidation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	svc := testService(t, store, nil, nil)

	seedServer(t, store, nil)
	n := seedNotification(t, store, models.ContactEmail)

	if _, err := svc.RecordResponse(ctx, n.ID, "yes", ""); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("err %v, want ErrInvalidAction", err)
	}
	long := strings.Repeat("a", MaxResponseMessageLen+1)
	if _, err := svc.RecordResponse(ctx, n.ID, "confirmed", long); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("err %v, want ErrMessageTooLong", err)
	}

	got, _ := store.GetNotification(ctx, n.ID)
	if got.ResponseStatus != "" {
		t.Fatalf("rejected responses must not persist, got %q", got.ResponseStatus)
	}
}

func TestRecordResponseLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	admins := []string{"pastor@example.org"}
	mailer := &fakeMailer{}
	svc := testService(t, store, mailer, admins)

	seedServer(t, store, nil)
	n := seedNotification(t, store, models.ContactEmail)

	ack, err := svc.RecordResponse(ctx, n.ID, "confirmed", "ahí estaré")
	if err != nil {
		t.Fatalf("first response: %v", err)
	}
	if ack != "¡Gracias por confirmar tu participación!" {
		t.Fatalf("unexpected ack %q", ack)
	}

	if _, err := svc.RecordResponse(ctx, n.ID, "declined", "surgió un viaje"); err != nil {
		t.Fatalf("second response: %v", err)
	}

	got, _ := store.GetNotification(ctx, n.ID)
	if got.ResponseStatus != models.ResponseDeclined {
		t.Fatalf("response %q, want declined (later submission wins)", got.ResponseStatus)
	}
	if got.ResponseMessage != "surgió un viaje" {
		t.Fatalf("message %q not overwritten", got.ResponseMessage)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("admin mails %d, want 2", len(mailer.sent))
	}
}

func TestRecordResponseSurvivesAdminMailFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	svc := testService(t, store, &fakeMailer{err: errors.New("relay refused")}, []string{"pastor@example.org"})

	seedServer(t, store, nil)
	n := seedNotification(t, store, models.ContactEmail)

	if _, err := svc.RecordResponse(ctx, n.ID, "maybe", ""); err != nil {
		t.Fatalf("response must succeed despite admin mail failure: %v", err)
	}
	got, _ := store.GetNotification(ctx, n.ID)
	if got.ResponseStatus != models.ResponseMaybe {
		t.Fatalf("response %q, want maybe", got.ResponseStatus)
	}
}

func TestMarkReadOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	svc := testService(t, store, nil, nil)

	seedServer(t, store, nil)
	n := seedNotification(t, store, models.ContactEmail)

	if err := svc.MarkRead(ctx, n.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	got, _ := store.GetNotification(ctx, n.ID)
	if got.ReadAt == nil || !got.ReadAt.Equal(testNow) {
		t.Fatalf("read_at %v, want %v", got.ReadAt, testNow)
	}
	first := *got.ReadAt

	if err := svc.MarkRead(ctx, n.ID); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	got, _ = store.GetNotification(ctx, n.ID)
	if !got.ReadAt.Equal(first) {
		t.Fatalf("read_at moved on second view: %v", got.ReadAt)
	}
}

func TestSendPendingContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	svc := testService(t, store, nil, nil)

	seedServer(t, store, nil)
	// srv-2 has every channel disabled so its notification must fail.
	srv2 := &models.Server{
		ID:                     "srv-2",
		IsExternal:             true,
		ExternalName:           "Lucía",
		IsActive:               true,
		PreferredContactMethod: models.ContactEmail,
	}
	if err := store.CreateServer(ctx, srv2); err != nil {
		t.Fatalf("create server: %v", err)
	}

	for i, serverID := range []string{"srv-1", "srv-2", "srv-1"} {
		n := &models.Notification{
			ID:             string(rune('a' + i)),
			ServerID:       serverID,
			Type:           models.TypeAssignment,
			Title:          "t",
			Message:        "m",
			DeliveryMethod: models.ContactEmail,
			Status:         models.StatusPending,
			ResponseToken:  "tok-" + string(rune('a'+i)),
			CreatedAt:      testNow,
		}
		if err := store.CreateNotification(ctx, n); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	if sent := svc.SendPending(ctx); sent != 2 {
		t.Fatalf("sent %d, want 2 of 3", sent)
	}

	failed, _ := store.GetNotification(ctx, "b")
	if failed.Status != models.StatusFailed {
		t.Fatalf("srv-2 notification status %q, want failed", failed.Status)
	}

	// A second sweep finds nothing pending.
	if sent := svc.SendPending(ctx); sent != 0 {
		t.Fatalf("second sweep sent %d, want 0", sent)
	}
}
