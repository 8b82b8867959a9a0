package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"churchops/internal/calendar"
	"churchops/internal/clock"
	"churchops/internal/models"
	"churchops/internal/notify"
	"churchops/internal/recurrence"
	"churchops/internal/storage"
	"churchops/internal/token"
)

var testNow = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

type fakeMailer struct {
	sent []string
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.sent = append(m.sent, to)
	return nil
}

type fakeSMS struct{}

func (fakeSMS) Send(ctx context.Context, phone, message string) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, storage.Storage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	log := zerolog.Nop()
	clk := clock.Fixed(testNow)

	mailer := &fakeMailer{}
	email := notify.NewEmailChannel(mailer, "http://localhost:8080")
	sms := notify.NewSMSChannel(fakeSMS{})
	dispatcher := notify.NewDispatcher(store, email, sms, clk, log)
	svc := notify.NewService(store, dispatcher, mailer, clk, nil, log)
	registry := token.NewRegistry(store)
	expander := recurrence.NewExpander(clk, log)
	exporter := calendar.NewExporter(store, clk)

	admin := NewAdminHandler(store, expander, svc, registry, nil, clk, log)
	tokens := NewTokenHandler(registry, svc, exporter, log)

	srv := httptest.NewServer(NewRouter(admin, tokens))
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createTestServer(t *testing.T, srv *httptest.Server) *models.Server {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/servers", map[string]interface{}{
		"is_external":              true,
		"external_name":            "Carlos",
		"external_email":           "carlos@example.org",
		"position":                 "Sonido",
		"preferred_contact_method": "email",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create server status %d", resp.StatusCode)
	}
	var out models.Server
	decode(t, resp, &out)
	return &out
}

func createTestMinistry(t *testing.T, srv *httptest.Server) *models.Ministry {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/ministries", map[string]string{
		"name": "Alabanza",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create ministry status %d", resp.StatusCode)
	}
	var out models.Ministry
	decode(t, resp, &out)
	return &out
}

func assign(t *testing.T, srv *httptest.Server, ministryID, serverID string) *models.Schedule {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/schedules", map[string]string{
		"ministry_id": ministryID,
		"server_id":   serverID,
		"day_of_week": "sunday",
		"start_time":  "09:00",
		"end_time":    "11:00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create schedule status %d", resp.StatusCode)
	}
	var out models.Schedule
	decode(t, resp, &out)
	return &out
}

func notificationFor(t *testing.T, store storage.Storage, serverID string) *models.Notification {
	t.Helper()
	all, err := store.GetAllNotifications(context.Background())
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	for _, n := range all {
		if n.ServerID == serverID {
			return n
		}
	}
	t.Fatalf("no notification for server %s", serverID)
	return nil
}

func TestCreateRecurringEventExpandsInstances(t *testing.T) {
	srv, _ := newTestServer(t)

	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/events", map[string]interface{}{
		"name":                "Servicio Dominical",
		"type":                "service",
		"start_datetime":      time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC),
		"end_datetime":        time.Date(2025, 1, 5, 11, 0, 0, 0, time.UTC),
		"is_recurring":        true,
		"recurrence_type":     "weekly",
		"recurrence_end_date": end,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var created struct {
		Event     *models.Event   `json:"event"`
		Instances []*models.Event `json:"instances"`
	}
	decode(t, resp, &created)
	if len(created.Instances) != 3 {
		t.Fatalf("instances %d, want 3 (Jan 12, 19, 26)", len(created.Instances))
	}
	for _, inst := range created.Instances {
		if inst.ParentEventID != created.Event.ID {
			t.Fatalf("instance %s not linked to template", inst.ID)
		}
		if inst.IsRecurring {
			t.Fatalf("instance %s flagged recurring", inst.ID)
		}
	}

	// Template fetch returns its instances.
	getResp, err := http.Get(srv.URL + "/api/events/" + created.Event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	var fetched struct {
		Instances []*models.Event `json:"instances"`
	}
	decode(t, getResp, &fetched)
	if len(fetched.Instances) != 3 {
		t.Fatalf("fetched instances %d, want 3", len(fetched.Instances))
	}
}

func TestCreateEventRejectsBadRange(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/events", map[string]interface{}{
		"name":           "Al revés",
		"start_datetime": time.Date(2025, 1, 5, 11, 0, 0, 0, time.UTC),
		"end_datetime":   time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestScheduleAssignmentCreatesNotification(t *testing.T) {
	srv, store := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)

	assign(t, srv, m.ID, s.ID)

	n := notificationFor(t, store, s.ID)
	if n.Status != models.StatusPending {
		t.Fatalf("status %q, want pending", n.Status)
	}
	if len(n.ResponseToken) != 64 {
		t.Fatalf("token length %d, want 64", len(n.ResponseToken))
	}
	if !strings.Contains(n.Message, "Alabanza") {
		t.Fatalf("message missing ministry: %q", n.Message)
	}
}

func TestTokenViewMarksRead(t *testing.T) {
	srv, store := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)
	assign(t, srv, m.ID, s.ID)
	n := notificationFor(t, store, s.ID)

	resp, err := http.Get(srv.URL + "/n/" + n.ResponseToken)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var view struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	decode(t, resp, &view)
	if view.Status != "read" {
		t.Fatalf("view status %q, want read", view.Status)
	}

	stored, _ := store.GetNotification(context.Background(), n.ID)
	if stored.ReadAt == nil {
		t.Fatal("read_at not recorded")
	}
}

func TestTokenViewUnknownToken(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/n/" + strings.Repeat("f", 64))
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestTokenRespond(t *testing.T) {
	srv, store := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)
	assign(t, srv, m.ID, s.ID)
	n := notificationFor(t, store, s.ID)

	resp := doJSON(t, http.MethodPost, srv.URL+"/n/"+n.ResponseToken+"/response", map[string]string{
		"action":  "confirmed",
		"message": "ahí estaré",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var ack struct {
		Message string `json:"message"`
	}
	decode(t, resp, &ack)
	if ack.Message == "" {
		t.Fatal("empty acknowledgement")
	}

	stored, _ := store.GetNotification(context.Background(), n.ID)
	if stored.ResponseStatus != models.ResponseConfirmed {
		t.Fatalf("response %q, want confirmed", stored.ResponseStatus)
	}

	bad := doJSON(t, http.MethodPost, srv.URL+"/n/"+n.ResponseToken+"/response", map[string]string{
		"action": "yes",
	})
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid action status %d, want 400", bad.StatusCode)
	}
}

func TestTokenCalendarEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)
	assign(t, srv, m.ID, s.ID)
	n := notificationFor(t, store, s.ID)

	resp, err := http.Get(srv.URL + "/n/" + n.ResponseToken + "/calendar.ics")
	if err != nil {
		t.Fatalf("ics: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ics status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type %q", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(buf.String(), "BEGIN:VCALENDAR") {
		t.Fatalf("not an ICS payload:\n%s", buf.String())
	}

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	gresp, err := client.Get(srv.URL + "/n/" + n.ResponseToken + "/calendar/google")
	if err != nil {
		t.Fatalf("google: %v", err)
	}
	defer gresp.Body.Close()
	if gresp.StatusCode != http.StatusFound {
		t.Fatalf("google status %d, want 302", gresp.StatusCode)
	}
	if loc := gresp.Header.Get("Location"); !strings.Contains(loc, "calendar.google.com") {
		t.Fatalf("google location %q", loc)
	}

	oresp, err := client.Get(srv.URL + "/n/" + n.ResponseToken + "/calendar/outlook")
	if err != nil {
		t.Fatalf("outlook: %v", err)
	}
	defer oresp.Body.Close()
	if oresp.StatusCode != http.StatusFound {
		t.Fatalf("outlook status %d, want 302", oresp.StatusCode)
	}
	if loc := oresp.Header.Get("Location"); !strings.Contains(loc, "outlook.live.com") {
		t.Fatalf("outlook location %q", loc)
	}
}

func TestRegenerateServerToken(t *testing.T) {
	srv, store := newTestServer(t)
	s := createTestServer(t, srv)
	old := s.NotificationToken

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/servers/"+s.ID+"/token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"notification_token"`
	}
	decode(t, resp, &out)
	if out.Token == old || len(out.Token) != 64 {
		t.Fatalf("regenerated token %q", out.Token)
	}

	if _, err := store.GetServerByToken(context.Background(), old); err == nil {
		t.Fatal("old token still resolves")
	}
}

func TestRegenerateTokenUnknownServer(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/servers/no-such-server/token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404 for a missing server", resp.StatusCode)
	}
}

func TestTokenViewShowsStoredStatusAfterRead(t *testing.T) {
	srv, store := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)
	assign(t, srv, m.ID, s.ID)
	n := notificationFor(t, store, s.ID)

	// A failed delivery does not stop the recipient from opening the
	// link; the view must reflect the read transition it just caused.
	if err := store.UpdateNotification(context.Background(), n.ID, func(n *models.Notification) {
		n.Status = models.StatusFailed
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	resp, err := http.Get(srv.URL + "/n/" + n.ResponseToken)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	var view struct {
		Status string `json:"status"`
	}
	decode(t, resp, &view)
	if view.Status != "read" {
		t.Fatalf("view status %q, want read", view.Status)
	}

	stored, _ := store.GetNotification(context.Background(), n.ID)
	if stored.Status != models.StatusRead {
		t.Fatalf("stored status %q, want read", stored.Status)
	}
}

func TestReminderAndBatchSend(t *testing.T) {
	srv, store := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)
	assign(t, srv, m.ID, s.ID)
	n := notificationFor(t, store, s.ID)

	resp := doJSON(t, http.MethodPost, srv.URL+fmt.Sprintf("/api/notifications/%s/reminder", n.ID), map[string]int{
		"hours_before": 2,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("reminder status %d", resp.StatusCode)
	}
	var rem models.Notification
	decode(t, resp, &rem)
	want := testNow.Add(2 * time.Hour)
	if rem.ScheduledFor == nil || !rem.ScheduledFor.Equal(want) {
		t.Fatalf("scheduled_for %v, want %v", rem.ScheduledFor, want)
	}

	// The batch send delivers the assignment but not the future reminder.
	sendResp := doJSON(t, http.MethodPost, srv.URL+"/api/notifications/send", nil)
	var counts map[string]int
	decode(t, sendResp, &counts)
	if counts["sent_pending"] != 1 {
		t.Fatalf("sent_pending %d, want 1", counts["sent_pending"])
	}
	if counts["sent_reminders"] != 0 {
		t.Fatalf("sent_reminders %d, want 0", counts["sent_reminders"])
	}

	stored, _ := store.GetNotification(context.Background(), n.ID)
	if stored.Status != models.StatusSent {
		t.Fatalf("assignment status %q, want sent", stored.Status)
	}
}

func TestMetricsCountsByStatus(t *testing.T) {
	srv, store := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)
	assign(t, srv, m.ID, s.ID)

	resp, err := http.Get(srv.URL + "/api/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	var stats map[string]int
	decode(t, resp, &stats)
	if stats["total"] != 1 || stats["pending"] != 1 {
		t.Fatalf("stats %v", stats)
	}

	n := notificationFor(t, store, s.ID)
	doJSON(t, http.MethodPost, srv.URL+"/api/notifications/send", nil)
	resp, err = http.Get(srv.URL + "/api/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	decode(t, resp, &stats)
	if stats["sent"] != 1 {
		t.Fatalf("sent %d after dispatch of %s", stats["sent"], n.ID)
	}
}

func TestCreateInternalServerCachesUserContact(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users", map[string]string{
		"name":  "María",
		"email": "maria@example.org",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d", resp.StatusCode)
	}
	var u models.User
	decode(t, resp, &u)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/servers", map[string]interface{}{
		"user_id":  u.ID,
		"position": "Voz",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create server status %d", resp.StatusCode)
	}
	var out models.Server
	decode(t, resp, &out)
	if out.UserName != "María" || out.UserEmail != "maria@example.org" {
		t.Fatalf("cached contact %q %q", out.UserName, out.UserEmail)
	}
	if out.ContactEmail() != "maria@example.org" {
		t.Fatalf("contact email %q", out.ContactEmail())
	}
}

func TestCancelRecurringEventCancelsInstances(t *testing.T) {
	srv, store := newTestServer(t)

	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/events", map[string]interface{}{
		"name":                "Servicio Dominical",
		"type":                "service",
		"start_datetime":      time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC),
		"end_datetime":        time.Date(2025, 1, 5, 11, 0, 0, 0, time.UTC),
		"is_recurring":        true,
		"recurrence_type":     "weekly",
		"recurrence_end_date": end,
	})
	var created struct {
		Event     *models.Event   `json:"event"`
		Instances []*models.Event `json:"instances"`
	}
	decode(t, resp, &created)

	cresp := doJSON(t, http.MethodPost, srv.URL+"/api/events/"+created.Event.ID+"/cancel", nil)
	defer cresp.Body.Close()
	if cresp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel status %d", cresp.StatusCode)
	}

	e, _ := store.GetEvent(context.Background(), created.Event.ID)
	if e.Status != models.EventCancelled {
		t.Fatalf("template status %q", e.Status)
	}
	for _, inst := range created.Instances {
		got, _ := store.GetEvent(context.Background(), inst.ID)
		if got.Status != models.EventCancelled {
			t.Fatalf("instance %s status %q", inst.ID, got.Status)
		}
	}
}

func TestEventSchedulesListing(t *testing.T) {
	srv, _ := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/events", map[string]interface{}{
		"name":           "Noche de Oración",
		"type":           "special",
		"start_datetime": time.Date(2025, 1, 10, 19, 0, 0, 0, time.UTC),
		"end_datetime":   time.Date(2025, 1, 10, 21, 0, 0, 0, time.UTC),
	})
	var created struct {
		Event *models.Event `json:"event"`
	}
	decode(t, resp, &created)

	cresp := doJSON(t, http.MethodPost, srv.URL+"/api/events/"+created.Event.ID+"/schedules", map[string]string{
		"ministry_id": m.ID,
		"server_id":   s.ID,
	})
	if cresp.StatusCode != http.StatusCreated {
		t.Fatalf("create schedule status %d", cresp.StatusCode)
	}
	cresp.Body.Close()

	lresp, err := http.Get(srv.URL + "/api/events/" + created.Event.ID + "/schedules")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var schedules []*models.Schedule
	decode(t, lresp, &schedules)
	if len(schedules) != 1 {
		t.Fatalf("schedules %d, want 1", len(schedules))
	}
	if schedules[0].EventID != created.Event.ID {
		t.Fatalf("schedule event %q", schedules[0].EventID)
	}
}

func TestMarkDeliveredWebhook(t *testing.T) {
	srv, store := newTestServer(t)
	m := createTestMinistry(t, srv)
	s := createTestServer(t, srv)
	assign(t, srv, m.ID, s.ID)
	n := notificationFor(t, store, s.ID)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/notifications/"+n.ID+"/delivered", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status %d, want 204", resp.StatusCode)
	}
	stored, _ := store.GetNotification(context.Background(), n.ID)
	if stored.Status != models.StatusDelivered || stored.DeliveredAt == nil {
		t.Fatalf("status %q delivered_at %v", stored.Status, stored.DeliveredAt)
	}
}
