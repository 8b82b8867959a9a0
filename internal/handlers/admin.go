package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"churchops/internal/clock"
	"churchops/internal/models"
	"churchops/internal/notify"
	"churchops/internal/recurrence"
	"churchops/internal/storage"
	"churchops/internal/token"
)

// Enqueuer is the slice of the queue manager the handlers need. Nil is
// allowed: without a broker, notifications wait for the batch send.
type Enqueuer interface {
	Publish(ctx context.Context, notificationID string) error
	PublishDelayed(ctx context.Context, notificationID string, sendAt time.Time) error
}

// AdminHandler serves the authenticated administration API: ministries,
// servers, events with recurrence expansion, schedules and the
// notification management endpoints.
type AdminHandler struct {
	store    storage.Storage
	expander *recurrence.Expander
	notify   *notify.Service
	tokens   *token.Registry
	queue    Enqueuer
	clock    clock.Clock
	log      zerolog.Logger
}

func NewAdminHandler(store storage.Storage, expander *recurrence.Expander, svc *notify.Service, tokens *token.Registry, q Enqueuer, clk clock.Clock, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		store:    store,
		expander: expander,
		notify:   svc,
		tokens:   tokens,
		queue:    q,
		clock:    clk,
		log:      log.With().Str("component", "admin").Logger(),
	}
}

type createMinistryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *AdminHandler) CreateMinistry(w http.ResponseWriter, r *http.Request) {
	var req createMinistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	now := h.clock.Now()
	m := &models.Ministry{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateMinistry(r.Context(), m); err != nil {
		http.Error(w, "Failed to create ministry", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *AdminHandler) GetAllMinistries(w http.ResponseWriter, r *http.Request) {
	ministries, err := h.store.GetAllMinistries(r.Context())
	if err != nil {
		http.Error(w, "Failed to get ministries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ministries)
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Email == "" {
		http.Error(w, "Name and email are required", http.StatusBadRequest)
		return
	}

	u := &models.User{
		ID:    uuid.NewString(),
		Name:  req.Name,
		Email: req.Email,
	}
	if err := h.store.CreateUser(r.Context(), u); err != nil {
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type createServerRequest struct {
	UserID     string `json:"user_id"`
	MinistryID string `json:"ministry_id"`
	Position   string `json:"position"`

	IsExternal    bool   `json:"is_external"`
	ExternalName  string `json:"external_name"`
	ExternalEmail string `json:"external_email"`
	ExternalPhone string `json:"external_phone"`

	EmailNotifications     *bool                `json:"email_notifications"`
	SMSNotifications       *bool                `json:"sms_notifications"`
	PreferredContactMethod models.ContactMethod `json:"preferred_contact_method"`
}

func (h *AdminHandler) CreateServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IsExternal && req.ExternalName == "" {
		http.Error(w, "External servers need a name", http.StatusBadRequest)
		return
	}
	if !req.IsExternal && req.UserID == "" {
		http.Error(w, "Internal servers need a user_id", http.StatusBadRequest)
		return
	}

	method := req.PreferredContactMethod
	switch method {
	case models.ContactEmail, models.ContactSMS, models.ContactBoth:
	case "":
		method = models.ContactEmail
	default:
		http.Error(w, "Invalid preferred_contact_method", http.StatusBadRequest)
		return
	}

	now := h.clock.Now()
	srv := &models.Server{
		ID:                     uuid.NewString(),
		UserID:                 req.UserID,
		MinistryID:             req.MinistryID,
		Position:               req.Position,
		IsActive:               true,
		IsExternal:             req.IsExternal,
		ExternalName:           req.ExternalName,
		ExternalEmail:          req.ExternalEmail,
		ExternalPhone:          req.ExternalPhone,
		EmailNotifications:     true,
		SMSNotifications:       false,
		PreferredContactMethod: method,
		NotificationToken:      token.New(),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if req.EmailNotifications != nil {
		srv.EmailNotifications = *req.EmailNotifications
	}
	if req.SMSNotifications != nil {
		srv.SMSNotifications = *req.SMSNotifications
	}

	if !req.IsExternal {
		u, err := h.store.GetUser(ctx, req.UserID)
		if err != nil {
			http.Error(w, "User not found", http.StatusBadRequest)
			return
		}
		srv.UserName = u.Name
		srv.UserEmail = u.Email
	}

	if err := h.store.CreateServer(ctx, srv); err != nil {
		http.Error(w, "Failed to create server", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, srv)
}

func (h *AdminHandler) GetAllServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.store.GetAllServers(r.Context())
	if err != nil {
		http.Error(w, "Failed to get servers", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

// RegenerateServerToken issues a fresh profile token for a server. The
// old token stops resolving immediately.
func (h *AdminHandler) RegenerateServerToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tok, err := h.tokens.RegenerateServerToken(r.Context(), id)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			http.Error(w, "Server not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to regenerate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"notification_token": tok})
}

type createEventRequest struct {
	Name               string                   `json:"name"`
	Description        string                   `json:"description"`
	Type               models.EventType         `json:"type"`
	StartDatetime      time.Time                `json:"start_datetime"`
	EndDatetime        time.Time                `json:"end_datetime"`
	Location           string                   `json:"location"`
	RequiredMinistries []string                 `json:"required_ministries"`
	IsRecurring        bool                     `json:"is_recurring"`
	RecurrenceType     models.RecurrenceType    `json:"recurrence_type"`
	RecurrenceConfig   *models.RecurrenceConfig `json:"recurrence_config"`
	RecurrenceEndDate  *time.Time               `json:"recurrence_end_date"`
}

type createEventResponse struct {
	Event     *models.Event   `json:"event"`
	Instances []*models.Event `json:"instances,omitempty"`
}

// CreateEvent stores an event and, for a recurring template, expands and
// stores its instances in the same request. Template plus instances are
// persisted together; an expansion or storage failure leaves nothing
// behind.
func (h *AdminHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}
	if req.StartDatetime.IsZero() || req.EndDatetime.IsZero() {
		http.Error(w, "start_datetime and end_datetime are required", http.StatusBadRequest)
		return
	}
	if !req.EndDatetime.After(req.StartDatetime) {
		http.Error(w, "end_datetime must be after start_datetime", http.StatusBadRequest)
		return
	}

	now := h.clock.Now()
	e := &models.Event{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Description:        req.Description,
		Type:               req.Type,
		StartDatetime:      req.StartDatetime,
		EndDatetime:        req.EndDatetime,
		Location:           req.Location,
		RequiredMinistries: req.RequiredMinistries,
		Status:             models.EventPlanned,
		IsRecurring:        req.IsRecurring,
		RecurrenceType:     req.RecurrenceType,
		RecurrenceConfig:   req.RecurrenceConfig,
		RecurrenceEndDate:  req.RecurrenceEndDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if e.Type == "" {
		e.Type = models.EventService
	}

	instances, err := h.expander.Expand(e)
	if err != nil {
		http.Error(w, "Failed to expand recurrence", http.StatusBadRequest)
		return
	}

	batch := append([]*models.Event{e}, instances...)
	if err := h.store.CreateEventsBatch(ctx, batch); err != nil {
		http.Error(w, "Failed to create event", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("event_id", e.ID).Int("instances", len(instances)).Msg("event created")
	writeJSON(w, http.StatusCreated, createEventResponse{Event: e, Instances: instances})
}

func (h *AdminHandler) GetAllEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.GetAllEvents(r.Context())
	if err != nil {
		http.Error(w, "Failed to get events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *AdminHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	e, err := h.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get event", http.StatusInternalServerError)
		return
	}

	resp := createEventResponse{Event: e}
	if e.IsRecurring {
		children, err := h.store.GetChildEvents(ctx, e.ID)
		if err != nil {
			http.Error(w, "Failed to get event instances", http.StatusInternalServerError)
			return
		}
		resp.Instances = children
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelEvent marks an event cancelled. For a recurring template the
// generated instances that are still planned are cancelled with it.
func (h *AdminHandler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	e, err := h.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get event", http.StatusInternalServerError)
		return
	}

	cancel := func(e *models.Event) {
		e.Status = models.EventCancelled
	}
	if err := h.store.UpdateEvent(ctx, id, cancel); err != nil {
		http.Error(w, "Failed to cancel event", http.StatusInternalServerError)
		return
	}

	if e.IsRecurring {
		children, err := h.store.GetChildEvents(ctx, id)
		if err != nil {
			http.Error(w, "Failed to get event instances", http.StatusInternalServerError)
			return
		}
		for _, child := range children {
			if child.Status != models.EventPlanned {
				continue
			}
			if err := h.store.UpdateEvent(ctx, child.ID, cancel); err != nil {
				h.log.Error().Err(err).Str("event_id", child.ID).Msg("cannot cancel instance")
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) GetEventSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetEvent(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get event", http.StatusInternalServerError)
		return
	}

	schedules, err := h.store.GetSchedulesByEvent(ctx, id)
	if err != nil {
		http.Error(w, "Failed to get schedules", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

type createScheduleRequest struct {
	EventID    string `json:"event_id"`
	MinistryID string `json:"ministry_id"`
	ServerID   string `json:"server_id"`
	DayOfWeek  string `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Notes      string `json:"notes"`
}

// CreateSchedule assigns a server to a slot and fires the assignment
// notification. Delivery is fire and forget: an enqueue failure is
// logged, the assignment itself stands.
func (h *AdminHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if eventID := chi.URLParam(r, "id"); eventID != "" {
		req.EventID = eventID
	}
	h.createSchedule(w, r, req)
}

func (h *AdminHandler) createSchedule(w http.ResponseWriter, r *http.Request, req createScheduleRequest) {
	ctx := r.Context()
	if req.MinistryID == "" {
		http.Error(w, "ministry_id is required", http.StatusBadRequest)
		return
	}
	if req.EventID == "" && (req.DayOfWeek == "" || req.StartTime == "" || req.EndTime == "") {
		http.Error(w, "Standalone schedules need day_of_week, start_time and end_time", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetMinistry(ctx, req.MinistryID); err != nil {
		http.Error(w, "Ministry not found", http.StatusBadRequest)
		return
	}
	if req.EventID != "" {
		if _, err := h.store.GetEvent(ctx, req.EventID); err != nil {
			http.Error(w, "Event not found", http.StatusBadRequest)
			return
		}
	}

	now := h.clock.Now()
	sch := &models.Schedule{
		ID:         uuid.NewString(),
		EventID:    req.EventID,
		MinistryID: req.MinistryID,
		ServerID:   req.ServerID,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Notes:      req.Notes,
		Status:     models.ScheduleAssigned,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.CreateSchedule(ctx, sch); err != nil {
		http.Error(w, "Failed to create schedule", http.StatusInternalServerError)
		return
	}

	if sch.ServerID != "" {
		var (
			n   *models.Notification
			err error
		)
		if sch.EventID != "" {
			n, err = h.notify.NotifyEvent(ctx, sch.ServerID, sch.EventID)
		} else {
			n, err = h.notify.NotifyAssignment(ctx, sch.ServerID, sch.ID)
		}
		if err != nil {
			h.log.Error().Err(err).Str("schedule_id", sch.ID).Msg("cannot create assignment notification")
		} else {
			if sch.EventID != "" {
				// Event notifications also link back to their schedule so
				// reminders can reuse either reference.
				if uerr := h.store.UpdateNotification(ctx, n.ID, func(n *models.Notification) {
					n.ScheduleID = sch.ID
				}); uerr != nil {
					h.log.Error().Err(uerr).Str("notification_id", n.ID).Msg("cannot link schedule")
				}
			}
			h.enqueue(ctx, n.ID)
		}
	}

	writeJSON(w, http.StatusCreated, sch)
}

func (h *AdminHandler) enqueue(ctx context.Context, notificationID string) {
	if h.queue == nil {
		return
	}
	if err := h.queue.Publish(ctx, notificationID); err != nil {
		h.log.Error().Err(err).Str("notification_id", notificationID).Msg("cannot enqueue notification")
	}
}

func (h *AdminHandler) GetAllNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.store.GetAllNotifications(r.Context())
	if err != nil {
		http.Error(w, "Failed to get notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *AdminHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.store.GetNotification(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get notification", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

type createReminderRequest struct {
	HoursBefore int `json:"hours_before"`
}

func (h *AdminHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req createReminderRequest
	if r.Body != nil {
		// An empty body means the 24h default.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	rem, err := h.notify.CreateReminder(ctx, id, req.HoursBefore)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to create reminder", http.StatusInternalServerError)
		return
	}

	if h.queue != nil && rem.ScheduledFor != nil {
		if err := h.queue.PublishDelayed(ctx, rem.ID, *rem.ScheduledFor); err != nil {
			h.log.Error().Err(err).Str("notification_id", rem.ID).Msg("cannot enqueue reminder")
		}
	}
	writeJSON(w, http.StatusCreated, rem)
}

// MarkDelivered is the inbound webhook for delivery confirmations from an
// external gateway.
func (h *AdminHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.notify.MarkDelivered(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to mark delivered", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendNow runs the pending and due batches synchronously.
func (h *AdminHandler) SendNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pending := h.notify.SendPending(ctx)
	due := h.notify.SendDueReminders(ctx)
	writeJSON(w, http.StatusOK, map[string]int{
		"sent_pending":   pending,
		"sent_reminders": due,
	})
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Metrics reports notification counts by status.
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.store.GetAllNotifications(r.Context())
	if err != nil {
		http.Error(w, "Failed to get metrics", http.StatusInternalServerError)
		return
	}

	stats := map[string]int{
		"total":     len(notifications),
		"pending":   0,
		"sent":      0,
		"delivered": 0,
		"failed":    0,
		"read":      0,
	}
	for _, n := range notifications {
		stats[string(n.Status)]++
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
