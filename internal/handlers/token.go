package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"churchops/internal/calendar"
	"churchops/internal/models"
	"churchops/internal/notify"
	"churchops/internal/token"
)

// TokenHandler serves the unauthenticated recipient surface. Possession
// of a response token is the sole credential; an unknown token is a
// plain 404 with no hint whether it ever existed.
type TokenHandler struct {
	tokens   *token.Registry
	notify   *notify.Service
	exporter *calendar.Exporter
	log      zerolog.Logger
}

func NewTokenHandler(tokens *token.Registry, svc *notify.Service, exporter *calendar.Exporter, log zerolog.Logger) *TokenHandler {
	return &TokenHandler{
		tokens:   tokens,
		notify:   svc,
		exporter: exporter,
		log:      log.With().Str("component", "token").Logger(),
	}
}

func (h *TokenHandler) resolve(w http.ResponseWriter, r *http.Request) *models.Notification {
	n, err := h.tokens.ResolveNotification(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
		} else {
			http.Error(w, "Failed to resolve token", http.StatusInternalServerError)
		}
		return nil
	}
	return n
}

type notificationView struct {
	ID              string                    `json:"id"`
	Type            models.NotificationType   `json:"type"`
	Title           string                    `json:"title"`
	Message         string                    `json:"message"`
	Status          models.NotificationStatus `json:"status"`
	ResponseStatus  models.ResponseStatus     `json:"response_status,omitempty"`
	ResponseMessage string                    `json:"response_message,omitempty"`
}

// View shows the notification to its recipient. The first view marks it
// read; later views are no-ops.
func (h *TokenHandler) View(w http.ResponseWriter, r *http.Request) {
	n := h.resolve(w, r)
	if n == nil {
		return
	}

	if err := h.notify.MarkRead(r.Context(), n.ID); err != nil {
		h.log.Error().Err(err).Str("notification_id", n.ID).Msg("cannot mark read")
	} else if fresh, err := h.tokens.ResolveNotification(r.Context(), chi.URLParam(r, "token")); err == nil {
		// Show what the store holds after the read transition.
		n = fresh
	}

	writeJSON(w, http.StatusOK, notificationView{
		ID:              n.ID,
		Type:            n.Type,
		Title:           n.Title,
		Message:         n.Message,
		Status:          n.Status,
		ResponseStatus:  n.ResponseStatus,
		ResponseMessage: n.ResponseMessage,
	})
}

type respondRequest struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Respond records the recipient's answer. Resubmitting is allowed and
// overwrites the previous answer.
func (h *TokenHandler) Respond(w http.ResponseWriter, r *http.Request) {
	n := h.resolve(w, r)
	if n == nil {
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ack, err := h.notify.RecordResponse(r.Context(), n.ID, req.Action, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrInvalidAction):
			http.Error(w, "Invalid action", http.StatusBadRequest)
		case errors.Is(err, notify.ErrMessageTooLong):
			http.Error(w, "Message too long", http.StatusBadRequest)
		default:
			http.Error(w, "Failed to record response", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": ack})
}

func (h *TokenHandler) describe(w http.ResponseWriter, r *http.Request) (*models.Notification, *calendar.EventDetails) {
	n := h.resolve(w, r)
	if n == nil {
		return nil, nil
	}
	d, err := h.exporter.Describe(r.Context(), n)
	if err != nil {
		if errors.Is(err, calendar.ErrNoAssociatedEvent) {
			http.Error(w, "Notification has no calendar entry", http.StatusNotFound)
		} else {
			http.Error(w, "Failed to build calendar entry", http.StatusInternalServerError)
		}
		return nil, nil
	}
	return n, d
}

// CalendarICS downloads the notification's event as an iCalendar file.
func (h *TokenHandler) CalendarICS(w http.ResponseWriter, r *http.Request) {
	n, d := h.describe(w, r)
	if d == nil {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="evento.ics"`)
	w.Write([]byte(h.exporter.ICS(d, n.ID, r.Host)))
}

func (h *TokenHandler) CalendarGoogle(w http.ResponseWriter, r *http.Request) {
	_, d := h.describe(w, r)
	if d == nil {
		return
	}
	http.Redirect(w, r, h.exporter.GoogleURL(d), http.StatusFound)
}

func (h *TokenHandler) CalendarOutlook(w http.ResponseWriter, r *http.Request) {
	_, d := h.describe(w, r)
	if d == nil {
		return
	}
	http.Redirect(w, r, h.exporter.OutlookURL(d), http.StatusFound)
}
