package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"churchops/internal/clock"
	"churchops/internal/models"
	"churchops/internal/storage"
	"churchops/internal/token"
)

// MaxResponseMessageLen bounds the free-text message a recipient may attach
// to a response.
const MaxResponseMessageLen = 500

var (
	ErrInvalidAction  = errors.New("notify: invalid response action")
	ErrMessageTooLong = errors.New("notify: response message too long")
)

// Service owns notification creation, the response workflow and the batch
// entry points. Actual channel delivery is the Dispatcher's job.
type Service struct {
	store       storage.Storage
	dispatcher  *Dispatcher
	mailer      Mailer
	clock       clock.Clock
	adminEmails []string
	log         zerolog.Logger
}

func NewService(store storage.Storage, dispatcher *Dispatcher, mailer Mailer, clk clock.Clock, adminEmails []string, log zerolog.Logger) *Service {
	return &Service{
		store:       store,
		dispatcher:  dispatcher,
		mailer:      mailer,
		clock:       clk,
		adminEmails: adminEmails,
		log:         log.With().Str("component", "notify").Logger(),
	}
}

// NotifyAssignment creates a pending assignment notification for a server's
// new schedule slot.
func (s *Service) NotifyAssignment(ctx context.Context, serverID, scheduleID string) (*models.Notification, error) {
	srv, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("load server: %w", err)
	}
	sch, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	ministryName := s.ministryName(ctx, sch.MinistryID)

	n := s.newNotification(srv, models.TypeAssignment, "Nueva Asignación de Servicio",
		assignmentScheduleMessage(srv, sch, ministryName))
	n.ScheduleID = sch.ID

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// NotifyEvent creates a pending assignment notification for a specific
// event.
func (s *Service) NotifyEvent(ctx context.Context, serverID, eventID string) (*models.Notification, error) {
	srv, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("load server: %w", err)
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}

	n := s.newNotification(srv, models.TypeAssignment, "Nueva Asignación de Evento",
		assignmentEventMessage(srv, e))
	n.EventID = e.ID

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// CreateReminder schedules a reminder for an existing notification,
// hoursBefore hours from now. Something external (the worker's sweep) must
// pick it up when due.
func (s *Service) CreateReminder(ctx context.Context, notificationID string, hoursBefore int) (*models.Notification, error) {
	orig, err := s.store.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("load notification: %w", err)
	}
	srv, err := s.store.GetServer(ctx, orig.ServerID)
	if err != nil {
		return nil, fmt.Errorf("load server: %w", err)
	}

	if hoursBefore <= 0 {
		hoursBefore = 24
	}
	due := s.clock.Now().Add(time.Duration(hoursBefore) * time.Hour)

	var sch *models.Schedule
	var e *models.Event
	ministryName := ""
	if orig.ScheduleID != "" {
		if sch, err = s.store.GetSchedule(ctx, orig.ScheduleID); err == nil {
			ministryName = s.ministryName(ctx, sch.MinistryID)
		} else {
			sch = nil
		}
	}
	if orig.EventID != "" {
		if e, err = s.store.GetEvent(ctx, orig.EventID); err != nil {
			e = nil
		}
	}

	n := s.newNotification(srv, models.TypeReminder, "Recordatorio de Servicio",
		reminderMessage(sch, ministryName, e))
	n.ScheduleID = orig.ScheduleID
	n.EventID = orig.EventID
	n.ScheduledFor = &due

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return n, nil
}

func (s *Service) newNotification(srv *models.Server, nType models.NotificationType, title, message string) *models.Notification {
	now := s.clock.Now()
	return &models.Notification{
		ID:             uuid.NewString(),
		ServerID:       srv.ID,
		Type:           nType,
		Title:          title,
		Message:        message,
		DeliveryMethod: srv.PreferredContactMethod,
		Status:         models.StatusPending,
		ResponseToken:  token.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Service) ministryName(ctx context.Context, ministryID string) string {
	if ministryID == "" {
		return ""
	}
	m, err := s.store.GetMinistry(ctx, ministryID)
	if err != nil {
		s.log.Warn().Err(err).Str("ministry_id", ministryID).Msg("cannot load ministry for message")
		return ""
	}
	return m.Name
}

// MarkRead records the first view of a notification through its token.
// Later views change nothing.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	now := s.clock.Now()
	return s.store.UpdateNotification(ctx, id, func(n *models.Notification) {
		if n.ReadAt == nil {
			n.ReadAt = &now
			n.Status = models.StatusRead
		}
	})
}

// MarkDelivered records an external delivery confirmation (webhook).
func (s *Service) MarkDelivered(ctx context.Context, id string) error {
	now := s.clock.Now()
	return s.store.UpdateNotification(ctx, id, func(n *models.Notification) {
		n.Status = models.StatusDelivered
		n.DeliveredAt = &now
	})
}

// RecordResponse stores a recipient's answer. Responses are mutable: a
// later submission overwrites the previous one and refreshes the
// timestamp. Returns the localized acknowledgement for the recipient.
func (s *Service) RecordResponse(ctx context.Context, notificationID, action, message string) (string, error) {
	if !models.ValidResponse(action) {
		return "", ErrInvalidAction
	}
	if len([]rune(message)) > MaxResponseMessageLen {
		return "", ErrMessageTooLong
	}

	status := models.ResponseStatus(action)
	now := s.clock.Now()
	err := s.store.UpdateNotification(ctx, notificationID, func(n *models.Notification) {
		n.ResponseStatus = status
		n.ResponseMessage = message
		n.RespondedAt = &now
	})
	if err != nil {
		return "", err
	}

	s.notifyAdminsOfResponse(ctx, notificationID)
	return responseAck(status), nil
}

// notifyAdminsOfResponse emails the configured administrators about a
// server's response. Best effort: failures are logged only.
func (s *Service) notifyAdminsOfResponse(ctx context.Context, notificationID string) {
	if s.mailer == nil || len(s.adminEmails) == 0 {
		return
	}
	n, err := s.store.GetNotification(ctx, notificationID)
	if err != nil {
		s.log.Error().Err(err).Str("notification_id", notificationID).Msg("cannot load notification for admin mail")
		return
	}
	srv, err := s.store.GetServer(ctx, n.ServerID)
	if err != nil {
		s.log.Error().Err(err).Str("server_id", n.ServerID).Msg("cannot load server for admin mail")
		return
	}

	subject := fmt.Sprintf("Respuesta de Servidor: %s", srv.DisplayName())
	body := fmt.Sprintf("%s ha respondido \"%s\" a la notificación \"%s\".\n",
		srv.DisplayName(), n.ResponseStatus, n.Title)
	if n.ResponseMessage != "" {
		body += fmt.Sprintf("\nMensaje: %s\n", n.ResponseMessage)
	}

	for _, admin := range s.adminEmails {
		if err := s.mailer.Send(ctx, admin, subject, body); err != nil {
			s.log.Error().Err(err).Str("admin", admin).Msg("cannot mail admin about response")
		}
	}
}

// SendPending dispatches every pending notification without a scheduled
// time. Each candidate is processed independently; one recipient's failure
// never aborts the batch. Returns the number sent.
func (s *Service) SendPending(ctx context.Context) int {
	pending, err := s.store.GetPendingNotifications(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("cannot list pending notifications")
		return 0
	}
	return s.dispatchAll(ctx, pending, "pending")
}

// SendDueReminders dispatches every pending notification whose scheduled
// time has arrived.
func (s *Service) SendDueReminders(ctx context.Context) int {
	due, err := s.store.GetDueNotifications(ctx, s.clock.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("cannot list due reminders")
		return 0
	}
	return s.dispatchAll(ctx, due, "due")
}

func (s *Service) dispatchAll(ctx context.Context, batch []*models.Notification, kind string) int {
	sent := 0
	for _, n := range batch {
		if s.dispatcher.Dispatch(ctx, n.ID) {
			sent++
		}
	}
	if len(batch) > 0 {
		s.log.Info().Str("kind", kind).Int("candidates", len(batch)).Int("sent", sent).
			Msg("batch send completed")
	}
	return sent
}
