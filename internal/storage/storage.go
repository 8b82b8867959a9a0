package storage

import (
	"context"
	"errors"
	"time"

	"churchops/internal/models"
)

// ErrNotFound is returned for any lookup miss, including token lookups.
// Callers must never receive a default or partial record instead.
var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	CreateMinistry(ctx context.Context, m *models.Ministry) error
	GetMinistry(ctx context.Context, id string) (*models.Ministry, error)
	GetAllMinistries(ctx context.Context) ([]*models.Ministry, error)

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	CreateServer(ctx context.Context, s *models.Server) error
	GetServer(ctx context.Context, id string) (*models.Server, error)
	GetAllServers(ctx context.Context) ([]*models.Server, error)
	UpdateServer(ctx context.Context, id string, updateFn func(*models.Server)) error
	GetServerByToken(ctx context.Context, token string) (*models.Server, error)

	CreateEvent(ctx context.Context, e *models.Event) error
	// CreateEventsBatch persists all events or none of them.
	CreateEventsBatch(ctx context.Context, events []*models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetAllEvents(ctx context.Context) ([]*models.Event, error)
	UpdateEvent(ctx context.Context, id string, updateFn func(*models.Event)) error
	GetChildEvents(ctx context.Context, parentID string) ([]*models.Event, error)

	CreateSchedule(ctx context.Context, s *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	GetSchedulesByEvent(ctx context.Context, eventID string) ([]*models.Schedule, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	GetAllNotifications(ctx context.Context) ([]*models.Notification, error)
	UpdateNotification(ctx context.Context, id string, updateFn func(*models.Notification)) error
	GetNotificationByToken(ctx context.Context, token string) (*models.Notification, error)
	// GetPendingNotifications returns pending notifications with no
	// scheduled_for timestamp (the "send all pending" batch input).
	GetPendingNotifications(ctx context.Context) ([]*models.Notification, error)
	// GetDueNotifications returns pending notifications whose
	// scheduled_for is at or before now (the "send due reminders" input).
	GetDueNotifications(ctx context.Context, now time.Time) ([]*models.Notification, error)
}
