package storage

import (
	"context"
	"sync"
	"time"

	"churchops/internal/models"
)

// MemoryStorage keeps everything in process memory. Used by tests and for
// local development without Redis or a database file.
type MemoryStorage struct {
	mu            sync.RWMutex
	ministries    map[string]*models.Ministry
	users         map[string]*models.User
	servers       map[string]*models.Server
	events        map[string]*models.Event
	schedules     map[string]*models.Schedule
	notifications map[string]*models.Notification
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		ministries:    make(map[string]*models.Ministry),
		users:         make(map[string]*models.User),
		servers:       make(map[string]*models.Server),
		events:        make(map[string]*models.Event),
		schedules:     make(map[string]*models.Schedule),
		notifications: make(map[string]*models.Notification),
	}
}

func (s *MemoryStorage) CreateMinistry(ctx context.Context, m *models.Ministry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ministries[m.ID] = m
	return nil
}

func (s *MemoryStorage) GetMinistry(ctx context.Context, id string) (*models.Ministry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.ministries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStorage) GetAllMinistries(ctx context.Context) ([]*models.Ministry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Ministry, 0, len(s.ministries))
	for _, m := range s.ministries {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStorage) CreateServer(ctx context.Context, srv *models.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[srv.ID] = srv
	return nil
}

func (s *MemoryStorage) GetServer(ctx context.Context, id string) (*models.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.servers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return srv, nil
}

func (s *MemoryStorage) GetAllServers(ctx context.Context) ([]*models.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, srv)
	}
	return out, nil
}

func (s *MemoryStorage) UpdateServer(ctx context.Context, id string, updateFn func(*models.Server)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[id]
	if !ok {
		return ErrNotFound
	}
	updateFn(srv)
	srv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) GetServerByToken(ctx context.Context, token string) (*models.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, srv := range s.servers {
		if srv.NotificationToken == token {
			return srv, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) CreateEvent(ctx context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
	return nil
}

func (s *MemoryStorage) CreateEventsBatch(ctx context.Context, events []*models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events[e.ID] = e
	}
	return nil
}

func (s *MemoryStorage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStorage) GetAllEvents(ctx context.Context) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStorage) UpdateEvent(ctx context.Context, id string, updateFn func(*models.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	updateFn(e)
	e.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) GetChildEvents(ctx context.Context, parentID string) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if e.ParentEventID == parentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStorage) CreateSchedule(ctx context.Context, sch *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sch.ID] = sch
	return nil
}

func (s *MemoryStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sch, nil
}

func (s *MemoryStorage) GetSchedulesByEvent(ctx context.Context, eventID string) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Schedule
	for _, sch := range s.schedules {
		if sch.EventID == eventID {
			out = append(out, sch)
		}
	}
	return out, nil
}

func (s *MemoryStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
	return nil
}

func (s *MemoryStorage) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *MemoryStorage) GetAllNotifications(ctx context.Context) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	return out, nil
}

func (s *MemoryStorage) UpdateNotification(ctx context.Context, id string, updateFn func(*models.Notification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	updateFn(n)
	n.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) GetNotificationByToken(ctx context.Context, token string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if n.ResponseToken == token {
			return n, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetPendingNotifications(ctx context.Context) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.Status == models.StatusPending && n.ScheduledFor == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MemoryStorage) GetDueNotifications(ctx context.Context, now time.Time) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.Status == models.StatusPending && n.ScheduledFor != nil && !n.ScheduledFor.After(now) {
			out = append(out, n)
		}
	}
	return out, nil
}
