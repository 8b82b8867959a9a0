package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	wbfredis "github.com/wb-go/wbf/redis"
	wbfretry "github.com/wb-go/wbf/retry"

	"churchops/internal/models"
)

const (
	keyMinistry    = "ministry:"
	keyUser        = "user:"
	keyServer      = "server:"
	keyEvent       = "event:"
	keySchedule    = "schedule:"
	keyNotify      = "notification:"
	keyServerTok   = "server_token:"
	keyNotifyTok   = "notification_token:"
	setMinistries  = "ministries:all"
	setServers     = "servers:all"
	setEvents      = "events:all"
	setSchedules   = "schedules:all"
	setNotifies    = "notifications:all"
	setPending     = "notifications:pending"
	zsetScheduled  = "notifications:scheduled"
	setEventChild  = "event_children:"
	setEventScheds = "event_schedules:"
)

type RedisStorage struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisStorage(addr string, log zerolog.Logger) (*RedisStorage, error) {
	wbfClient := wbfredis.New(addr, "", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	strategy := wbfretry.Strategy{
		Attempts: 5,
		Delay:    1 * time.Second,
		Backoff:  2,
	}

	err := wbfretry.DoContext(ctx, strategy, func() error {
		return wbfClient.Ping(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", addr).Msg("connected to Redis")

	return &RedisStorage{
		client: wbfClient.Client,
		log:    log,
	}, nil
}

func writeStrategy() wbfretry.Strategy {
	return wbfretry.Strategy{
		Attempts: 3,
		Delay:    100 * time.Millisecond,
		Backoff:  2,
	}
}

func (s *RedisStorage) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return wbfretry.DoContext(ctx, writeStrategy(), func() error {
		return s.client.Set(ctx, key, data, 0).Err()
	})
}

func (s *RedisStorage) getJSON(ctx context.Context, key string, v any) error {
	var data []byte
	err := wbfretry.DoContext(ctx, writeStrategy(), func() error {
		result, getErr := s.client.Get(ctx, key).Bytes()
		if getErr != nil && getErr != redis.Nil {
			return getErr
		}
		data = result
		return nil
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if data == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) CreateMinistry(ctx context.Context, m *models.Ministry) error {
	if err := s.setJSON(ctx, keyMinistry+m.ID, m); err != nil {
		return err
	}
	return s.client.SAdd(ctx, setMinistries, m.ID).Err()
}

func (s *RedisStorage) GetMinistry(ctx context.Context, id string) (*models.Ministry, error) {
	var m models.Ministry
	if err := s.getJSON(ctx, keyMinistry+id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStorage) GetAllMinistries(ctx context.Context) ([]*models.Ministry, error) {
	ids, err := s.client.SMembers(ctx, setMinistries).Result()
	if err != nil {
		return nil, fmt.Errorf("get ministry IDs: %w", err)
	}
	out := make([]*models.Ministry, 0, len(ids))
	for _, id := range ids {
		m, getErr := s.GetMinistry(ctx, id)
		if getErr != nil {
			s.log.Error().Err(getErr).Str("id", id).Msg("skipping unreadable ministry")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisStorage) CreateUser(ctx context.Context, u *models.User) error {
	return s.setJSON(ctx, keyUser+u.ID, u)
}

func (s *RedisStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.getJSON(ctx, keyUser+id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *RedisStorage) CreateServer(ctx context.Context, srv *models.Server) error {
	if err := s.setJSON(ctx, keyServer+srv.ID, srv); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, setServers, srv.ID).Err(); err != nil {
		return err
	}
	if srv.NotificationToken != "" {
		return s.client.Set(ctx, keyServerTok+srv.NotificationToken, srv.ID, 0).Err()
	}
	return nil
}

func (s *RedisStorage) GetServer(ctx context.Context, id string) (*models.Server, error) {
	var srv models.Server
	if err := s.getJSON(ctx, keyServer+id, &srv); err != nil {
		return nil, err
	}
	return &srv, nil
}

func (s *RedisStorage) GetAllServers(ctx context.Context) ([]*models.Server, error) {
	ids, err := s.client.SMembers(ctx, setServers).Result()
	if err != nil {
		return nil, fmt.Errorf("get server IDs: %w", err)
	}
	out := make([]*models.Server, 0, len(ids))
	for _, id := range ids {
		srv, getErr := s.GetServer(ctx, id)
		if getErr != nil {
			s.log.Error().Err(getErr).Str("id", id).Msg("skipping unreadable server")
			continue
		}
		out = append(out, srv)
	}
	return out, nil
}

func (s *RedisStorage) UpdateServer(ctx context.Context, id string, updateFn func(*models.Server)) error {
	srv, err := s.GetServer(ctx, id)
	if err != nil {
		return err
	}
	oldToken := srv.NotificationToken
	updateFn(srv)
	srv.UpdatedAt = time.Now()

	if err := s.setJSON(ctx, keyServer+id, srv); err != nil {
		return err
	}
	// Regenerated tokens must invalidate the previous value immediately.
	if oldToken != srv.NotificationToken {
		if oldToken != "" {
			s.client.Del(ctx, keyServerTok+oldToken)
		}
		if srv.NotificationToken != "" {
			s.client.Set(ctx, keyServerTok+srv.NotificationToken, id, 0)
		}
	}
	return nil
}

func (s *RedisStorage) GetServerByToken(ctx context.Context, token string) (*models.Server, error) {
	id, err := s.client.Get(ctx, keyServerTok+token).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve server token: %w", err)
	}
	return s.GetServer(ctx, id)
}

func (s *RedisStorage) CreateEvent(ctx context.Context, e *models.Event) error {
	if err := s.setJSON(ctx, keyEvent+e.ID, e); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, setEvents, e.ID).Err(); err != nil {
		return err
	}
	if e.ParentEventID != "" {
		return s.client.SAdd(ctx, setEventChild+e.ParentEventID, e.ID).Err()
	}
	return nil
}

// CreateEventsBatch writes all instances through one MULTI/EXEC pipeline so
// the generated set is applied atomically.
func (s *RedisStorage) CreateEventsBatch(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		pipe.Set(ctx, keyEvent+e.ID, data, 0)
		pipe.SAdd(ctx, setEvents, e.ID)
		if e.ParentEventID != "" {
			pipe.SAdd(ctx, setEventChild+e.ParentEventID, e.ID)
		}
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch insert events: %w", err)
	}
	return nil
}

func (s *RedisStorage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	if err := s.getJSON(ctx, keyEvent+id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *RedisStorage) GetAllEvents(ctx context.Context) ([]*models.Event, error) {
	ids, err := s.client.SMembers(ctx, setEvents).Result()
	if err != nil {
		return nil, fmt.Errorf("get event IDs: %w", err)
	}
	return s.eventsByIDs(ctx, ids)
}

func (s *RedisStorage) eventsByIDs(ctx context.Context, ids []string) ([]*models.Event, error) {
	out := make([]*models.Event, 0, len(ids))
	for _, id := range ids {
		e, getErr := s.GetEvent(ctx, id)
		if getErr != nil {
			s.log.Error().Err(getErr).Str("id", id).Msg("skipping unreadable event")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStorage) UpdateEvent(ctx context.Context, id string, updateFn func(*models.Event)) error {
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	updateFn(e)
	e.UpdatedAt = time.Now()
	return s.setJSON(ctx, keyEvent+id, e)
}

func (s *RedisStorage) GetChildEvents(ctx context.Context, parentID string) ([]*models.Event, error) {
	ids, err := s.client.SMembers(ctx, setEventChild+parentID).Result()
	if err != nil {
		return nil, fmt.Errorf("get child event IDs: %w", err)
	}
	return s.eventsByIDs(ctx, ids)
}

func (s *RedisStorage) CreateSchedule(ctx context.Context, sch *models.Schedule) error {
	if err := s.setJSON(ctx, keySchedule+sch.ID, sch); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, setSchedules, sch.ID).Err(); err != nil {
		return err
	}
	if sch.EventID != "" {
		return s.client.SAdd(ctx, setEventScheds+sch.EventID, sch.ID).Err()
	}
	return nil
}

func (s *RedisStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var sch models.Schedule
	if err := s.getJSON(ctx, keySchedule+id, &sch); err != nil {
		return nil, err
	}
	return &sch, nil
}

func (s *RedisStorage) GetSchedulesByEvent(ctx context.Context, eventID string) ([]*models.Schedule, error) {
	ids, err := s.client.SMembers(ctx, setEventScheds+eventID).Result()
	if err != nil {
		return nil, fmt.Errorf("get schedule IDs: %w", err)
	}
	out := make([]*models.Schedule, 0, len(ids))
	for _, id := range ids {
		sch, getErr := s.GetSchedule(ctx, id)
		if getErr != nil {
			s.log.Error().Err(getErr).Str("id", id).Msg("skipping unreadable schedule")
			continue
		}
		out = append(out, sch)
	}
	return out, nil
}

func (s *RedisStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := s.setJSON(ctx, keyNotify+n.ID, n); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, setNotifies, n.ID).Err(); err != nil {
		return err
	}
	if n.ResponseToken != "" {
		if err := s.client.Set(ctx, keyNotifyTok+n.ResponseToken, n.ID, 0).Err(); err != nil {
			return err
		}
	}
	s.index(ctx, n)
	return nil
}

// index keeps the pending set and the scheduled ZSET in line with the
// notification's status.
func (s *RedisStorage) index(ctx context.Context, n *models.Notification) {
	s.client.SRem(ctx, setPending, n.ID)
	s.client.ZRem(ctx, zsetScheduled, n.ID)
	if n.Status != models.StatusPending {
		return
	}
	if n.ScheduledFor == nil {
		s.client.SAdd(ctx, setPending, n.ID)
		return
	}
	s.client.ZAdd(ctx, zsetScheduled, &redis.Z{
		Score:  float64(n.ScheduledFor.Unix()),
		Member: n.ID,
	})
}

func (s *RedisStorage) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.getJSON(ctx, keyNotify+id, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *RedisStorage) GetAllNotifications(ctx context.Context) ([]*models.Notification, error) {
	ids, err := s.client.SMembers(ctx, setNotifies).Result()
	if err != nil {
		return nil, fmt.Errorf("get notification IDs: %w", err)
	}
	return s.notificationsByIDs(ctx, ids)
}

func (s *RedisStorage) notificationsByIDs(ctx context.Context, ids []string) ([]*models.Notification, error) {
	out := make([]*models.Notification, 0, len(ids))
	for _, id := range ids {
		n, getErr := s.GetNotification(ctx, id)
		if getErr != nil {
			s.log.Error().Err(getErr).Str("id", id).Msg("skipping unreadable notification")
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *RedisStorage) UpdateNotification(ctx context.Context, id string, updateFn func(*models.Notification)) error {
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	updateFn(n)
	n.UpdatedAt = time.Now()

	if err := s.setJSON(ctx, keyNotify+id, n); err != nil {
		return err
	}
	s.index(ctx, n)
	return nil
}

func (s *RedisStorage) GetNotificationByToken(ctx context.Context, token string) (*models.Notification, error) {
	id, err := s.client.Get(ctx, keyNotifyTok+token).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve notification token: %w", err)
	}
	return s.GetNotification(ctx, id)
}

func (s *RedisStorage) GetPendingNotifications(ctx context.Context) ([]*models.Notification, error) {
	ids, err := s.client.SMembers(ctx, setPending).Result()
	if err != nil {
		return nil, fmt.Errorf("get pending notifications: %w", err)
	}
	return s.notificationsByIDs(ctx, ids)
}

func (s *RedisStorage) GetDueNotifications(ctx context.Context, now time.Time) ([]*models.Notification, error) {
	ids, err := s.client.ZRangeByScore(ctx, zsetScheduled, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("get due notifications: %w", err)
	}
	return s.notificationsByIDs(ctx, ids)
}
