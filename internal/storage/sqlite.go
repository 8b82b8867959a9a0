package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"churchops/internal/models"
)

const sqliteTimeLayout = time.RFC3339Nano

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ministries (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS servers (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	ministry_id TEXT NOT NULL DEFAULT '',
	position TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	is_external INTEGER NOT NULL DEFAULT 0,
	external_name TEXT NOT NULL DEFAULT '',
	external_email TEXT NOT NULL DEFAULT '',
	external_phone TEXT NOT NULL DEFAULT '',
	user_name TEXT NOT NULL DEFAULT '',
	user_email TEXT NOT NULL DEFAULT '',
	email_notifications INTEGER NOT NULL DEFAULT 1,
	sms_notifications INTEGER NOT NULL DEFAULT 0,
	preferred_contact_method TEXT NOT NULL DEFAULT 'email',
	notification_token TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	start_datetime TEXT NOT NULL,
	end_datetime TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	required_ministries TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	is_recurring INTEGER NOT NULL DEFAULT 0,
	recurrence_type TEXT NOT NULL DEFAULT '',
	recurrence_config TEXT,
	recurrence_end_date TEXT,
	parent_event_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_event_id);
CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL DEFAULT '',
	ministry_id TEXT NOT NULL,
	server_id TEXT NOT NULL DEFAULT '',
	day_of_week TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_event ON schedules(event_id);
CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	server_id TEXT NOT NULL,
	schedule_id TEXT NOT NULL DEFAULT '',
	event_id TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	delivery_method TEXT NOT NULL,
	status TEXT NOT NULL,
	scheduled_for TEXT,
	sent_at TEXT,
	delivered_at TEXT,
	read_at TEXT,
	response_token TEXT NOT NULL UNIQUE,
	response_status TEXT NOT NULL DEFAULT '',
	response_message TEXT NOT NULL DEFAULT '',
	responded_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
`

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(db *sql.DB) (*SQLiteStorage, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func OpenSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := NewSQLiteStorage(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) CreateMinistry(ctx context.Context, m *models.Ministry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ministries (id, name, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Description, boolInt(m.IsActive), fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt),
	)
	return err
}

func (s *SQLiteStorage) GetMinistry(ctx context.Context, id string) (*models.Ministry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM ministries WHERE id = ?`, id)
	return scanMinistry(row)
}

func (s *SQLiteStorage) GetAllMinistries(ctx context.Context) ([]*models.Ministry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM ministries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Ministry, 0)
	for rows.Next() {
		m, scanErr := scanMinistry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email) VALUES (?, ?, ?)`,
		u.ID, u.Name, u.Email,
	)
	return err
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const serverColumns = `id, user_id, ministry_id, position, is_active, is_external,
	external_name, external_email, external_phone, user_name, user_email,
	email_notifications, sms_notifications, preferred_contact_method,
	notification_token, created_at, updated_at`

func (s *SQLiteStorage) CreateServer(ctx context.Context, srv *models.Server) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (`+serverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		srv.ID, srv.UserID, srv.MinistryID, srv.Position, boolInt(srv.IsActive), boolInt(srv.IsExternal),
		srv.ExternalName, srv.ExternalEmail, srv.ExternalPhone, srv.UserName, srv.UserEmail,
		boolInt(srv.EmailNotifications), boolInt(srv.SMSNotifications), string(srv.PreferredContactMethod),
		srv.NotificationToken, fmtTime(srv.CreatedAt), fmtTime(srv.UpdatedAt),
	)
	return err
}

func (s *SQLiteStorage) GetServer(ctx context.Context, id string) (*models.Server, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	return scanServer(row)
}

func (s *SQLiteStorage) GetAllServers(ctx context.Context) ([]*models.Server, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM servers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Server, 0)
	for rows.Next() {
		srv, scanErr := scanServer(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) UpdateServer(ctx context.Context, id string, updateFn func(*models.Server)) error {
	srv, err := s.GetServer(ctx, id)
	if err != nil {
		return err
	}
	updateFn(srv)
	srv.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx, `
		UPDATE servers SET user_id = ?, ministry_id = ?, position = ?, is_active = ?,
			is_external = ?, external_name = ?, external_email = ?, external_phone = ?,
			user_name = ?, user_email = ?, email_notifications = ?, sms_notifications = ?,
			preferred_contact_method = ?, notification_token = ?, updated_at = ?
		WHERE id = ?`,
		srv.UserID, srv.MinistryID, srv.Position, boolInt(srv.IsActive),
		boolInt(srv.IsExternal), srv.ExternalName, srv.ExternalEmail, srv.ExternalPhone,
		srv.UserName, srv.UserEmail, boolInt(srv.EmailNotifications), boolInt(srv.SMSNotifications),
		string(srv.PreferredContactMethod), srv.NotificationToken, fmtTime(srv.UpdatedAt),
		id,
	)
	return err
}

func (s *SQLiteStorage) GetServerByToken(ctx context.Context, token string) (*models.Server, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE notification_token = ?`, token)
	return scanServer(row)
}

const eventColumns = `id, name, description, type, start_datetime, end_datetime, location,
	required_ministries, status, created_by, is_recurring, recurrence_type,
	recurrence_config, recurrence_end_date, parent_event_id, created_at, updated_at`

func (s *SQLiteStorage) CreateEvent(ctx context.Context, e *models.Event) error {
	return s.insertEvent(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStorage) insertEvent(ctx context.Context, db execer, e *models.Event) error {
	ministries, err := json.Marshal(e.RequiredMinistries)
	if err != nil {
		return fmt.Errorf("marshal required ministries: %w", err)
	}
	var cfg any
	if e.RecurrenceConfig != nil {
		data, cfgErr := json.Marshal(e.RecurrenceConfig)
		if cfgErr != nil {
			return fmt.Errorf("marshal recurrence config: %w", cfgErr)
		}
		cfg = string(data)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Description, string(e.Type), fmtTime(e.StartDatetime), fmtTime(e.EndDatetime),
		e.Location, string(ministries), string(e.Status), e.CreatedBy, boolInt(e.IsRecurring),
		string(e.RecurrenceType), cfg, nullTime(e.RecurrenceEndDate), e.ParentEventID,
		fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt),
	)
	return err
}

// CreateEventsBatch inserts every event inside one transaction so a failure
// mid-expansion leaves no partial set behind.
func (s *SQLiteStorage) CreateEventsBatch(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for _, e := range events {
		if err := s.insertEvent(ctx, tx, e); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

func (s *SQLiteStorage) GetAllEvents(ctx context.Context) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY start_datetime DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *SQLiteStorage) UpdateEvent(ctx context.Context, id string, updateFn func(*models.Event)) error {
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	updateFn(e)
	e.UpdatedAt = time.Now()

	ministries, err := json.Marshal(e.RequiredMinistries)
	if err != nil {
		return fmt.Errorf("marshal required ministries: %w", err)
	}
	var cfg any
	if e.RecurrenceConfig != nil {
		data, cfgErr := json.Marshal(e.RecurrenceConfig)
		if cfgErr != nil {
			return fmt.Errorf("marshal recurrence config: %w", cfgErr)
		}
		cfg = string(data)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE events SET name = ?, description = ?, type = ?, start_datetime = ?,
			end_datetime = ?, location = ?, required_ministries = ?, status = ?,
			is_recurring = ?, recurrence_type = ?, recurrence_config = ?,
			recurrence_end_date = ?, updated_at = ?
		WHERE id = ?`,
		e.Name, e.Description, string(e.Type), fmtTime(e.StartDatetime),
		fmtTime(e.EndDatetime), e.Location, string(ministries), string(e.Status),
		boolInt(e.IsRecurring), string(e.RecurrenceType), cfg,
		nullTime(e.RecurrenceEndDate), fmtTime(e.UpdatedAt),
		id,
	)
	return err
}

func (s *SQLiteStorage) GetChildEvents(ctx context.Context, parentID string) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE parent_event_id = ? ORDER BY start_datetime`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

const scheduleColumns = `id, event_id, ministry_id, server_id, day_of_week, start_time,
	end_time, notes, status, created_at, updated_at`

func (s *SQLiteStorage) CreateSchedule(ctx context.Context, sch *models.Schedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sch.ID, sch.EventID, sch.MinistryID, sch.ServerID, sch.DayOfWeek, sch.StartTime,
		sch.EndTime, sch.Notes, string(sch.Status), fmtTime(sch.CreatedAt), fmtTime(sch.UpdatedAt),
	)
	return err
}

func (s *SQLiteStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

func (s *SQLiteStorage) GetSchedulesByEvent(ctx context.Context, eventID string) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE event_id = ? ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Schedule, 0)
	for rows.Next() {
		sch, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

const notificationColumns = `id, server_id, schedule_id, event_id, type, title, message,
	delivery_method, status, scheduled_for, sent_at, delivered_at, read_at,
	response_token, response_status, response_message, responded_at, created_at, updated_at`

func (s *SQLiteStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ServerID, n.ScheduleID, n.EventID, string(n.Type), n.Title, n.Message,
		string(n.DeliveryMethod), string(n.Status), nullTime(n.ScheduledFor), nullTime(n.SentAt),
		nullTime(n.DeliveredAt), nullTime(n.ReadAt), n.ResponseToken, string(n.ResponseStatus),
		n.ResponseMessage, nullTime(n.RespondedAt), fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt),
	)
	return err
}

func (s *SQLiteStorage) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	return scanNotification(row)
}

func (s *SQLiteStorage) GetAllNotifications(ctx context.Context) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (s *SQLiteStorage) UpdateNotification(ctx context.Context, id string, updateFn func(*models.Notification)) error {
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	updateFn(n)
	n.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, scheduled_for = ?, sent_at = ?, delivered_at = ?,
			read_at = ?, response_token = ?, response_status = ?, response_message = ?,
			responded_at = ?, title = ?, message = ?, delivery_method = ?, updated_at = ?
		WHERE id = ?`,
		string(n.Status), nullTime(n.ScheduledFor), nullTime(n.SentAt), nullTime(n.DeliveredAt),
		nullTime(n.ReadAt), n.ResponseToken, string(n.ResponseStatus), n.ResponseMessage,
		nullTime(n.RespondedAt), n.Title, n.Message, string(n.DeliveryMethod), fmtTime(n.UpdatedAt),
		id,
	)
	return err
}

func (s *SQLiteStorage) GetNotificationByToken(ctx context.Context, token string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE response_token = ?`, token)
	return scanNotification(row)
}

func (s *SQLiteStorage) GetPendingNotifications(ctx context.Context) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = ? AND scheduled_for IS NULL
		ORDER BY created_at`, string(models.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (s *SQLiteStorage) GetDueNotifications(ctx context.Context, now time.Time) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?
		ORDER BY scheduled_for`, string(models.StatusPending), fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMinistry(row rowScanner) (*models.Ministry, error) {
	var m models.Ministry
	var active int
	var created, updated string
	err := row.Scan(&m.ID, &m.Name, &m.Description, &active, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.IsActive = active != 0
	m.CreatedAt = parseTime(created)
	m.UpdatedAt = parseTime(updated)
	return &m, nil
}

func scanServer(row rowScanner) (*models.Server, error) {
	var srv models.Server
	var active, external, emailOn, smsOn int
	var method, created, updated string
	err := row.Scan(
		&srv.ID, &srv.UserID, &srv.MinistryID, &srv.Position, &active, &external,
		&srv.ExternalName, &srv.ExternalEmail, &srv.ExternalPhone, &srv.UserName, &srv.UserEmail,
		&emailOn, &smsOn, &method, &srv.NotificationToken, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	srv.IsActive = active != 0
	srv.IsExternal = external != 0
	srv.EmailNotifications = emailOn != 0
	srv.SMSNotifications = smsOn != 0
	srv.PreferredContactMethod = models.ContactMethod(method)
	srv.CreatedAt = parseTime(created)
	srv.UpdatedAt = parseTime(updated)
	return &srv, nil
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var eventType, status, recType string
	var recurring int
	var ministries string
	var cfg, recEnd sql.NullString
	var start, end, created, updated string
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &eventType, &start, &end, &e.Location,
		&ministries, &status, &e.CreatedBy, &recurring, &recType,
		&cfg, &recEnd, &e.ParentEventID, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Type = models.EventType(eventType)
	e.Status = models.EventStatus(status)
	e.RecurrenceType = models.RecurrenceType(recType)
	e.IsRecurring = recurring != 0
	e.StartDatetime = parseTime(start)
	e.EndDatetime = parseTime(end)
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(ministries), &e.RequiredMinistries); err != nil {
		return nil, fmt.Errorf("unmarshal required ministries: %w", err)
	}
	if cfg.Valid && cfg.String != "" {
		var rc models.RecurrenceConfig
		if err := json.Unmarshal([]byte(cfg.String), &rc); err != nil {
			return nil, fmt.Errorf("unmarshal recurrence config: %w", err)
		}
		e.RecurrenceConfig = &rc
	}
	if recEnd.Valid && recEnd.String != "" {
		t := parseTime(recEnd.String)
		e.RecurrenceEndDate = &t
	}
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]*models.Event, error) {
	out := make([]*models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var sch models.Schedule
	var status, created, updated string
	err := row.Scan(
		&sch.ID, &sch.EventID, &sch.MinistryID, &sch.ServerID, &sch.DayOfWeek,
		&sch.StartTime, &sch.EndTime, &sch.Notes, &status, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sch.Status = models.ScheduleStatus(status)
	sch.CreatedAt = parseTime(created)
	sch.UpdatedAt = parseTime(updated)
	return &sch, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var nType, method, status, respStatus string
	var scheduled, sent, delivered, read, responded sql.NullString
	var created, updated string
	err := row.Scan(
		&n.ID, &n.ServerID, &n.ScheduleID, &n.EventID, &nType, &n.Title, &n.Message,
		&method, &status, &scheduled, &sent, &delivered, &read,
		&n.ResponseToken, &respStatus, &n.ResponseMessage, &responded, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(nType)
	n.DeliveryMethod = models.ContactMethod(method)
	n.Status = models.NotificationStatus(status)
	n.ResponseStatus = models.ResponseStatus(respStatus)
	n.ScheduledFor = parseNullTime(scheduled)
	n.SentAt = parseNullTime(sent)
	n.DeliveredAt = parseNullTime(delivered)
	n.ReadAt = parseNullTime(read)
	n.RespondedAt = parseNullTime(responded)
	n.CreatedAt = parseTime(created)
	n.UpdatedAt = parseTime(updated)
	return &n, nil
}

func collectNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	out := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
