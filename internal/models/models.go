package models

import (
	"time"
)

type EventType string

const (
	EventService  EventType = "service"
	EventMeeting  EventType = "meeting"
	EventSpecial  EventType = "special"
	EventTraining EventType = "training"
	EventOutreach EventType = "outreach"
)

type EventStatus string

const (
	EventPlanned   EventStatus = "planned"
	EventConfirmed EventStatus = "confirmed"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

type RecurrenceType string

const (
	RecurrenceDaily    RecurrenceType = "daily"
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiweekly RecurrenceType = "biweekly"
	RecurrenceMonthly  RecurrenceType = "monthly"
)

// RecurrenceConfig carries the per-type knobs of a recurrence rule.
// Nil/zero values mean "infer from the template event's start":
// DayOfWeek falls back to the start's weekday (0 = Sunday), DayOfMonth to
// the start's day of month, Interval to 1.
type RecurrenceConfig struct {
	Interval   int  `json:"interval,omitempty"`
	DayOfWeek  *int `json:"day_of_week,omitempty"`
	DayOfMonth *int `json:"day_of_month,omitempty"`
}

type Event struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	Type               EventType         `json:"type"`
	StartDatetime      time.Time         `json:"start_datetime"`
	EndDatetime        time.Time         `json:"end_datetime"`
	Location           string            `json:"location,omitempty"`
	RequiredMinistries []string          `json:"required_ministries,omitempty"`
	Status             EventStatus       `json:"status"`
	CreatedBy          string            `json:"created_by,omitempty"`
	IsRecurring        bool              `json:"is_recurring"`
	RecurrenceType     RecurrenceType    `json:"recurrence_type,omitempty"`
	RecurrenceConfig   *RecurrenceConfig `json:"recurrence_config,omitempty"`
	RecurrenceEndDate  *time.Time        `json:"recurrence_end_date,omitempty"`
	ParentEventID      string            `json:"parent_event_id,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Duration is the template's event length, shifted onto each generated
// instance during recurrence expansion.
func (e *Event) Duration() time.Duration {
	return e.EndDatetime.Sub(e.StartDatetime)
}

type Ministry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ContactMethod string

const (
	ContactEmail ContactMethod = "email"
	ContactSMS   ContactMethod = "sms"
	ContactBoth  ContactMethod = "both"
)

// Server is a volunteer, either linked to a registered user or fully
// external with contact details stored inline.
type Server struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id,omitempty"`
	MinistryID string `json:"ministry_id,omitempty"`
	Position   string `json:"position,omitempty"`
	IsActive   bool   `json:"is_active"`

	IsExternal    bool   `json:"is_external"`
	ExternalName  string `json:"external_name,omitempty"`
	ExternalEmail string `json:"external_email,omitempty"`
	ExternalPhone string `json:"external_phone,omitempty"`

	// Cached from the linked user record so channel eligibility can be
	// decided without a join; maintained by the handlers on create/update.
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`

	EmailNotifications     bool          `json:"email_notifications"`
	SMSNotifications       bool          `json:"sms_notifications"`
	PreferredContactMethod ContactMethod `json:"preferred_contact_method"`

	// NotificationToken is the server's standalone, regenerable token for
	// persistent profile links. Distinct from per-notification tokens.
	NotificationToken string `json:"notification_token,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) DisplayName() string {
	if s.IsExternal {
		return s.ExternalName
	}
	return s.UserName
}

func (s *Server) ContactEmail() string {
	if s.IsExternal {
		return s.ExternalEmail
	}
	return s.UserEmail
}

func (s *Server) ContactPhone() string {
	if s.IsExternal {
		return s.ExternalPhone
	}
	return ""
}

func (s *Server) CanReceiveEmail() bool {
	return s.EmailNotifications &&
		(s.PreferredContactMethod == ContactEmail || s.PreferredContactMethod == ContactBoth) &&
		s.ContactEmail() != ""
}

func (s *Server) CanReceiveSMS() bool {
	return s.SMSNotifications &&
		(s.PreferredContactMethod == ContactSMS || s.PreferredContactMethod == ContactBoth) &&
		s.ContactPhone() != ""
}

type ScheduleStatus string

const (
	ScheduleAssigned  ScheduleStatus = "assigned"
	ScheduleConfirmed ScheduleStatus = "confirmed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Schedule is a ministry/server assignment to a time slot, either tied to
// an event or standalone as a recurring weekly slot (day of week + times).
type Schedule struct {
	ID         string         `json:"id"`
	EventID    string         `json:"event_id,omitempty"`
	MinistryID string         `json:"ministry_id"`
	ServerID   string         `json:"server_id,omitempty"`
	DayOfWeek  string         `json:"day_of_week"`
	StartTime  string         `json:"start_time"`
	EndTime    string         `json:"end_time"`
	Notes      string         `json:"notes,omitempty"`
	Status     ScheduleStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type NotificationType string

const (
	TypeAssignment   NotificationType = "assignment"
	TypeReminder     NotificationType = "reminder"
	TypeChange       NotificationType = "change"
	TypeCancellation NotificationType = "cancellation"
)

type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusSent      NotificationStatus = "sent"
	StatusDelivered NotificationStatus = "delivered"
	StatusFailed    NotificationStatus = "failed"
	StatusRead      NotificationStatus = "read"
)

type ResponseStatus string

const (
	ResponseConfirmed ResponseStatus = "confirmed"
	ResponseDeclined  ResponseStatus = "declined"
	ResponseMaybe     ResponseStatus = "maybe"
)

func ValidResponse(s string) bool {
	switch ResponseStatus(s) {
	case ResponseConfirmed, ResponseDeclined, ResponseMaybe:
		return true
	}
	return false
}

type Notification struct {
	ID         string `json:"id"`
	ServerID   string `json:"server_id"`
	ScheduleID string `json:"schedule_id,omitempty"`
	EventID    string `json:"event_id,omitempty"`

	Type           NotificationType   `json:"type"`
	Title          string             `json:"title"`
	Message        string             `json:"message"`
	DeliveryMethod ContactMethod      `json:"delivery_method"`
	Status         NotificationStatus `json:"status"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`

	// ResponseToken is the sole capability for unauthenticated access to
	// this notification's view, response and calendar endpoints.
	ResponseToken   string         `json:"response_token,omitempty"`
	ResponseStatus  ResponseStatus `json:"response_status,omitempty"`
	ResponseMessage string         `json:"response_message,omitempty"`
	RespondedAt     *time.Time     `json:"responded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
