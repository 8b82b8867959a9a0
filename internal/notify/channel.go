package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"churchops/internal/config"
	"churchops/internal/models"
)

// Channel delivers one notification to one server over a single transport.
// Implementations are black boxes that can fail; the dispatcher decides
// what a failure means for the notification's status.
type Channel interface {
	Name() string
	Send(ctx context.Context, srv *models.Server, n *models.Notification) error
}

// Mailer is the mail-sending boundary.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender is the SMS-sending boundary.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

type EmailChannel struct {
	mailer  Mailer
	baseURL string
}

func NewEmailChannel(mailer Mailer, baseURL string) *EmailChannel {
	return &EmailChannel{mailer: mailer, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, srv *models.Server, n *models.Notification) error {
	email := srv.ContactEmail()
	if email == "" {
		return errors.New("no email address available for server")
	}
	body := n.Message +
		"\n\nResponder: " + c.responseURL(n) +
		"\nAñadir al calendario: " + c.calendarURL(n) + "\n"
	return c.mailer.Send(ctx, email, n.Title, body)
}

func (c *EmailChannel) responseURL(n *models.Notification) string {
	return fmt.Sprintf("%s/n/%s", c.baseURL, n.ResponseToken)
}

func (c *EmailChannel) calendarURL(n *models.Notification) string {
	return fmt.Sprintf("%s/n/%s/calendar.ics", c.baseURL, n.ResponseToken)
}

type SMSChannel struct {
	sender SMSSender
}

func NewSMSChannel(sender SMSSender) *SMSChannel {
	return &SMSChannel{sender: sender}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, srv *models.Server, n *models.Notification) error {
	phone := srv.ContactPhone()
	if phone == "" {
		return errors.New("no phone number available for server")
	}
	return c.sender.Send(ctx, phone, n.Message)
}

// SMTPMailer sends through a plain SMTP relay. The pack carries no mail
// library, and Mailer keeps the transport swappable anyway.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// LogSMSSender records the message instead of sending it; a real gateway
// (Twilio etc.) would slot in behind SMSSender.
type LogSMSSender struct {
	log zerolog.Logger
}

func NewLogSMSSender(log zerolog.Logger) *LogSMSSender {
	return &LogSMSSender{log: log.With().Str("component", "sms").Logger()}
}

func (s *LogSMSSender) Send(ctx context.Context, phone, message string) error {
	s.log.Info().Str("phone", phone).Str("message", message).Msg("SMS notification would be sent")
	return nil
}
