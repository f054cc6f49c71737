// Package mailer delivers transactional email through an SMTP relay.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/logger"
)

const sendTimeout = 15 * time.Second

var errNoRecipients = errors.New("mailer: at least one recipient is required")

// Message is a rendered email ready for delivery.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP sender when a relay is configured and a log-only sender otherwise.
func New(cfg config.MailConfig, logg *logger.Logger) (Sender, error) {
	if !cfg.Enabled() {
		if logg != nil {
			logg.Warn(context.Background(), "smtp relay not configured; emails will only be logged")
		}
		return NewLogSender(logg), nil
	}
	return NewSMTPSender(cfg)
}

// SMTPSender sends mail with go-mail.
type SMTPSender struct {
	from   string
	client *mail.Client
}

// NewSMTPSender builds the SMTP client from configuration. The connection is opened per send.
func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("mailer: smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("mailer: from address is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(sendTimeout),
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: create smtp client: %w", err)
	}
	return &SMTPSender{from: cfg.From, client: client}, nil
}

// Send renders msg into a MIME message and delivers it.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMessage(s.from, msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("mailer: send %q: %w", msg.Subject, err)
	}
	return nil
}

func buildMessage(from string, msg Message) (*mail.Msg, error) {
	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		if trimmed := strings.TrimSpace(to); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	if len(recipients) == 0 {
		return nil, errNoRecipients
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("mailer: invalid from address: %w", err)
	}
	if err := m.To(recipients...); err != nil {
		return nil, fmt.Errorf("mailer: invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)

	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
	}
	return m, nil
}

// LogSender records messages instead of delivering them. Used in dev and when no relay is set.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errNoRecipients
	}
	if s.logg == nil {
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"mail_to":      strings.Join(msg.To, ","),
		"mail_subject": msg.Subject,
	})
	s.logg.Info(ctx, "email delivery skipped (log sender)")
	return nil
}
