package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"meditrack/internal/config"
	"meditrack/internal/logger"
)

// Sender delivers one plain-text email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	addr string
	host string
	from string
	auth smtp.Auth
	log  *logger.Logger

	// sendMail is swapped in tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New builds a mailer from the smtp config section. Auth is skipped when no
// user is configured (local relay).
func New(cfg *config.Config, log *logger.Logger) *SMTPMailer {
	var auth smtp.Auth
	if cfg.SMTP.User != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.Host)
	}

	from := cfg.SMTP.From
	if from == "" {
		from = "meditrack@localhost"
	}

	return &SMTPMailer{
		addr:     fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port),
		host:     cfg.SMTP.Host,
		from:     from,
		auth:     auth,
		log:      log,
		sendMail: smtp.SendMail,
	}
}

// Send delivers one message. Header values are sanitized against injection.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	to = sanitizeHeader(to)
	subject = sanitizeHeader(subject)
	if to == "" {
		return fmt.Errorf("mailer: empty recipient")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := m.sendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		m.log.Error(ctx, "email_send_failed", "Failed to send email", err, map[string]any{"to": to})
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}

	m.log.Info(ctx, "email_sent", "Email delivered to SMTP relay", map[string]any{"to": to, "subject": subject})
	return nil
}

func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return strings.TrimSpace(v)
}
