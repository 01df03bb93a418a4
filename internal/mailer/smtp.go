package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/sirupsen/logrus"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends notification emails over SMTP
type Mailer struct {
	cfg    config.SMTPConfig
	send   sendFunc
	logger *logrus.Logger
}

// NewMailer creates an SMTP mailer. smtp.SendMail upgrades to STARTTLS when offered.
func NewMailer(cfg config.SMTPConfig, logger *logrus.Logger) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail, logger: logger}
}

// Dispatch renders and sends the message
func (m *Mailer) Dispatch(ctx context.Context, msg Message) error {
	if !m.cfg.Configured() {
		return fmt.Errorf("smtp is not configured")
	}
	if msg.To == "" {
		return fmt.Errorf("message has no recipient")
	}

	htmlBody, textBody, err := Render(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.cfg.FromEmail, []string{msg.To}, m.buildMessage(msg, htmlBody, textBody))
	}()

	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
	case <-time.After(timeout):
		return fmt.Errorf("failed to send email: timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	m.logger.WithFields(logrus.Fields{
		"to":         msg.To,
		"event_type": msg.EventType,
	}).Info("Notification email sent")
	return nil
}

// buildMessage writes a multipart/alternative message
func (m *Mailer) buildMessage(msg Message, htmlBody, textBody string) []byte {
	boundary := "boundary_" + strconv.FormatInt(time.Now().UnixNano(), 10)

	var b strings.Builder
	fromName := m.cfg.FromName
	if fromName == "" {
		fromName = m.cfg.FromEmail
	}
	fmt.Fprintf(&b, "From: %s <%s>\r\n", fromName, m.cfg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(textBody + "\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(htmlBody + "\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
