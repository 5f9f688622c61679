package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Mailer delivers a single plain-text email.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPMailer sends mail through a plain SMTP relay such as Mailpit or a
// local MTA.
type SMTPMailer struct {
	Host string
	Port int
	From string
	Auth smtp.Auth
	now  func() time.Time
}

// NewSMTPMailer returns a mailer for host:port.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{Host: host, Port: port, From: from, now: time.Now}
}

// Send delivers msg. The context only gates the start of delivery since
// net/smtp has no context support.
func (m *SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("mailer: recipient missing")
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	body := buildMessage(m.From, msg, m.now())
	if err := smtp.SendMail(addr, m.Auth, m.From, []string{msg.To}, body); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func buildMessage(from string, msg SendEmailPayload, at time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", at.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}
