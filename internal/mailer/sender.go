package mailer

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SMTPSender delivers mail through an SMTP relay using PLAIN auth when credentials are set.
type SMTPSender struct {
	Addr     string
	From     string
	Username string
	Password string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender constructs an SMTPSender for addr (host:port).
func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	return &SMTPSender{Addr: addr, From: from, Username: username, Password: password, send: smtp.SendMail}
}

// Send implements common.EmailSender.
func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.Username != "" {
		host, _, err := net.SplitHostPort(s.Addr)
		if err != nil {
			return fmt.Errorf("smtp addr: %w", err)
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	send := s.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(s.Addr, auth, s.From, []string{to}, buildMessage(s.From, to, subject, html, time.Now())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, html string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

// LogSender writes email to the log instead of sending it. Used when no SMTP relay is configured.
type LogSender struct {
	Logger zerolog.Logger
}

// Send implements common.EmailSender.
func (s LogSender) Send(_ context.Context, to, subject, html string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Int("body_bytes", len(html)).Msg("email logged (smtp disabled)")
	return nil
}
