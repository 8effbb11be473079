// Package smtpout owns the outbound mail-submission session used to
// send textual unsubscribe requests.
package smtpout

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// dialTimeout caps how long a connection attempt may block.
const dialTimeout = 30 * time.Second

// Config holds the mail-submission server settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
}

// Sender is an authenticated SMTP session. It is owned by the top-level
// run and must be released via Close on all exit paths.
type Sender struct {
	log    zerolog.Logger
	cfg    Config
	client *smtp.Client
}

// Connect dials the SMTP server with STARTTLS and authenticates.
func Connect(log zerolog.Logger, cfg Config) (*Sender, error) {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	tlsConfig := &tls.Config{ServerName: cfg.Host}
	if err := client.StartTLS(tlsConfig); err != nil {
		client.Close()
		return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
	}

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		client.Close()
		return nil, fmt.Errorf("SMTP auth: %w", err)
	}

	log.Info().Str("server", addr).Msg("SMTP connection established")

	return &Sender{
		log:    log.With().Str("component", "smtp").Logger(),
		cfg:    cfg,
		client: client,
	}, nil
}

// Send submits a plain-text message over the open session. A failed
// send resets the session so the next Send starts a clean transaction.
func (s *Sender) Send(to, subject, body string) error {
	if err := s.send(to, subject, body); err != nil {
		_ = s.client.Reset()
		return err
	}
	s.log.Info().Str("to", to).Msg("unsubscribe email sent")
	return nil
}

func (s *Sender) send(to, subject, body string) error {
	from := s.cfg.Username

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := s.client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := s.client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	writer, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := writer.Write([]byte(msg.String())); err != nil {
		writer.Close()
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return nil
}

// Close quits the SMTP session.
func (s *Sender) Close() error {
	if err := s.client.Quit(); err != nil {
		return fmt.Errorf("closing SMTP session: %w", err)
	}
	return nil
}
