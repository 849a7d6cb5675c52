// Package mail sends transactional email over SMTP.
//
//	m := mail.New(mail.FromConfig())
//	err := m.Send(ctx, mail.To("user@example.com").
//	    Subject("Payment received").
//	    Body("<p>Thanks!</p>"))
//
// When no MAIL_HOST is configured the mailer only logs what it would send.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/shashiranjanraj/vidorder/config"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
)

// Sender delivers a message. Jobs depend on this so tests can record mail.
type Sender interface {
	Send(ctx context.Context, m *Message) error
}

// SMTP holds connection credentials.
type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// FromConfig reads the MAIL_* keys.
func FromConfig() SMTP {
	return SMTP{
		Host:     config.Get("MAIL_HOST", ""),
		Port:     config.Get("MAIL_PORT", "587"),
		Username: config.Get("MAIL_USERNAME", ""),
		Password: config.Get("MAIL_PASSWORD", ""),
		From:     config.Get("MAIL_FROM", "orders@vidorder.app"),
		FromName: config.Get("MAIL_FROM_NAME", "VidOrder"),
	}
}

// Message is a fluent builder for an email.
type Message struct {
	to      []string
	cc      []string
	subject string
	body    string
	isHTML  bool
}

// To starts a message to the given recipients. Bodies are HTML by default.
func To(addresses ...string) *Message {
	return &Message{to: addresses, isHTML: true}
}

func (m *Message) CC(addresses ...string) *Message {
	m.cc = append(m.cc, addresses...)
	return m
}

func (m *Message) Subject(s string) *Message {
	m.subject = s
	return m
}

// Body sets an HTML body.
func (m *Message) Body(html string) *Message {
	m.body = html
	m.isHTML = true
	return m
}

// Text sets a plain-text body.
func (m *Message) Text(text string) *Message {
	m.body = text
	m.isHTML = false
	return m
}

func (m *Message) Recipients() []string { return append(append([]string{}, m.to...), m.cc...) }
func (m *Message) GetSubject() string   { return m.subject }
func (m *Message) GetBody() string      { return m.body }

// Mailer sends messages with one SMTP configuration.
type Mailer struct {
	cfg SMTP
}

func New(cfg SMTP) *Mailer { return &Mailer{cfg: cfg} }

// Send delivers m. Port 465 uses implicit TLS; other ports use STARTTLS
// when the server offers it.
func (ml *Mailer) Send(ctx context.Context, m *Message) error {
	if len(m.to) == 0 {
		return fmt.Errorf("mail: no recipients")
	}

	cfg := ml.cfg
	if cfg.Host == "" {
		logger.WithCtx(ctx).Info("mail: MAIL_HOST not set, not sending",
			"to", strings.Join(m.to, ","), "subject", m.subject)
		return nil
	}

	from := fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	raw := m.buildRaw(from)
	addr := net.JoinHostPort(cfg.Host, cfg.Port)

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	if cfg.Port == "465" {
		return sendTLS(ctx, addr, auth, cfg.From, m.Recipients(), raw, cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, cfg.From, m.Recipients(), raw); err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	return nil
}

func sendTLS(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, raw []byte, host string) error {
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mail: TLS dial: %w", err)
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mail: smtp client: %w", err)
	}
	defer client.Quit() //nolint:errcheck

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (m *Message) buildRaw(from string) []byte {
	contentType := "text/plain"
	if m.isHTML {
		contentType = "text/html"
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(m.to, ", ") + "\r\n")
	if len(m.cc) > 0 {
		b.WriteString("Cc: " + strings.Join(m.cc, ", ") + "\r\n")
	}
	b.WriteString("Subject: " + m.subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: %s; charset=\"UTF-8\"\r\n", contentType))
	b.WriteString("\r\n")
	b.WriteString(m.body)
	return []byte(b.String())
}
