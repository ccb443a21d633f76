package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"carebot/internal/scheduler"
	"carebot/internal/store"
	logx "carebot/pkg/logx"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Email delivers over plain SMTP with AUTH when credentials are configured.
type Email struct {
	cfg EmailConfig
	log logx.Logger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(cfg EmailConfig, log logx.Logger) (*Email, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Email{cfg: cfg, log: log, send: smtp.SendMail}, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, u store.User, d scheduler.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := composeText(d, u.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", u.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	return e.send(addr, auth, e.cfg.From, []string{u.Email}, []byte(b.String()))
}
