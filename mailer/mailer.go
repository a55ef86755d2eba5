// Package mailer delivers notification mail over SMTP.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds SMTP settings, sourced from the environment.
type Config struct {
	Host     string `env:"SMTP_HOST,notEmpty"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM,notEmpty"`
}

// NewConfig parses SMTP configuration from the process environment.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to parse smtp environment")
	}
	return cfg, nil
}

// SMTP sends plain-text mail through a single upstream relay.
type SMTP struct {
	cfg  *Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates an SMTP notifier.
func New(cfg *Config) *SMTP {
	return &SMTP{
		cfg:  cfg,
		send: smtp.SendMail,
	}
}

// Send delivers one message. The context deadline is not honored mid-dial;
// callers run Send from a goroutine with their own timeout.
func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send mail").
			WithMetadata(map[string]any{"to": to, "subject": subject})
	}

	return nil
}
