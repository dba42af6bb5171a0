// Package mail delivers the account emails queued by the auth handlers.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"gopkg.in/gomail.v2"

	sa "github.com/panyam/sessionauth"
	"github.com/panyam/sessionauth/queue"
)

// Sender delivers account emails
type Sender interface {
	SendVerificationEmail(ctx context.Context, msg sa.VerificationEmailJob) error
	SendPasswordResetEmail(ctx context.Context, msg sa.PasswordResetEmailJob) error
}

// Config holds SMTP settings and the public base URL used in links
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
}

// Enabled reports whether enough is configured to send over SMTP
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends email through an SMTP relay
type SMTPSender struct {
	cfg    Config
	dialer dialer
	logger *slog.Logger
}

func NewSMTPSender(cfg Config, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

func (s *SMTPSender) send(to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *SMTPSender) SendVerificationEmail(ctx context.Context, msg sa.VerificationEmailJob) error {
	if err := s.send(msg.Email, "Verify your email address", verificationBody(msg)); err != nil {
		return err
	}
	s.logger.Info("verification email sent", slog.String("to", msg.Email))
	return nil
}

func (s *SMTPSender) SendPasswordResetEmail(ctx context.Context, msg sa.PasswordResetEmailJob) error {
	if err := s.send(msg.Email, "Reset your password", resetBody(s.cfg.BaseURL, msg)); err != nil {
		return err
	}
	s.logger.Info("password reset email sent", slog.String("to", msg.Email))
	return nil
}

// ConsoleSender logs emails instead of sending them. For local development.
type ConsoleSender struct {
	BaseURL string
	Logger  *slog.Logger
}

func (c *ConsoleSender) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *ConsoleSender) SendVerificationEmail(ctx context.Context, msg sa.VerificationEmailJob) error {
	c.log().Info("EMAIL: verification", "to", msg.Email, "body", verificationBody(msg))
	return nil
}

func (c *ConsoleSender) SendPasswordResetEmail(ctx context.Context, msg sa.PasswordResetEmailJob) error {
	c.log().Info("EMAIL: password reset", "to", msg.Email, "body", resetBody(c.BaseURL, msg))
	return nil
}

func verificationBody(msg sa.VerificationEmailJob) string {
	return fmt.Sprintf("Hi %s,\n\nYour verification code is %s. It expires in 3 hours.\n", msg.Name, msg.Code)
}

func resetBody(baseURL string, msg sa.PasswordResetEmailJob) string {
	link := strings.TrimSuffix(baseURL, "/") + "/auth/reset-password/" + url.PathEscape(msg.Token)
	return fmt.Sprintf("Hi %s,\n\nReset your password here: %s\nThe link expires in 2 hours.\n", msg.Name, link)
}

// Processors maps the email job names onto sender calls
func Processors(sender Sender) map[string]queue.Processor {
	return map[string]queue.Processor{
		sa.JobSendVerificationEmail: func(ctx context.Context, job *queue.Job) error {
			var msg sa.VerificationEmailJob
			if err := job.Decode(&msg); err != nil {
				return err
			}
			return sender.SendVerificationEmail(ctx, msg)
		},
		sa.JobSendPasswordResetEmail: func(ctx context.Context, job *queue.Job) error {
			var msg sa.PasswordResetEmailJob
			if err := job.Decode(&msg); err != nil {
				return err
			}
			return sender.SendPasswordResetEmail(ctx, msg)
		},
	}
}
