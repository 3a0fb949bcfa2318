package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/auth-api/pkg/jobs"
)

const (
	jobKindConfirmEmail  = "confirm_email"
	jobKindResetPassword = "reset_password"
)

// EmailMessage is a rendered outbound email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// LogMailer writes messages to the log instead of sending them. Used until an
// SMTP or provider integration is configured.
type LogMailer struct {
	Logger *zap.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(_ context.Context, msg EmailMessage) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("email delivered", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.String("body", msg.Body))
	return nil
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationConfig holds the links embedded in outbound emails.
type NotificationConfig struct {
	ConfirmEmailURL  string
	ResetPasswordURL string
}

// NotificationService renders account emails and hands them to a background
// queue. Callers never wait on delivery.
type NotificationService struct {
	mailer Mailer
	queue  jobQueue
	logger *zap.Logger
	config NotificationConfig
}

// NewNotificationService constructs a NotificationService. Without a queue,
// messages are delivered inline.
func NewNotificationService(mailer Mailer, logger *zap.Logger, config NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &NotificationService{mailer: mailer, logger: logger, config: config}
}

// UseQueue routes messages through q. The queue must be built with Handle as
// its handler.
func (s *NotificationService) UseQueue(q jobQueue) {
	s.queue = q
}

// SendConfirmationEmail schedules the email carrying the confirmation link.
func (s *NotificationService) SendConfirmationEmail(ctx context.Context, address, key string) error {
	link, err := withQuery(s.config.ConfirmEmailURL, "key", key)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, jobKindConfirmEmail, EmailMessage{
		To:      address,
		Subject: "Confirm your email address",
		Body:    fmt.Sprintf("Follow this link to activate your account: %s", link),
	})
}

// SendResetEmail schedules the email carrying the password reset link.
func (s *NotificationService) SendResetEmail(ctx context.Context, address, tokenID string) error {
	link, err := withQuery(s.config.ResetPasswordURL, "token", tokenID)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, jobKindResetPassword, EmailMessage{
		To:      address,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Follow this link to choose a new password: %s", link),
	})
}

// Handle delivers a queued message. It is the jobs.Handler of the
// notification queue.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(EmailMessage)
	if !ok {
		s.logger.Error("dropping notification with unexpected payload", zap.String("job_id", job.ID), zap.String("kind", job.Kind))
		return nil
	}
	return s.mailer.Send(ctx, msg)
}

func (s *NotificationService) dispatch(ctx context.Context, kind string, msg EmailMessage) error {
	if s.queue == nil {
		return s.mailer.Send(ctx, msg)
	}
	job := jobs.Job{ID: uuid.NewString(), Kind: kind, Payload: msg}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("kind", kind), zap.Error(err))
		return err
	}
	return nil
}

func withQuery(base, key, value string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse notification url: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
