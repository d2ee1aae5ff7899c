package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/storefront-api/internal/config"
	"github.com/spec-kit/storefront-api/internal/events"
)

// MailMessage is an outbound email handed to the mail collaborator.
type MailMessage struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers email. The concrete provider is outside this service.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// LogMailer records messages in the log instead of sending them. Bodies are
// never logged because they may carry reset tokens.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer returns a Mailer that only logs.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg MailMessage) error {
	m.logger.Info("mail queued",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// NotificationService turns identity events into emails.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     Mailer
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, mailer Mailer, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		mailer:     mailer,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIdentityCreated, n.handleIdentityCreated)
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.handlePasswordChanged)
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
}

func (n *NotificationService) handleIdentityCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IdentityCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("IdentityCreated",
		zap.String("user_id", event.UserID),
		zap.Strings("roles", payload.Roles),
		zap.Bool("seeded", payload.Seeded))
	if payload.Seeded {
		return nil
	}
	return n.send(ctx, payload.Email, "Welcome", "Hi "+payload.Username+", your account is ready.")
}

func (n *NotificationService) handlePasswordChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("PasswordChanged", zap.String("user_id", event.UserID), zap.String("reason", payload.Reason))
	return n.send(ctx, payload.Email, "Your password was changed", "If this was not you, reset your password now.")
}

func (n *NotificationService) handlePasswordResetRequested(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordResetRequestedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("PasswordResetRequested", zap.String("user_id", event.UserID), zap.Time("expires_at", payload.ExpiresAt))
	body := fmt.Sprintf("Use this code to reset your password: %s\nIt expires at %s.", payload.Token, payload.ExpiresAt.Format("2006-01-02 15:04 MST"))
	return n.send(ctx, payload.Email, "Password reset", body)
}

func (n *NotificationService) send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || strings.TrimSpace(to) == "" || n.mailer == nil {
		return nil
	}
	return n.mailer.Send(ctx, MailMessage{From: n.cfg.EmailFrom, To: to, Subject: subject, Body: body})
}
