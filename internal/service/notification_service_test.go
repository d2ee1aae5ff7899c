package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-api/internal/config"
	"github.com/spec-kit/storefront-api/internal/events"
)

func newNotificationHarness(from string) (events.Dispatcher, *captureMailer) {
	dispatcher := events.NewInMemoryDispatcher()
	mailer := &captureMailer{}
	NewNotificationService(dispatcher, mailer, zap.NewNop(), config.NotificationConfig{EmailFrom: from}).RegisterHandlers()
	return dispatcher, mailer
}

func TestNotification_SeededIdentityGetsNoWelcome(t *testing.T) {
	dispatcher, mailer := newNotificationHarness("noreply@example.com")

	err := dispatcher.Publish(context.Background(), events.New(events.EventIdentityCreated, "u1", events.IdentityCreatedPayload{
		Username: "superadmin",
		Email:    "admin@example.com",
		Seeded:   true,
	}))
	require.NoError(t, err)
	assert.Empty(t, mailer.messages())
}

func TestNotification_ResetMailCarriesToken(t *testing.T) {
	dispatcher, mailer := newNotificationHarness("noreply@example.com")

	err := dispatcher.Publish(context.Background(), events.New(events.EventPasswordResetRequested, "u1", events.PasswordResetRequestedPayload{
		Email:     "alice@example.com",
		Token:     "code-123",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, err)

	msgs := mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "noreply@example.com", msgs[0].From)
	assert.Equal(t, "code-123", resetCodeFrom(t, msgs[0]))
}

func TestNotification_DisabledWithoutSender(t *testing.T) {
	dispatcher, mailer := newNotificationHarness("")

	err := dispatcher.Publish(context.Background(), events.New(events.EventPasswordChanged, "u1", events.PasswordChangedPayload{
		Email:  "alice@example.com",
		Reason: "changed",
	}))
	require.NoError(t, err)
	assert.Empty(t, mailer.messages())
}

func TestNotification_RejectsUnexpectedPayload(t *testing.T) {
	dispatcher, _ := newNotificationHarness("noreply@example.com")

	err := dispatcher.Publish(context.Background(), events.New(events.EventPasswordChanged, "u1", "not a payload"))
	assert.Error(t, err)
}
