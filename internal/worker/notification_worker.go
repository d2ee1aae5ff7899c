package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-api/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		logger.Warn("notification service not configured; identity emails disabled")
		return
	}
	notificationService.RegisterHandlers()
	logger.Debug("notification handlers registered")
}
