package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// sseHeartbeat keeps idle streams open through proxies
const sseHeartbeat = 25 * time.Second

// NotificationAPI is the notification service as seen by HTTP
type NotificationAPI interface {
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) (*models.NotificationList, error)
	MarkNotificationsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	GetPreferences(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, req *models.UpdateNotificationPreferenceRequest) (*models.NotificationPreference, error)
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error)
}

// NotificationHandler handles notification feed and preference requests
type NotificationHandler struct {
	notifications NotificationAPI
	logger        *logrus.Logger
	heartbeat     time.Duration
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications NotificationAPI, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger, heartbeat: sseHeartbeat}
}

// ListNotifications handles GET /api/v1/notifications
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum items (default 20, max 100)"
// @Success 200 {object} models.NotificationList
// @Router /api/v1/notifications [get]
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, h.logger, models.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := h.notifications.ListNotifications(c.Request.Context(), actor.UserID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// MarkRead handles PATCH /api/v1/notifications/read
// @Summary Mark notifications as read
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body models.MarkReadRequest true "Notification IDs"
// @Success 200 {object} map[string]interface{} "Number of notifications updated"
// @Router /api/v1/notifications/read [patch]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.MarkReadRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.notifications.MarkNotificationsRead(c.Request.Context(), actor.UserID, req.IDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// GetPreferences handles GET /api/v1/notifications/preferences
// @Summary Get notification preferences
// @Tags Notifications
// @Produce json
// @Success 200 {object} models.NotificationPreference
// @Router /api/v1/notifications/preferences [get]
func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	pref, err := h.notifications.GetPreferences(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, pref)
}

// UpdatePreferences handles PUT /api/v1/notifications/preferences
// @Summary Update notification preferences
// @Description Only the fields present in the body are changed
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body models.UpdateNotificationPreferenceRequest true "Preference changes"
// @Success 200 {object} models.NotificationPreference
// @Router /api/v1/notifications/preferences [put]
func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.UpdateNotificationPreferenceRequest
	if !bindJSON(c, &req) {
		return
	}

	pref, err := h.notifications.UpdatePreferences(c.Request.Context(), actor.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, pref)
}

// Stream handles GET /api/v1/notifications/stream
// @Summary Live notification feed
// @Description Server-sent events. Each event is named "notification" and carries one notification.
// @Tags Notifications
// @Produce text/event-stream
// @Success 200
// @Router /api/v1/notifications/stream [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	feed, unsubscribe, err := h.notifications.Subscribe(ctx, actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer unsubscribe()

	log := h.logger.WithField("user_id", actor.UserID)
	log.Debug("Notification stream opened")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// the server write timeout would otherwise end the stream
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		log.WithError(err).Debug("Cannot clear write deadline for stream")
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case n, open := <-feed:
			if !open {
				return false
			}
			c.SSEvent("notification", n)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})

	log.Debug("Notification stream closed")
}
