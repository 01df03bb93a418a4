package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/experiencehub/booking-engine/internal/mailer"
	"github.com/experiencehub/booking-engine/internal/metrics"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/internal/realtime"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
	emailDispatchTimeout     = 30 * time.Second
)

// Notifier creates notifications for domain events
type Notifier interface {
	CreateNotification(ctx context.Context, in CreateNotificationInput) (*models.Notification, error)
}

// CreateNotificationInput describes one notification to fan out
type CreateNotificationInput struct {
	UserID    uuid.UUID
	Title     string
	Message   string
	Priority  models.NotificationPriority
	EventType models.NotificationEventType
	Channels  models.ChannelList
	Href      *string
	Metadata  map[string]interface{}
}

// NotificationService persists preference-gated notifications and delivers
// them live and by email
type NotificationService struct {
	store  NotificationStore
	users  UserStore
	broker realtime.Broker
	email  mailer.Dispatcher
	logger *logrus.Logger
	now    Clock

	// baseURL prefixes relative hrefs in emails
	baseURL string

	wg sync.WaitGroup
}

// NewNotificationService creates a new notification service.
// email may be nil, in which case EMAIL deliveries are only recorded.
func NewNotificationService(
	store NotificationStore,
	users UserStore,
	broker realtime.Broker,
	email mailer.Dispatcher,
	baseURL string,
	logger *logrus.Logger,
	now Clock,
) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		store:   store,
		users:   users,
		broker:  broker,
		email:   email,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     now,
	}
}

// CreateNotification filters the requested channels through the user's
// preferences, stores the result and publishes it
func (s *NotificationService) CreateNotification(ctx context.Context, in CreateNotificationInput) (*models.Notification, error) {
	if in.UserID == uuid.Nil {
		return nil, models.NewValidationError("userId", "is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, models.NewValidationError("title", "is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}

	pref, err := s.store.EnsurePreference(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification preference: %w", err)
	}

	n := &models.Notification{
		ID:        uuid.New(),
		UserID:    in.UserID,
		Title:     in.Title,
		Message:   in.Message,
		Priority:  in.Priority,
		EventType: in.EventType,
		Channels:  pref.EffectiveChannels(in.EventType, in.Channels),
		Href:      in.Href,
		CreatedAt: s.now(),
	}
	if in.Metadata != nil {
		n.Metadata = models.JSONB(in.Metadata)
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	metrics.IncNotificationCreated(string(n.EventType))

	if s.broker != nil && (n.Channels.Contains(models.ChannelToast) || n.Channels.Contains(models.ChannelPush)) {
		if err := s.broker.Publish(ctx, n.UserID, n); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":         n.UserID,
				"notification_id": n.ID,
			}).Warn("Failed to publish notification")
		}
	}

	if n.Channels.Contains(models.ChannelEmail) {
		s.sendEmailAsync(*n)
	}

	return n, nil
}

// sendEmailAsync renders and sends the email outside the request.
// Failures are logged only.
func (s *NotificationService) sendEmailAsync(n models.Notification) {
	if s.email == nil {
		s.logger.WithField("notification_id", n.ID).Debug("No email dispatcher configured, skipping email")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), emailDispatchTimeout)
		defer cancel()

		log := s.logger.WithFields(logrus.Fields{
			"user_id":         n.UserID,
			"notification_id": n.ID,
			"event_type":      n.EventType,
		})

		user, err := s.users.GetUserByID(ctx, n.UserID)
		if err != nil {
			log.WithError(err).Error("Failed to load recipient for email")
			metrics.IncEmailSent("error")
			return
		}
		if user == nil || user.Email == nil || *user.Email == "" {
			log.Warn("Recipient has no email address, skipping email")
			metrics.IncEmailSent("skipped")
			return
		}

		msg := mailer.Message{
			ID:        n.ID.String(),
			To:        *user.Email,
			ToName:    user.DisplayName(),
			Subject:   n.Title,
			Title:     n.Title,
			Body:      n.Message,
			EventType: string(n.EventType),
			CreatedAt: n.CreatedAt,
		}
		if n.Href != nil {
			msg.Link = s.absoluteLink(*n.Href)
		}

		if err := s.email.Dispatch(ctx, msg); err != nil {
			log.WithError(err).Error("Failed to send notification email")
			metrics.IncEmailSent("error")
			return
		}
		metrics.IncEmailSent("sent")
	}()
}

func (s *NotificationService) absoluteLink(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") || s.baseURL == "" {
		return href
	}
	return s.baseURL + "/" + strings.TrimLeft(href, "/")
}

// Wait blocks until in-flight email deliveries have finished
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// ListNotifications returns the user's most recent notifications and the unread count
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) (*models.NotificationList, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	items, err := s.store.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.NotificationList{Items: items, UnreadCount: unread}, nil
}

// MarkNotificationsRead marks the user's notifications as read.
// Already-read and foreign ids are ignored.
func (s *NotificationService) MarkNotificationsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.store.MarkRead(ctx, userID, ids, s.now())
}

// GetPreferences returns the user's preferences, creating the default row on first use
func (s *NotificationService) GetPreferences(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error) {
	return s.store.EnsurePreference(ctx, userID)
}

// UpdatePreferences applies the set fields and saves the preference row
func (s *NotificationService) UpdatePreferences(ctx context.Context, userID uuid.UUID, req *models.UpdateNotificationPreferenceRequest) (*models.NotificationPreference, error) {
	pref, err := s.store.EnsurePreference(ctx, userID)
	if err != nil {
		return nil, err
	}
	req.Apply(pref)
	pref.UpdatedAt = s.now()
	if err := s.store.SavePreference(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}

// Subscribe opens the user's live notification feed
func (s *NotificationService) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error) {
	if s.broker == nil {
		return nil, nil, fmt.Errorf("realtime broker is not configured")
	}
	return s.broker.Subscribe(ctx, userID)
}
