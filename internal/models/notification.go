package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationChannel is a delivery channel
type NotificationChannel string

const (
	ChannelToast NotificationChannel = "TOAST"
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelPush  NotificationChannel = "PUSH"
)

// AllChannels lists every channel in delivery order
var AllChannels = ChannelList{ChannelToast, ChannelEmail, ChannelPush}

// NotificationEventType is the domain event that produced a notification
type NotificationEventType string

const (
	EventBookingCreated   NotificationEventType = "BOOKING_CREATED"
	EventBookingConfirmed NotificationEventType = "BOOKING_CONFIRMED"
	EventBookingCancelled NotificationEventType = "BOOKING_CANCELLED"
	EventPaymentRefunded  NotificationEventType = "PAYMENT_REFUNDED"
)

// NotificationPriority orders notifications for display
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
	PriorityUrgent NotificationPriority = "URGENT"
)

// Notification is a persisted fan-out record. Channels holds the channels
// actually honoured after preference filtering.
type Notification struct {
	ID        uuid.UUID             `json:"id" db:"id"`
	UserID    uuid.UUID             `json:"userId" db:"user_id"`
	Title     string                `json:"title" db:"title"`
	Message   string                `json:"message" db:"message"`
	Priority  NotificationPriority  `json:"priority" db:"priority"`
	EventType NotificationEventType `json:"eventType" db:"event_type"`
	Channels  ChannelList           `json:"channels" db:"channels"`
	Href      *string               `json:"href,omitempty" db:"href"`
	Metadata  JSONB                 `json:"metadata,omitempty" db:"metadata"`
	ReadAt    *time.Time            `json:"readAt,omitempty" db:"read_at"`
	CreatedAt time.Time             `json:"createdAt" db:"created_at"`
}

// NotificationPreference holds per-user channel and event opt-ins
type NotificationPreference struct {
	UserID                  uuid.UUID `json:"userId" db:"user_id"`
	ToastEnabled            bool      `json:"toastEnabled" db:"toast_enabled"`
	EmailEnabled            bool      `json:"emailEnabled" db:"email_enabled"`
	PushEnabled             bool      `json:"pushEnabled" db:"push_enabled"`
	BookingCreatedEnabled   bool      `json:"bookingCreatedEnabled" db:"booking_created_enabled"`
	BookingConfirmedEnabled bool      `json:"bookingConfirmedEnabled" db:"booking_confirmed_enabled"`
	BookingCancelledEnabled bool      `json:"bookingCancelledEnabled" db:"booking_cancelled_enabled"`
	PaymentEnabled          bool      `json:"paymentEnabled" db:"payment_enabled"`
	UpdatedAt               time.Time `json:"updatedAt" db:"updated_at"`
}

// DefaultNotificationPreference opts the user into everything
func DefaultNotificationPreference(userID uuid.UUID) *NotificationPreference {
	return &NotificationPreference{
		UserID:                  userID,
		ToastEnabled:            true,
		EmailEnabled:            true,
		PushEnabled:             true,
		BookingCreatedEnabled:   true,
		BookingConfirmedEnabled: true,
		BookingCancelledEnabled: true,
		PaymentEnabled:          true,
		UpdatedAt:               time.Now(),
	}
}

// AllowsEvent reports whether the user opted into the event type.
// Unknown event types are allowed.
func (p *NotificationPreference) AllowsEvent(eventType NotificationEventType) bool {
	switch eventType {
	case EventBookingCreated:
		return p.BookingCreatedEnabled
	case EventBookingConfirmed:
		return p.BookingConfirmedEnabled
	case EventBookingCancelled:
		return p.BookingCancelledEnabled
	case EventPaymentRefunded:
		return p.PaymentEnabled
	}
	return true
}

// AllowsChannel reports whether the user opted into the channel
func (p *NotificationPreference) AllowsChannel(ch NotificationChannel) bool {
	switch ch {
	case ChannelToast:
		return p.ToastEnabled
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	}
	return false
}

// EffectiveChannels intersects the requested channels with the user's opt-ins.
// The result is empty when the event type is disabled. Duplicates are dropped.
func (p *NotificationPreference) EffectiveChannels(eventType NotificationEventType, requested ChannelList) ChannelList {
	effective := ChannelList{}
	if !p.AllowsEvent(eventType) {
		return effective
	}
	for _, ch := range requested {
		if p.AllowsChannel(ch) && !effective.Contains(ch) {
			effective = append(effective, ch)
		}
	}
	return effective
}

// UpdateNotificationPreferenceRequest replaces a user's preference flags.
// Nil fields keep their current value.
type UpdateNotificationPreferenceRequest struct {
	ToastEnabled            *bool `json:"toastEnabled"`
	EmailEnabled            *bool `json:"emailEnabled"`
	PushEnabled             *bool `json:"pushEnabled"`
	BookingCreatedEnabled   *bool `json:"bookingCreatedEnabled"`
	BookingConfirmedEnabled *bool `json:"bookingConfirmedEnabled"`
	BookingCancelledEnabled *bool `json:"bookingCancelledEnabled"`
	PaymentEnabled          *bool `json:"paymentEnabled"`
}

// Apply copies the set fields onto p
func (r *UpdateNotificationPreferenceRequest) Apply(p *NotificationPreference) {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.ToastEnabled, r.ToastEnabled)
	set(&p.EmailEnabled, r.EmailEnabled)
	set(&p.PushEnabled, r.PushEnabled)
	set(&p.BookingCreatedEnabled, r.BookingCreatedEnabled)
	set(&p.BookingConfirmedEnabled, r.BookingConfirmedEnabled)
	set(&p.BookingCancelledEnabled, r.BookingCancelledEnabled)
	set(&p.PaymentEnabled, r.PaymentEnabled)
}

// NotificationList is the response of the list endpoint
type NotificationList struct {
	Items       []Notification `json:"items"`
	UnreadCount int            `json:"unreadCount"`
}

// MarkReadRequest lists notifications to mark as read
type MarkReadRequest struct {
	IDs []uuid.UUID `json:"ids"`
}
