package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name      string
		from      BookingStatus
		to        BookingStatus
		wantError bool
	}{
		{"pending to confirmed", BookingStatusPending, BookingStatusConfirmed, false},
		{"pending to cancelled", BookingStatusPending, BookingStatusCancelled, false},
		{"confirmed to cancelled", BookingStatusConfirmed, BookingStatusCancelled, false},
		{"confirmed to pending", BookingStatusConfirmed, BookingStatusPending, true},
		{"cancelled to confirmed", BookingStatusCancelled, BookingStatusConfirmed, true},
		{"cancelled to pending", BookingStatusCancelled, BookingStatusPending, true},
		{"same status is allowed", BookingStatusCancelled, BookingStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransition(tt.from, tt.to)
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			var illegal *IllegalTransitionError
			require.True(t, errors.As(err, &illegal))
			assert.Equal(t, tt.from, illegal.From)
			assert.Equal(t, tt.to, illegal.To)
		})
	}
}

func TestCheckTransition_ReconfirmMessage(t *testing.T) {
	err := CheckTransition(BookingStatusCancelled, BookingStatusConfirmed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled bookings cannot be reconfirmed")
}

func TestBooking_HoldsCapacity(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	pendingLive := &Booking{Status: BookingStatusPending, ExpiresAt: &future}
	pendingExpired := &Booking{Status: BookingStatusPending, ExpiresAt: &past}
	confirmed := &Booking{Status: BookingStatusConfirmed}
	cancelled := &Booking{Status: BookingStatusCancelled, ExpiresAt: &future}

	assert.True(t, pendingLive.HoldsCapacity(now))
	assert.False(t, pendingExpired.HoldsCapacity(now))
	assert.True(t, pendingExpired.IsExpired(now))
	assert.True(t, confirmed.HoldsCapacity(now))
	assert.False(t, cancelled.HoldsCapacity(now))
	assert.False(t, cancelled.IsExpired(now))
}

func TestSession_TotalPrice(t *testing.T) {
	exp := &Experience{ID: uuid.New(), Price: 25.5}
	session := &Session{Capacity: 10}

	assert.Equal(t, 76.5, session.TotalPrice(exp, 3))

	override := 10.0
	session.PriceOverride = &override
	assert.Equal(t, 30.0, session.TotalPrice(exp, 3))
}

func TestAvailableSpots(t *testing.T) {
	assert.Equal(t, 7, AvailableSpots(10, 3))
	assert.Equal(t, 0, AvailableSpots(5, 5))
	assert.Equal(t, 0, AvailableSpots(5, 8))
}

func TestParseProvider(t *testing.T) {
	p, ok := ParseProvider("stripe")
	assert.True(t, ok)
	assert.Equal(t, ProviderStripe, p)

	p, ok = ParseProvider(" PayZone ")
	assert.True(t, ok)
	assert.Equal(t, ProviderPayzone, p)

	_, ok = ParseProvider("bitcoin")
	assert.False(t, ok)
}

func TestPayment_RefundableAmount(t *testing.T) {
	p := &Payment{Status: PaymentStatusSucceeded, Amount: 100}
	assert.Equal(t, 100.0, p.RefundableAmount())

	p.Status = PaymentStatusRefunded
	p.RefundedAmount = 40
	assert.Equal(t, 60.0, p.RefundableAmount())

	p.Status = PaymentStatusCancelled
	assert.Equal(t, 0.0, p.RefundableAmount())
}
