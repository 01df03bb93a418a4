package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/experiencehub/booking-engine/internal/mailer"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/internal/realtime"
	"github.com/experiencehub/booking-engine/pkg/gateway"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// CLOCK
// ============================================================================

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ============================================================================
// IN-MEMORY DATABASE
// One mutex guards everything, standing in for the row locks of the real store.
// ============================================================================

type memDB struct {
	mu            sync.Mutex
	experiences   map[uuid.UUID]models.Experience
	sessions      map[uuid.UUID]models.Session
	bookings      map[uuid.UUID]models.Booking
	payments      map[uuid.UUID]models.Payment
	tickets       map[uuid.UUID]models.Ticket
	notifications []models.Notification
	prefs         map[uuid.UUID]models.NotificationPreference
	users         map[uuid.UUID]models.User
	audits        []models.PaymentAudit
	ticketErr     error
}

func newMemDB() *memDB {
	return &memDB{
		experiences: map[uuid.UUID]models.Experience{},
		sessions:    map[uuid.UUID]models.Session{},
		bookings:    map[uuid.UUID]models.Booking{},
		payments:    map[uuid.UUID]models.Payment{},
		tickets:     map[uuid.UUID]models.Ticket{},
		prefs:       map[uuid.UUID]models.NotificationPreference{},
		users:       map[uuid.UUID]models.User{},
	}
}

func (db *memDB) reserved(sessionID uuid.UUID, statuses []models.BookingStatus, now time.Time) int {
	total := 0
	for _, b := range db.bookings {
		if b.SessionID != sessionID || b.IsExpired(now) {
			continue
		}
		for _, st := range statuses {
			if b.Status == st {
				total += b.Guests
			}
		}
	}
	return total
}

func (db *memDB) booking(id uuid.UUID) models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.bookings[id]
}

func (db *memDB) payment(id uuid.UUID) models.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.payments[id]
}

func (db *memDB) paymentsFor(bookingID uuid.UUID) []models.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.Payment
	for _, p := range db.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (db *memDB) ticketCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.tickets)
}

func (db *memDB) notificationsFor(userID uuid.UUID, eventType models.NotificationEventType) []models.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.Notification
	for _, n := range db.notifications {
		if n.UserID == userID && n.EventType == eventType {
			out = append(out, n)
		}
	}
	return out
}

func (db *memDB) auditsOf(eventType models.PaymentEventType) []models.PaymentAudit {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.PaymentAudit
	for _, a := range db.audits {
		if a.EventType == eventType {
			out = append(out, a)
		}
	}
	return out
}

// fakeBookings implements BookingStore
type fakeBookings struct{ db *memDB }

func (f fakeBookings) ReservedGuests(ctx context.Context, sessionID uuid.UUID, statuses []models.BookingStatus, now time.Time) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.reserved(sessionID, statuses, now), nil
}

func (f fakeBookings) CreateWithinCapacity(ctx context.Context, b *models.Booking, now time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	session, ok := f.db.sessions[b.SessionID]
	if !ok {
		return &models.NotFoundError{Resource: "session", ID: b.SessionID.String()}
	}
	available := models.AvailableSpots(session.Capacity, f.db.reserved(b.SessionID, models.CapacityHoldingStatuses, now))
	if b.Guests > available {
		return &models.CapacityExceededError{SessionID: b.SessionID.String(), Requested: b.Guests, Available: available}
	}
	f.db.bookings[b.ID] = *b
	return nil
}

func (f fakeBookings) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f fakeBookings) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, now time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.ExpiresAt = nil
	b.UpdatedAt = now
	f.db.bookings[id] = b
	return true, nil
}

func (f fakeBookings) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, now time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.bookings[id]
	if !ok {
		return nil
	}
	b.PaymentStatus = &status
	b.UpdatedAt = now
	f.db.bookings[id] = b
	return nil
}

func (f fakeBookings) ConfirmPaid(ctx context.Context, id uuid.UUID, now time.Time) (models.ConfirmationOutcome, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.bookings[id]
	if !ok {
		return "", &models.NotFoundError{Resource: "booking", ID: id.String()}
	}
	succeeded := models.PaymentStatusSucceeded
	switch b.Status {
	case models.BookingStatusCancelled:
		return models.ConfirmationRejected, nil
	case models.BookingStatusConfirmed:
		b.PaymentStatus = &succeeded
		f.db.bookings[id] = b
		return models.ConfirmationAlreadyConfirmed, nil
	}
	if b.IsExpired(now) {
		session := f.db.sessions[b.SessionID]
		available := models.AvailableSpots(session.Capacity, f.db.reserved(b.SessionID, models.CapacityHoldingStatuses, now))
		if b.Guests > available {
			b.Status = models.BookingStatusCancelled
			b.ExpiresAt = nil
			f.db.bookings[id] = b
			return models.ConfirmationRejected, nil
		}
	}
	b.Status = models.BookingStatusConfirmed
	b.PaymentStatus = &succeeded
	b.ExpiresAt = nil
	b.UpdatedAt = now
	f.db.bookings[id] = b
	return models.ConfirmationApplied, nil
}

func (f fakeBookings) ExpireStale(ctx context.Context, cutoff, now time.Time, limit int) ([]models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Booking
	for id, b := range f.db.bookings {
		if len(out) >= limit {
			break
		}
		if b.Status != models.BookingStatusPending || b.ExpiresAt == nil || !b.ExpiresAt.Before(cutoff) {
			continue
		}
		b.Status = models.BookingStatusCancelled
		if b.PaymentStatus != nil {
			cancelled := models.PaymentStatusCancelled
			b.PaymentStatus = &cancelled
		}
		b.ExpiresAt = nil
		b.UpdatedAt = now
		f.db.bookings[id] = b
		out = append(out, b)
	}
	return out, nil
}

func (f fakeBookings) ClaimSideEffects(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.bookings[id]
	if !ok || b.Status != models.BookingStatusConfirmed || b.SideEffectsAt != nil {
		return false, nil
	}
	b.SideEffectsAt = &now
	f.db.bookings[id] = b
	return true, nil
}

// fakeExperiences implements ExperienceStore
type fakeExperiences struct{ db *memDB }

func (f fakeExperiences) GetExperience(ctx context.Context, id uuid.UUID) (*models.Experience, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.experiences[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f fakeExperiences) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// fakePayments implements PaymentStore
type fakePayments struct{ db *memDB }

func (f fakePayments) Create(ctx context.Context, p *models.Payment) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.payments[p.ID] = *p
	return nil
}

func (f fakePayments) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f fakePayments) GetByProviderPaymentID(ctx context.Context, ref string) (*models.Payment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, p := range f.db.payments {
		if p.ProviderPaymentID != nil && *p.ProviderPaymentID == ref {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (f fakePayments) GetLatestForBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	list := f.db.paymentsFor(bookingID)
	if len(list) == 0 {
		return nil, nil
	}
	p := list[len(list)-1]
	return &p, nil
}

func (f fakePayments) update(id uuid.UUID, allowed func(models.PaymentStatus) bool, mutate func(*models.Payment)) bool {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.payments[id]
	if !ok || !allowed(p.Status) {
		return false
	}
	mutate(&p)
	f.db.payments[id] = p
	return true
}

func (f fakePayments) SetCheckoutCreated(ctx context.Context, id uuid.UUID, ref string, status models.PaymentStatus, now time.Time) error {
	ok := f.update(id,
		func(s models.PaymentStatus) bool { return s == models.PaymentStatusRequiresPaymentMethod },
		func(p *models.Payment) { p.ProviderPaymentID = &ref; p.Status = status; p.UpdatedAt = now })
	if !ok {
		return fmt.Errorf("payment %s is no longer awaiting checkout", id)
	}
	return nil
}

func (f fakePayments) MarkSucceeded(ctx context.Context, id uuid.UUID, ref string, now time.Time) (bool, error) {
	return f.update(id,
		func(s models.PaymentStatus) bool { return !s.IsSettled() },
		func(p *models.Payment) {
			p.Status = models.PaymentStatusSucceeded
			p.CapturedAt = &now
			if ref != "" {
				p.ProviderPaymentID = &ref
			}
			p.ErrorCode, p.ErrorMessage = nil, nil
		}), nil
}

func (f fakePayments) MarkCancelled(ctx context.Context, id uuid.UUID, code, message string, now time.Time) (bool, error) {
	return f.update(id,
		func(s models.PaymentStatus) bool { return !s.IsSettled() && s != models.PaymentStatusCancelled },
		func(p *models.Payment) {
			p.Status = models.PaymentStatusCancelled
			if code != "" {
				p.ErrorCode = &code
			}
			if message != "" {
				p.ErrorMessage = &message
			}
		}), nil
}

func (f fakePayments) MarkProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return f.update(id,
		func(s models.PaymentStatus) bool {
			return s == models.PaymentStatusRequiresPaymentMethod || s == models.PaymentStatusRequiresAction
		},
		func(p *models.Payment) { p.Status = models.PaymentStatusProcessing }), nil
}

func (f fakePayments) RecordRefund(ctx context.Context, id uuid.UUID, amount float64, now time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.payments[id]
	if !ok || !p.Status.IsSettled() || p.RefundedAmount+amount > p.Amount+0.005 {
		return false, nil
	}
	p.Status = models.PaymentStatusRefunded
	p.RefundedAmount = models.RoundMoney(p.RefundedAmount + amount)
	p.RefundedAt = &now
	f.db.payments[id] = p
	return true, nil
}

func (f fakePayments) CancelOpenForBooking(ctx context.Context, bookingID uuid.UUID, reason string, now time.Time) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for id, p := range f.db.payments {
		if p.BookingID == bookingID && p.Status.IsOpen() {
			p.Status = models.PaymentStatusCancelled
			r := reason
			p.ErrorCode = &r
			f.db.payments[id] = p
			n++
		}
	}
	return n, nil
}

// fakeNotifications implements NotificationStore
type fakeNotifications struct{ db *memDB }

func (f fakeNotifications) EnsurePreference(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.prefs[userID]
	if !ok {
		p = *models.DefaultNotificationPreference(userID)
		f.db.prefs[userID] = p
	}
	return &p, nil
}

func (f fakeNotifications) SavePreference(ctx context.Context, p *models.NotificationPreference) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.prefs[p.UserID] = *p
	return nil
}

func (f fakeNotifications) Create(ctx context.Context, n *models.Notification) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.notifications = append(f.db.notifications, *n)
	return nil
}

func (f fakeNotifications) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	items := []models.Notification{}
	for i := len(f.db.notifications) - 1; i >= 0 && len(items) < limit; i-- {
		if f.db.notifications[i].UserID == userID {
			items = append(items, f.db.notifications[i])
		}
	}
	return items, nil
}

func (f fakeNotifications) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	count := 0
	for _, n := range f.db.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (f fakeNotifications) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for i := range f.db.notifications {
		item := &f.db.notifications[i]
		if item.UserID == userID && want[item.ID] && item.ReadAt == nil {
			t := now
			item.ReadAt = &t
			n++
		}
	}
	return n, nil
}

// fakeUsers implements UserStore
type fakeUsers struct{ db *memDB }

func (f fakeUsers) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// fakeTickets implements TicketStore
type fakeTickets struct{ db *memDB }

func (f fakeTickets) CreateIfAbsent(ctx context.Context, t *models.Ticket) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.ticketErr != nil {
		return false, f.db.ticketErr
	}
	if _, ok := f.db.tickets[t.BookingID]; ok {
		return false, nil
	}
	f.db.tickets[t.BookingID] = *t
	return true, nil
}

func (f fakeTickets) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Ticket, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.tickets[bookingID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// fakeAudits implements PaymentAuditStore
type fakeAudits struct{ db *memDB }

func (f fakeAudits) Log(ctx context.Context, a *models.PaymentAudit) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.audits = append(f.db.audits, *a)
	return nil
}

// ============================================================================
// GATEWAY
// ============================================================================

type fakeGateway struct {
	mu sync.Mutex

	checkoutErr error
	offline     bool
	requests    []gateway.CheckoutRequest

	settlement *gateway.Settlement
	parseErr   error

	captured   *gateway.Settlement
	captureErr error
	captures   int

	refundErr error
	refunds   []gateway.RefundRequest
}

func (g *fakeGateway) Provider() string { return gateway.ProviderStripe }

func (g *fakeGateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	return &gateway.Checkout{
		ProviderPaymentID: "ref_" + req.PaymentID,
		RedirectURL:       "https://pay.example.com/checkout/" + req.PaymentID,
		Offline:           g.offline,
	}, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, req)
	return &gateway.Refund{ProviderRefundID: fmt.Sprintf("re_%d", len(g.refunds)), Status: "succeeded"}, nil
}

func (g *fakeGateway) ParseCallback(ctx context.Context, cb gateway.Callback) (*gateway.Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	s := *g.settlement
	return &s, nil
}

func (g *fakeGateway) Capture(ctx context.Context, ref string) (*gateway.Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captures++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	s := *g.captured
	return &s, nil
}

func (g *fakeGateway) lastRequest() gateway.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type fakeResolver struct {
	gw  gateway.Gateway
	err error
}

func (r fakeResolver) Resolve(ctx context.Context, provider models.PaymentProvider) (gateway.Gateway, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.gw, nil
}

// recordingDispatcher captures sent emails
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, msg mailer.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// ============================================================================
// WIRED ENVIRONMENT
// ============================================================================

type testEnv struct {
	db    *memDB
	clock *testClock
	gw    *fakeGateway
	email *recordingDispatcher

	broker        *realtime.MemoryBroker
	inventory     *InventoryService
	notifications *NotificationService
	confirmation  *ConfirmationService
	payments      *PaymentService
	settlement    *SettlementService
	bookings      *BookingService

	organizer  uuid.UUID
	explorer   uuid.UUID
	experience models.Experience
	session    models.Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:        newMemDB(),
		clock:     newTestClock(),
		gw:        &fakeGateway{},
		email:     &recordingDispatcher{},
		broker:    realtime.NewMemoryBroker(),
		organizer: uuid.New(),
		explorer:  uuid.New(),
	}
	logger := testLogger()
	now := env.clock.Now

	organizerEmail := "organizer@example.com"
	explorerEmail := "explorer@example.com"
	env.db.users[env.organizer] = models.User{ID: env.organizer, Email: &organizerEmail, Roles: []string{models.RoleOrganizer}}
	env.db.users[env.explorer] = models.User{ID: env.explorer, Email: &explorerEmail, Roles: []string{models.RoleExplorer}}

	env.experience = models.Experience{
		ID:          uuid.New(),
		OrganizerID: env.organizer,
		Title:       "Atlas sunrise hike",
		Price:       150,
		Currency:    "MAD",
		Status:      models.ExperienceStatusPublished,
	}
	env.db.experiences[env.experience.ID] = env.experience
	env.session = env.addSession(10)

	bookings := fakeBookings{env.db}
	experiences := fakeExperiences{env.db}
	payments := fakePayments{env.db}
	resolver := fakeResolver{gw: env.gw}

	env.inventory = NewInventoryService(bookings, experiences, now)
	env.notifications = NewNotificationService(fakeNotifications{env.db}, fakeUsers{env.db}, env.broker, env.email, "https://app.example.com", logger, now)

	issuer, err := NewSnowflakeTicketIssuer(fakeTickets{env.db}, 1, now)
	require.NoError(t, err)
	env.confirmation = NewConfirmationService(bookings, issuer, env.notifications, logger, now)

	audit := NewAuditService(fakeAudits{env.db}, logger, now)
	env.payments = NewPaymentService(payments, bookings, experiences, resolver, env.notifications, audit,
		PaymentServiceConfig{PublicBaseURL: "https://api.example.com/"}, logger, now)
	env.settlement = NewSettlementService(payments, bookings, resolver, env.confirmation, env.payments, audit, logger, now)
	env.bookings = NewBookingService(bookings, experiences, payments, env.inventory, env.payments, env.confirmation,
		env.notifications, DefaultBookingConfig(), logger, now)

	t.Cleanup(env.notifications.Wait)
	return env
}

func (env *testEnv) addSession(capacity int) models.Session {
	s := models.Session{
		ID:           uuid.New(),
		ExperienceID: env.experience.ID,
		StartsAt:     env.clock.Now().Add(72 * time.Hour),
		Capacity:     capacity,
	}
	env.db.mu.Lock()
	env.db.sessions[s.ID] = s
	env.db.mu.Unlock()
	return s
}

// seedBooking inserts a booking directly, bypassing the capacity check
func (env *testEnv) seedBooking(sessionID uuid.UUID, guests int, status models.BookingStatus, expiresAt *time.Time) models.Booking {
	now := env.clock.Now()
	b := models.Booking{
		ID:           uuid.New(),
		SessionID:    sessionID,
		ExperienceID: env.experience.ID,
		ExplorerID:   env.explorer,
		Guests:       guests,
		Status:       status,
		TotalPrice:   float64(guests) * env.experience.Price,
		Currency:     env.experience.Currency,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	env.db.mu.Lock()
	env.db.bookings[b.ID] = b
	env.db.mu.Unlock()
	return b
}

func (env *testEnv) explorerActor() Actor {
	return Actor{UserID: env.explorer, Roles: []string{models.RoleExplorer}}
}

func (env *testEnv) organizerActor() Actor {
	return Actor{UserID: env.organizer, Roles: []string{models.RoleOrganizer}}
}

// createPaidCheckout creates a booking and a checkout for it
func (env *testEnv) createPaidCheckout(t *testing.T, guests int) (*models.BookingResponse, *models.CheckoutResult) {
	t.Helper()
	resp, err := env.bookings.CreateBooking(context.Background(), env.explorer, &models.CreateBookingRequest{
		ExperienceID: env.experience.ID,
		SessionID:    env.session.ID,
		Guests:       guests,
	}, ClientInfo{})
	require.NoError(t, err)

	booking := env.db.booking(resp.ID)
	result, err := env.payments.StartCheckout(context.Background(), &booking, models.ProviderStripe, "", ClientInfo{})
	require.NoError(t, err)
	return resp, result
}

func ptr[T any](v T) *T {
	return &v
}
