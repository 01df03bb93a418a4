package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/experiencehub/booking-engine/internal/middleware"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/internal/services"
	"github.com/experiencehub/booking-engine/pkg/gateway"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestRouter returns a router that authenticates every request as user
// when user is not nil
func newTestRouter(user *middleware.UserContext) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if user != nil {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.UserContextKey, *user)
			c.Next()
		})
	}
	return router
}

func explorerUser() *middleware.UserContext {
	return &middleware.UserContext{UserID: uuid.New(), Email: "explorer@example.com", Roles: []string{models.RoleExplorer}}
}

func organizerUser() *middleware.UserContext {
	return &middleware.UserContext{UserID: uuid.New(), Roles: []string{models.RoleOrganizer}}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "handler-test/1.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into), w.Body.String())
}

// ============================================================================
// FAKES
// ============================================================================

type fakeBookingAPI struct {
	createResp *models.BookingResponse
	booking    *models.Booking
	checkout   *models.CheckoutResult
	err        error

	gotExplorer uuid.UUID
	gotActor    services.Actor
	gotID       uuid.UUID
	gotStatus   models.BookingStatus
	gotCreate   *models.CreateBookingRequest
	gotCheckout *models.StartCheckoutRequest
	gotClient   services.ClientInfo
}

func (f *fakeBookingAPI) CreateBooking(_ context.Context, explorerID uuid.UUID, req *models.CreateBookingRequest, client services.ClientInfo) (*models.BookingResponse, error) {
	f.gotExplorer, f.gotCreate, f.gotClient = explorerID, req, client
	return f.createResp, f.err
}

func (f *fakeBookingAPI) GetBooking(_ context.Context, actor services.Actor, id uuid.UUID) (*models.Booking, error) {
	f.gotActor, f.gotID = actor, id
	return f.booking, f.err
}

func (f *fakeBookingAPI) StartCheckout(_ context.Context, actor services.Actor, id uuid.UUID, req *models.StartCheckoutRequest, client services.ClientInfo) (*models.CheckoutResult, error) {
	f.gotActor, f.gotID, f.gotCheckout, f.gotClient = actor, id, req, client
	return f.checkout, f.err
}

func (f *fakeBookingAPI) UpdateStatusByOrganizer(_ context.Context, actor services.Actor, id uuid.UUID, status models.BookingStatus) (*models.Booking, error) {
	f.gotActor, f.gotID, f.gotStatus = actor, id, status
	return f.booking, f.err
}

func (f *fakeBookingAPI) CancelByExplorer(_ context.Context, explorerID, id uuid.UUID) (*models.Booking, error) {
	f.gotExplorer, f.gotID = explorerID, id
	return f.booking, f.err
}

type fakeAvailability struct {
	availability *models.SessionAvailability
	err          error
}

func (f *fakeAvailability) SessionAvailability(_ context.Context, sessionID uuid.UUID) (*models.SessionAvailability, error) {
	if f.availability != nil {
		f.availability.SessionID = sessionID
	}
	return f.availability, f.err
}

type fakeRefunder struct {
	resp     *models.RefundResponse
	err      error
	gotActor services.Actor
	gotReq   *models.RefundRequest
}

func (f *fakeRefunder) Refund(_ context.Context, actor services.Actor, req *models.RefundRequest, _ services.ClientInfo) (*models.RefundResponse, error) {
	f.gotActor, f.gotReq = actor, req
	return f.resp, f.err
}

type fakeReconciler struct {
	result      *services.SettlementResult
	err         error
	gotProvider models.PaymentProvider
	gotCallback gateway.Callback
	calls       int
}

func (f *fakeReconciler) Reconcile(_ context.Context, provider models.PaymentProvider, cb gateway.Callback, _ services.ClientInfo) (*services.SettlementResult, error) {
	f.calls++
	f.gotProvider, f.gotCallback = provider, cb
	return f.result, f.err
}

type fakeNotificationAPI struct {
	list      *models.NotificationList
	pref      *models.NotificationPreference
	updated   int64
	feed      chan models.Notification
	err       error
	gotLimit  int
	gotIDs    []uuid.UUID
	gotUpdate *models.UpdateNotificationPreferenceRequest
	closed    chan struct{}
}

func (f *fakeNotificationAPI) ListNotifications(_ context.Context, _ uuid.UUID, limit int) (*models.NotificationList, error) {
	f.gotLimit = limit
	return f.list, f.err
}

func (f *fakeNotificationAPI) MarkNotificationsRead(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (int64, error) {
	f.gotIDs = ids
	return f.updated, f.err
}

func (f *fakeNotificationAPI) GetPreferences(_ context.Context, userID uuid.UUID) (*models.NotificationPreference, error) {
	if f.pref != nil {
		f.pref.UserID = userID
	}
	return f.pref, f.err
}

func (f *fakeNotificationAPI) UpdatePreferences(_ context.Context, userID uuid.UUID, req *models.UpdateNotificationPreferenceRequest) (*models.NotificationPreference, error) {
	f.gotUpdate = req
	if f.pref != nil {
		req.Apply(f.pref)
	}
	return f.pref, f.err
}

func (f *fakeNotificationAPI) Subscribe(_ context.Context, _ uuid.UUID) (<-chan models.Notification, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.feed, func() { close(f.closed) }, nil
}
