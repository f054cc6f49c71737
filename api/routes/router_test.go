package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clubemecanico/courses-backend/internal/cart"
	"github.com/clubemecanico/courses-backend/internal/checkout"
	"github.com/clubemecanico/courses-backend/internal/orders"
	"github.com/clubemecanico/courses-backend/internal/reconciliation"
	"github.com/clubemecanico/courses-backend/internal/sessions"
	"github.com/clubemecanico/courses-backend/pkg/auth"
	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	"github.com/clubemecanico/courses-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryStore struct {
	mu       sync.Mutex
	data     map[string]string
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryStore) RateLimitKey(parts ...string) string {
	return "rl:" + strings.Join(parts, ":")
}

func (m *memoryStore) Ping(ctx context.Context) error {
	return nil
}

type stubOrders struct{}

func (stubOrders) Get(ctx context.Context, userID, orderID int64) (*orders.OrderDTO, error) {
	return &orders.OrderDTO{ID: orderID, Status: enums.OrderStatusPending}, nil
}

func (stubOrders) List(ctx context.Context, userID int64, params pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{Orders: []orders.OrderSummary{}}, nil
}

func (stubOrders) PaymentStatus(ctx context.Context, userID, orderID int64) (*orders.PaymentStatusDTO, error) {
	return &orders.PaymentStatusDTO{OrderID: orderID, Status: enums.OrderStatusPending, PaymentStatus: enums.OrderStatusPending}, nil
}

func (stubOrders) ExpireOverdue(ctx context.Context, limit int) (orders.ExpirySummary, error) {
	return orders.ExpirySummary{}, nil
}

func (stubOrders) ExpireOrphans(ctx context.Context, cutoff time.Time, limit int) (orders.ExpirySummary, error) {
	return orders.ExpirySummary{}, nil
}

type stubCheckout struct {
	calls int
}

func (s *stubCheckout) CreateOrder(ctx context.Context, input checkout.CreateOrderInput) (*orders.OrderDTO, error) {
	s.calls++
	return &orders.OrderDTO{ID: int64(s.calls), Status: enums.OrderStatusPending}, nil
}

type stubCart struct{}

func (stubCart) List(ctx context.Context, userID int64) (*cart.View, error) {
	return &cart.View{Entries: []cart.EntryDTO{}}, nil
}

func (stubCart) AddEntry(ctx context.Context, input cart.AddEntryInput) (*cart.EntryDTO, error) {
	return &cart.EntryDTO{ID: 1, CourseID: input.CourseID}, nil
}

func (stubCart) RemoveEntry(ctx context.Context, userID, entryID int64) error {
	return nil
}

func (stubCart) GetCartEntries(ctx context.Context, userID int64) ([]cart.Line, error) {
	return nil, nil
}

func (stubCart) ClearCart(ctx context.Context, userID int64) error {
	return nil
}

type stubSessions struct{}

func (stubSessions) HasAvailableSeat(ctx context.Context, sessionID int64) (bool, error) {
	return true, nil
}

func (stubSessions) Availability(ctx context.Context, sessionID int64) (*sessions.Availability, error) {
	return &sessions.Availability{SessionID: sessionID, AvailableSeats: 3, HasAvailableSeat: true}, nil
}

type stubReconciliation struct {
	calls int
}

func (s *stubReconciliation) HandleNotification(ctx context.Context, n reconciliation.Notification) (reconciliation.Result, error) {
	s.calls++
	return reconciliation.Result{Outcome: reconciliation.OutcomeIgnored}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", FrontendURL: "http://localhost:3000"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "clube", ExpirationMinutes: 10},
		RateLimit: config.RateLimitConfig{
			Window:          time.Minute,
			CheckoutPerUser: 2,
			PublicPerIP:     2,
		},
	}
}

type harness struct {
	cfg            *config.Config
	store          *memoryStore
	checkout       *stubCheckout
	reconciliation *stubReconciliation
	router         http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cfg:            testConfig(),
		store:          newMemoryStore(),
		checkout:       &stubCheckout{},
		reconciliation: &stubReconciliation{},
	}
	h.router = NewRouter(h.cfg, nil, stubPinger{}, h.store, prometheus.NewRegistry(), Services{
		Cart:           stubCart{},
		Checkout:       h.checkout,
		Orders:         stubOrders{},
		Sessions:       stubSessions{},
		Reconciliation: h.reconciliation,
	})
	return h
}

func (h *harness) token(t *testing.T, userID int64) string {
	t.Helper()
	return h.tokenWithRole(t, userID, enums.UserRoleStudent)
}

func (h *harness) tokenWithRole(t *testing.T, userID int64, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(h.cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Email:  "aluno@example.com",
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := h.do(httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	h := newHarness(t)
	resp := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/api/v1/cart", "/api/v1/orders", "/api/v1/orders/1", "/api/v1/orders/1/payment-status"} {
		resp := h.do(httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestPrivateRoutesSucceedWithJWT(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, 7)

	for _, path := range []string{"/api/v1/cart", "/api/v1/orders", "/api/v1/orders/1", "/api/v1/orders/1/payment-status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := h.do(req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d: %s", path, resp.Code, resp.Body.String())
		}
	}
}

func TestAvailabilityIsPublic(t *testing.T) {
	h := newHarness(t)
	resp := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/class-sessions/3/availability", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestWebhookIsPublic(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mercadopago", strings.NewReader(`{"type":"payment","data":{"id":"1"}}`))
	resp := h.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if h.reconciliation.calls != 1 {
		t.Fatalf("expected one notification, got %d", h.reconciliation.calls)
	}
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+h.token(t, 7))
	resp := h.do(req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if h.checkout.calls != 0 {
		t.Fatalf("checkout should not run without a key")
	}
}

func TestCheckoutReplaysSameKey(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, 7)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "checkout-1")
		resp := h.do(req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d: %s", i, resp.Code, resp.Body.String())
		}
	}
	if h.checkout.calls != 1 {
		t.Fatalf("expected a single order, got %d", h.checkout.calls)
	}
}

func TestCheckoutRateLimitedPerUser(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, 7)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", fmt.Sprintf("checkout-%d", i))
		codes = append(codes, h.do(req).Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestPurchaseRoutesRequireBuyerRole(t *testing.T) {
	h := newHarness(t)
	token := h.tokenWithRole(t, 9, enums.UserRoleInstructor)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if resp := h.do(req); resp.Code != http.StatusForbidden {
		t.Fatalf("cart: expected 403 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if resp := h.do(req); resp.Code != http.StatusOK {
		t.Fatalf("orders: expected 200 got %d", resp.Code)
	}
}

func TestWebhookIsNeverRateLimited(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mercadopago", strings.NewReader(`{"type":"payment","data":{"id":"1"}}`))
		req.RemoteAddr = "10.0.0.1:1234"
		if resp := h.do(req); resp.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i, resp.Code)
		}
	}
	if h.reconciliation.calls != 5 {
		t.Fatalf("expected five notifications, got %d", h.reconciliation.calls)
	}
}

func TestAvailabilityRateLimitedPerIP(t *testing.T) {
	h := newHarness(t)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/class-sessions/3/availability", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		codes = append(codes, h.do(req).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}
