/*
handlers_test.go - HTTP tests for the API

Tests for:
- Authentication (missing, forged and non-admin tokens)
- Order flow through HTTP: user, top-up, site, order, paid
- Domain error mapping to HTTP status codes
- Row scoping for non-admin callers
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/factory"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/store/sqlite"
)

var testSecret = []byte("test-secret")

// =============================================================================
// HELPERS
// =============================================================================

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
	admin   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log, _ := test.NewNullLogger()
	clock := generic.FixedClock{At: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
	engine, err := factory.Bootstrap(context.Background(), store, nil, clock, log)
	require.NoError(t, err)

	h := NewHandler(store, engine, log)
	return &testServer{
		t:       t,
		handler: h,
		router:  NewRouter(h, RouterOptions{Auth: &Authenticator{Secret: testSecret}, Demo: true}),
		admin:   token(t, "back-office", RoleAdmin, testSecret),
	}
}

func token(t *testing.T, subject, role string, secret []byte) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

// do sends a request with the given bearer token; an empty token sends none.
func (s *testServer) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedUser creates a user with a fixed id and tops the balance up.
func (s *testServer) seedUser(id, email, euro, rub string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/users", s.admin, CreateUserRequest{ID: id, Email: email, Name: id})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/balances/"+id+"/replenish", s.admin, ReplenishRequest{
		AmountEuro: generic.MustParseDecimal(euro),
		AmountRub:  generic.MustParseDecimal(rub),
		Comment:    "top-up",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) seedSite(name string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/sites", s.admin, SiteRequest{Name: name, URL: "https://" + name + ".example"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[SiteDTO](s.t, rec).ID
}

func (s *testServer) seedOrder(userID, siteID, euro, rub string) OrderDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/orders", s.admin, OrderRequest{
		UserID:     userID,
		SiteID:     siteID,
		AmountEuro: generic.MustParseDecimal(euro),
		AmountRub:  generic.MustParseDecimal(rub),
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[OrderDTO](s.t, rec)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestHealth_IsPublic(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_MissingToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", decodeBody[ErrorResponse](t, rec).Error)
}

func TestAuth_RejectsBadTokens(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", token(t, "anna", RoleAdmin, []byte("other-secret"))},
		{"no subject", token(t, "", RoleAdmin, testSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/orders", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid token", decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestAuth_WritesRequireAdmin(t *testing.T) {
	// GIVEN: A valid token without the admin role
	// WHEN: Calling a write route
	// THEN: 403, while reads still pass

	s := newTestServer(t)
	customer := token(t, "anna", "customer", testSecret)

	rec := s.do(http.MethodPost, "/api/sites", customer, SiteRequest{Name: "Otto", URL: "https://otto.de"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/orders", customer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_DisabledRunsAsAdmin(t *testing.T) {
	// GIVEN: A router with authentication switched off
	// WHEN: Calling without a token, naming the user in X-User-ID
	// THEN: Admin routes pass and /me resolves to that user

	s := newTestServer(t)
	s.seedUser("anna", "anna@example.com", "100", "10000")
	open := NewRouter(s.handler, RouterOptions{Auth: &Authenticator{Disabled: true}})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me/balance", nil)
	req.Header.Set("X-User-ID", "anna")
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "100.00", decodeBody[BalanceDTO](t, rec).Euro)
}

// =============================================================================
// ORDER FLOW
// =============================================================================

func TestOrderFlow_PaidThroughHTTP(t *testing.T) {
	// GIVEN: A user with 100 EUR / 10000 RUB and a site
	// WHEN: An order of 50 EUR sold for 6000 RUB is created and paid
	// THEN: The balance drops by the order amounts and the order shows the profit

	s := newTestServer(t)
	s.seedUser("anna", "anna@example.com", "100", "10000")
	siteID := s.seedSite("zalando")

	created := s.seedOrder("anna", siteID, "50", "6000")
	assert.Equal(t, "new", created.Status)
	assert.Equal(t, "0.00", created.Expense)
	assert.Nil(t, created.PaidAt)

	rec := s.do(http.MethodPost, "/api/orders/"+created.ID+"/status", s.admin, StatusChangeRequest{Status: "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decodeBody[OrderDTO](t, rec)
	assert.Equal(t, "paid", paid.Status)
	assert.Equal(t, "50.00", paid.AmountEuro)
	assert.Equal(t, "5000.00", paid.Expense)
	assert.Equal(t, "1000.00", paid.Profit)
	assert.NotNil(t, paid.PaidAt)

	rec = s.do(http.MethodGet, "/api/balances/anna", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "50.00", b.Euro)
	assert.Equal(t, "4000.00", b.Rub)
	assert.Equal(t, "80.00", b.AverageExchangeRate)

	rec = s.do(http.MethodGet, "/api/balances/anna/transactions", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decodeBody[[]TransactionDTO](t, rec)
	require.Len(t, txs, 2)
	types := []string{txs[0].Type, txs[1].Type}
	assert.ElementsMatch(t, []string{"replenishment", "expense"}, types)
}

func TestOrderFlow_RefundAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("anna", "anna@example.com", "100", "10000")
	order := s.seedOrder("anna", s.seedSite("zalando"), "50", "6000")

	rec := s.do(http.MethodPost, "/api/orders/"+order.ID+"/status", s.admin, StatusChangeRequest{Status: "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodDelete, "/api/orders/"+order.ID, s.admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/orders/"+order.ID+"/status", s.admin, StatusChangeRequest{Status: "refunded"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/balances/anna", s.admin, nil)
	b := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "100.00", b.Euro)
	assert.Equal(t, "10000.00", b.Rub)

	rec = s.do(http.MethodDelete, "/api/orders/"+order.ID, s.admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestOrderFlow_BulkStatus(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("anna", "anna@example.com", "100", "10000")
	siteID := s.seedSite("zalando")
	a := s.seedOrder("anna", siteID, "10", "1200")
	b := s.seedOrder("anna", siteID, "20", "2400")

	rec := s.do(http.MethodPost, "/api/orders/status", s.admin, BulkStatusRequest{IDs: []string{a.ID, b.ID}, Status: "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[[]OrderDTO](t, rec)
	require.Len(t, updated, 2)
	for _, o := range updated {
		assert.Equal(t, "paid", o.Status)
	}

	rec = s.do(http.MethodGet, "/api/balances/anna", s.admin, nil)
	assert.Equal(t, "70.00", decodeBody[BalanceDTO](t, rec).Euro)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("anna", "anna@example.com", "10", "1000")
	siteID := s.seedSite("zalando")
	order := s.seedOrder("anna", siteID, "50", "6000")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{
			name:   "validation",
			method: http.MethodPost,
			path:   "/api/orders",
			body:   OrderRequest{UserID: "anna", SiteID: siteID},
			want:   http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/api/orders",
			body:   "not an object",
			want:   http.StatusBadRequest,
		},
		{
			name:   "unknown status code",
			method: http.MethodPost,
			path:   "/api/orders/" + order.ID + "/status",
			body:   StatusChangeRequest{Status: "shipped"},
			want:   http.StatusBadRequest,
		},
		{
			name:   "insufficient funds",
			method: http.MethodPost,
			path:   "/api/orders/" + order.ID + "/status",
			body:   StatusChangeRequest{Status: "paid"},
			want:   http.StatusBadRequest,
		},
		{
			name:   "transition not allowed",
			method: http.MethodPost,
			path:   "/api/orders/" + order.ID + "/status",
			body:   StatusChangeRequest{Status: "refunded"},
			want:   http.StatusConflict,
		},
		{
			name:   "duplicate email",
			method: http.MethodPost,
			path:   "/api/users",
			body:   CreateUserRequest{Email: "ANNA@example.com"},
			want:   http.StatusConflict,
		},
		{
			name:   "site in use",
			method: http.MethodDelete,
			path:   "/api/sites/" + siteID,
			want:   http.StatusConflict,
		},
		{
			name:   "unknown order",
			method: http.MethodGet,
			path:   "/api/orders/ghost",
			want:   http.StatusNotFound,
		},
		{
			name:   "unknown balance",
			method: http.MethodGet,
			path:   "/api/balances/ghost",
			want:   http.StatusNotFound,
		},
		{
			name:   "bad date range",
			method: http.MethodGet,
			path:   "/api/balances/anna/transactions?from=2025-03-02&to=2025-03-01",
			want:   http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, s.admin, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}

	// Nothing above moved the balance.
	rec := s.do(http.MethodGet, "/api/balances/anna", s.admin, nil)
	assert.Equal(t, "10.00", decodeBody[BalanceDTO](t, rec).Euro)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(&generic.NotFoundError{Entity: "order", ID: "x"}))
	assert.Equal(t, http.StatusConflict, statusFor(&generic.TransitionError{Group: "orders", From: "new", To: "refunded"}))
	assert.Equal(t, http.StatusBadRequest, statusFor(generic.Invalid("amount_euro", "must be positive")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&generic.ConfigurationError{Kind: generic.ErrStrategyNotFound, Key: "paid"}))
}

// =============================================================================
// SCOPING
// =============================================================================

func TestScoping_NonAdminSeesOwnRows(t *testing.T) {
	// GIVEN: Orders for anna and boris
	// WHEN: Anna lists orders and fetches one of boris's
	// THEN: She sees only her own order and gets 404 for his

	s := newTestServer(t)
	s.seedUser("anna", "anna@example.com", "100", "10000")
	s.seedUser("boris", "boris@example.com", "100", "10000")
	siteID := s.seedSite("zalando")
	mine := s.seedOrder("anna", siteID, "10", "1200")
	theirs := s.seedOrder("boris", siteID, "20", "2400")
	anna := token(t, "anna", "", testSecret)

	rec := s.do(http.MethodGet, "/api/orders", anna, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]OrderDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	rec = s.do(http.MethodGet, "/api/orders/"+mine.ID, anna, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/orders/"+theirs.ID, anna, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/orders", s.admin, nil)
	assert.Len(t, decodeBody[[]OrderDTO](t, rec), 2)
}

func TestMe_BalanceAndTransactions(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("anna", "anna@example.com", "100", "10000")
	anna := token(t, "anna", "", testSecret)

	rec := s.do(http.MethodGet, "/api/me/balance", anna, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "anna", b.UserID)
	assert.Equal(t, "10000.00", b.Rub)
	assert.Equal(t, "100.00", b.AverageExchangeRate)

	rec = s.do(http.MethodGet, "/api/me/transactions?from=2025-03-01&to=2025-03-01", anna, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[[]TransactionDTO](t, rec), 1)

	rec = s.do(http.MethodGet, "/api/me/history", anna, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	history := decodeBody[[]HistoryDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "100.00", history[0].RateAfter)

	// The back-office token has no balance behind its subject.
	rec = s.do(http.MethodGet, "/api/me/balance", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusGroups_Listed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/status-groups", token(t, "anna", "", testSecret), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decodeBody[[]StatusGroupDTO](t, rec)
	require.Len(t, groups, 2)

	codes := map[string]StatusGroupDTO{}
	for _, g := range groups {
		codes[g.Code] = g
	}
	assert.Equal(t, []string{"refunded"}, codes["orders"].AllowedTransitions["paid"])
	assert.Equal(t, "expense", codes["deliveries"].TransactionTypes["paid"])
	assert.Len(t, codes["deliveries"].Statuses, 3)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconciliation_OnDemand(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("anna", "anna@example.com", "100", "10000")
	order := s.seedOrder("anna", s.seedSite("zalando"), "50", "6000")
	rec := s.do(http.MethodPost, "/api/orders/"+order.ID+"/status", s.admin, StatusChangeRequest{Status: "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/reconciliation", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[ReconciliationDTO](t, rec)
	assert.Equal(t, 1, report.Balances)
	assert.True(t, report.Consistent)
	assert.Empty(t, report.Discrepancies)

	rec = s.do(http.MethodGet, "/api/reconciliation", token(t, "anna", "", testSecret), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReconciliation_SchedulerKeepsLastReport(t *testing.T) {
	// GIVEN: A scheduler that already ran once with no users
	// WHEN: A user is added and the report is requested
	// THEN: The stored report is served until a run is forced

	s := newTestServer(t)
	log, _ := test.NewNullLogger()
	s.handler.Scheduler = NewReconciliationScheduler(s.handler.Engine.Reconciler, time.Minute, log)
	require.NotNil(t, s.handler.Scheduler.RunNow(context.Background()))

	s.seedUser("anna", "anna@example.com", "100", "10000")

	rec := s.do(http.MethodGet, "/api/reconciliation", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[ReconciliationDTO](t, rec).Balances)

	rec = s.do(http.MethodPost, "/api/reconciliation/run", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[ReconciliationDTO](t, rec).Balances)
	assert.Equal(t, 1, s.handler.Scheduler.Last().Balances)
}

func TestReconciliationScheduler_StopsWithContext(t *testing.T) {
	s := newTestServer(t)
	log, _ := test.NewNullLogger()
	scheduler := NewReconciliationScheduler(s.handler.Engine.Reconciler, time.Hour, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	assert.Eventually(t, func() bool { return scheduler.Last() != nil }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
