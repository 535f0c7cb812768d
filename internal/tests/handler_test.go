package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"autoride/internal/app"
	"autoride/internal/chain"
	"autoride/internal/domain"
	"autoride/internal/handler"
	"autoride/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	router  *gin.Engine
	session *service.Session
	gateway *MockGateway
	reader  *MockChainReader
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	controller := service.NewRideLifecycleController(NewMockHistoryRepository(), NewMockEventPublisher(), nil)
	gateway := NewMockGateway()
	session := service.NewSession(controller, gateway, NewMockWalletLocker(), time.Minute, nil)
	t.Cleanup(session.Close)

	reader := NewMockChainReader()
	router := app.NewRouter(app.RouterDeps{
		RideHandler:  handler.NewRideHandler(session, service.NewReceiptService(controller.Fares())),
		ChainHandler: handler.NewChainHandler(reader, controller.Fares()),
	})

	return &apiFixture{
		router:  router,
		session: session,
		gateway: gateway,
		reader:  reader,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected status %d, got %d: %s", code, w.Code, w.Body.String())
	}
}

var rideBody = map[string]any{"pickup": "Railway Station", "drop": "City Market", "distance_km": 5}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestAPI_CreateRideReturnsAccepted(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/v1/rides", rideBody)
	expectStatus(t, w, http.StatusAccepted)

	resp := decode[handler.CreateRideResponse](t, w)
	if resp.Ride.Fare != "100" {
		t.Errorf("expected fare 100, got %s", resp.Ride.Fare)
	}
	if resp.Ride.Status != string(domain.RideStatusRequested) {
		t.Errorf("expected REQUESTED, got %s", resp.Ride.Status)
	}
	if resp.Confirmed {
		t.Error("expected unconfirmed response without wait")
	}
}

func TestAPI_CreateRideWaitsForConfirmation(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.gateway.ChainRideID = "9"

	w := f.do(t, http.MethodPost, "/v1/rides?wait=true", rideBody)
	expectStatus(t, w, http.StatusCreated)

	resp := decode[handler.CreateRideResponse](t, w)
	if !resp.Confirmed || resp.Ride.ChainRideID != "9" || resp.Ride.TxHash == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestAPI_CreateRideWarnsWhenEventMissing(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.gateway.EventMissing = true

	w := f.do(t, http.MethodPost, "/v1/rides?wait=true", rideBody)
	expectStatus(t, w, http.StatusCreated)

	resp := decode[handler.CreateRideResponse](t, w)
	if resp.Warning == "" || resp.Ride.ChainRideID != "" || resp.Ride.TxHash == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestAPI_CreateRideErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     any
		setup    func(f *apiFixture)
		expected int
		code     string
	}{
		{
			name:     "malformed body",
			body:     "not an object",
			expected: http.StatusBadRequest,
			code:     "validation",
		},
		{
			name:     "zero distance",
			body:     map[string]any{"pickup": "A", "drop": "B", "distance_km": 0},
			expected: http.StatusBadRequest,
			code:     "validation",
		},
		{
			name:     "fractional distance",
			body:     map[string]any{"pickup": "A", "drop": "B", "distance_km": 5.2},
			expected: http.StatusBadRequest,
			code:     "validation",
		},
		{
			name:     "no wallet",
			body:     rideBody,
			setup:    func(f *apiFixture) { f.gateway.AccountError = domain.ErrNoWallet },
			expected: http.StatusServiceUnavailable,
			code:     "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			w := f.do(t, http.MethodPost, "/v1/rides", tt.body)
			expectStatus(t, w, tt.expected)

			resp := decode[handler.ErrorResponse](t, w)
			if resp.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}
}

func TestAPI_SecondRideConflicts(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides?wait=true", rideBody), http.StatusCreated)

	w := f.do(t, http.MethodPost, "/v1/rides", rideBody)
	expectStatus(t, w, http.StatusConflict)
}

func TestAPI_StartBeforeAcceptReportsTransition(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides?wait=true", rideBody), http.StatusCreated)

	w := f.do(t, http.MethodPost, "/v1/rides/current/start", nil)
	expectStatus(t, w, http.StatusConflict)

	resp := decode[handler.ErrorResponse](t, w)
	if resp.Code != "invalid_transition" || resp.From != "REQUESTED" || resp.To != "IN_PROGRESS" {
		t.Errorf("unexpected error response %+v", resp)
	}
}

func TestAPI_FullRide(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.gateway.ChainRideID = "4"

	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides?wait=true", rideBody), http.StatusCreated)

	w := f.do(t, http.MethodGet, "/v1/rides/current", nil)
	expectStatus(t, w, http.StatusOK)

	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides/current/accept", map[string]string{"driver_id": "driver-7"}), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides/current/start", nil), http.StatusOK)

	w = f.do(t, http.MethodPost, "/v1/rides/current/complete", nil)
	expectStatus(t, w, http.StatusOK)
	completed := decode[handler.RideResponse](t, w)
	if completed.Status != string(domain.RideStatusCompleted) {
		t.Errorf("expected COMPLETED, got %s", completed.Status)
	}

	expectStatus(t, f.do(t, http.MethodGet, "/v1/rides/current", nil), http.StatusConflict)

	w = f.do(t, http.MethodPost, "/v1/rides/rating", map[string]int{"rating": 5})
	expectStatus(t, w, http.StatusOK)
	if rated := decode[handler.RideResponse](t, w); rated.Rating != 5 {
		t.Errorf("expected rating 5, got %d", rated.Rating)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides/rating", map[string]int{"rating": 4}), http.StatusConflict)

	w = f.do(t, http.MethodGet, "/v1/rides/history", nil)
	expectStatus(t, w, http.StatusOK)
	if history := decode[[]handler.RideResponse](t, w); len(history) != 1 || history[0].ChainRideID != "4" {
		t.Errorf("unexpected history %+v", history)
	}

	w = f.do(t, http.MethodGet, "/v1/rides/receipt", nil)
	expectStatus(t, w, http.StatusOK)
	receipt := decode[handler.ReceiptResponse](t, w)
	if receipt.TotalFare != "100" || receipt.PaymentStatus != string(domain.PaymentStatusPaid) || receipt.Rating != 5 {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	w = f.do(t, http.MethodGet, "/v1/rides/receipt?format=text", nil)
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "AUTORIDE RECEIPT") {
		t.Errorf("expected text receipt, got %s", w.Body.String())
	}
}

func TestAPI_CancelRide(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides?wait=true", rideBody), http.StatusCreated)

	w := f.do(t, http.MethodPost, "/v1/rides/current/cancel", nil)
	expectStatus(t, w, http.StatusOK)

	cancelled := decode[handler.RideResponse](t, w)
	if cancelled.Status != string(domain.RideStatusCancelled) || cancelled.CancelReason == "" {
		t.Errorf("unexpected cancelled ride %+v", cancelled)
	}

	// Nothing completed yet.
	expectStatus(t, f.do(t, http.MethodGet, "/v1/rides/receipt", nil), http.StatusConflict)
}

func TestAPI_CompleteChainFailure(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides?wait=true", rideBody), http.StatusCreated)
	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides/current/accept", map[string]string{"driver_id": "d"}), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodPost, "/v1/rides/current/start", nil), http.StatusOK)

	f.gateway.CompletionError = &domain.ChainError{Op: "completeRide", Message: "execution reverted"}

	w := f.do(t, http.MethodPost, "/v1/rides/current/complete", nil)
	expectStatus(t, w, http.StatusBadGateway)
	if resp := decode[handler.ErrorResponse](t, w); !strings.Contains(resp.Error, "execution reverted") {
		t.Errorf("expected provider message, got %s", resp.Error)
	}
}

func TestAPI_QuoteFare(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/v1/fare/quote?distance_km=5", nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[handler.FareQuoteResponse](t, w)
	if resp.Fare != "100" {
		t.Errorf("expected local fare 100, got %s", resp.Fare)
	}
	if resp.ChainFare != "103" || resp.ChainWei != "103000000000000000000" {
		t.Errorf("unexpected chain quote %+v", resp)
	}

	expectStatus(t, f.do(t, http.MethodGet, "/v1/fare/quote?distance_km=abc", nil), http.StatusBadRequest)
}

func TestAPI_QuoteFareWithoutWallet(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.reader.QuoteError = domain.ErrNoWallet

	w := f.do(t, http.MethodGet, "/v1/fare/quote?distance_km=5.2", nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[handler.FareQuoteResponse](t, w)
	if resp.Fare != "103" || resp.ChainWei != "" || resp.ChainError != "" {
		t.Errorf("expected local fare only, got %+v", resp)
	}
}

func TestAPI_Wallet(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/v1/wallet", nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[handler.WalletResponse](t, w)
	if resp.Account != TestAccount.Hex() || resp.Balance != "1.5" {
		t.Errorf("unexpected wallet %+v", resp)
	}

	f.reader.AccountError = domain.ErrNoWallet
	expectStatus(t, f.do(t, http.MethodGet, "/v1/wallet", nil), http.StatusServiceUnavailable)
}

func TestAPI_ChainRides(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.reader.Rides = []chain.RideRecord{{
		ID:        "1",
		Passenger: TestAccount.Hex(),
		Pickup:    "A",
		Drop:      "B",
		Status:    domain.RideStatusCompleted,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}}

	w := f.do(t, http.MethodGet, "/v1/rides/chain", nil)
	expectStatus(t, w, http.StatusOK)
	rides := decode[[]handler.ChainRideResponse](t, w)
	if len(rides) != 1 || rides[0].Status != "COMPLETED" || rides[0].Timestamp != "2023-11-14T22:13:20Z" {
		t.Errorf("unexpected chain rides %+v", rides)
	}

	f.reader.RidesError = &domain.ChainError{Op: "getPassengerRides", Message: "rpc down"}
	expectStatus(t, f.do(t, http.MethodGet, "/v1/rides/chain", nil), http.StatusBadGateway)
}

func TestAPI_CORSPreflight(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	w := f.do(t, http.MethodOptions, "/v1/rides", nil)
	expectStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected allow-origin *, got %q", got)
	}
}

func TestAPI_ConfirmationTimeoutMapsToGatewayTimeout(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.gateway.Release = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	data, _ := json.Marshal(rideBody)
	req := httptest.NewRequest(http.MethodPost, "/v1/rides?wait=true", bytes.NewReader(data)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	expectStatus(t, w, http.StatusGatewayTimeout)
	if !f.session.Pending() {
		t.Error("expected request to keep waiting for its receipt")
	}
}
