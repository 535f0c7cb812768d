package tests

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"autoride/internal/chain"
	"autoride/internal/domain"
	"autoride/internal/handler"
	"autoride/internal/repository"
	"autoride/internal/repository/memory"
	"autoride/internal/service"
)

// ──────────────────────────────────────────────
// MOCK HISTORY REPOSITORY
// ──────────────────────────────────────────────

// MockHistoryRepository wraps the in-memory history with error injection.
type MockHistoryRepository struct {
	inner *memory.HistoryRepository

	AppendCallCount int32

	AppendError    error
	SetRatingError error
}

// NewMockHistoryRepository creates a new mock history repository.
func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{inner: memory.NewHistoryRepository()}
}

func (m *MockHistoryRepository) Append(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.AppendCallCount, 1)
	if m.AppendError != nil {
		return m.AppendError
	}
	return m.inner.Append(ctx, ride)
}

func (m *MockHistoryRepository) List(ctx context.Context) ([]*domain.Ride, error) {
	return m.inner.List(ctx)
}

func (m *MockHistoryRepository) Latest(ctx context.Context) (*domain.Ride, error) {
	return m.inner.Latest(ctx)
}

func (m *MockHistoryRepository) SetRating(ctx context.Context, rideID string, rating int, txHash string) error {
	if m.SetRatingError != nil {
		return m.SetRatingError
	}
	return m.inner.SetRating(ctx, rideID, rating, txHash)
}

var _ repository.HistoryRepository = (*MockHistoryRepository)(nil)

// ──────────────────────────────────────────────
// MOCK EVENT PUBLISHER
// ──────────────────────────────────────────────

// MockEventPublisher records published lifecycle events.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

// NewMockEventPublisher creates a new mock publisher.
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(event domain.LifecycleEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of the published events.
func (m *MockEventPublisher) Events() []domain.LifecycleEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LifecycleEvent, len(m.events))
	copy(out, m.events)
	return out
}

var _ service.EventPublisher = (*MockEventPublisher)(nil)

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// TestAccount is the wallet address reported by MockGateway.
var TestAccount = common.HexToAddress("0x4bD267CdaCfB8e58280A68a2A4cDe2F968d2BcD2")

// MockGateway is a mock implementation of service.RideGateway.
type MockGateway struct {
	mu sync.Mutex

	// Submission returned by SubmitRideRequest.
	ChainRideID string
	FareWei     *big.Int

	// Release, when set, holds SubmitRideRequest until it is closed or ctx is done.
	Release chan struct{}

	// WriteRelease, when set, holds SubmitCompletion and SubmitRating the same way.
	WriteRelease chan struct{}

	// Counters for verification
	RequestCallCount    int32
	CompletionCallCount int32
	RatingCallCount     int32

	// Error injection
	AccountError    error
	RequestError    error
	FailPickup      string // when set, RequestError only applies to this pickup
	CompletionError error
	RatingError     error
	EventMissing    bool

	CompletedRideIDs []string
	RatedRideIDs     []string
	Ratings          []int

	listeners []func(common.Address)
}

// NewMockGateway creates a gateway that confirms every request as chain ride 1.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ChainRideID: "1",
		FareWei:     big.NewInt(1),
	}
}

func (m *MockGateway) Account(ctx context.Context) (common.Address, error) {
	if m.AccountError != nil {
		return common.Address{}, m.AccountError
	}
	return TestAccount, nil
}

func (m *MockGateway) SubmitRideRequest(ctx context.Context, pickup, drop string, distanceKm decimal.Decimal) (*chain.RideSubmission, error) {
	atomic.AddInt32(&m.RequestCallCount, 1)

	if m.Release != nil {
		select {
		case <-m.Release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.RequestError != nil && (m.FailPickup == "" || m.FailPickup == pickup) {
		return nil, m.RequestError
	}

	sub := &chain.RideSubmission{
		TxHash: common.BigToHash(big.NewInt(100)).Hex(),
		Fare:   m.FareWei,
	}
	if m.EventMissing {
		return sub, &domain.EventNotFoundError{Event: "RideRequested", TxHash: sub.TxHash}
	}
	sub.RideID = m.ChainRideID
	return sub, nil
}

func (m *MockGateway) SubmitCompletion(ctx context.Context, rideID string) (common.Hash, error) {
	atomic.AddInt32(&m.CompletionCallCount, 1)
	if err := m.holdWrite(ctx); err != nil {
		return common.Hash{}, err
	}
	if m.CompletionError != nil {
		return common.Hash{}, m.CompletionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompletedRideIDs = append(m.CompletedRideIDs, rideID)
	return common.BigToHash(big.NewInt(200)), nil
}

func (m *MockGateway) SubmitRating(ctx context.Context, rideID string, rating int) (common.Hash, error) {
	atomic.AddInt32(&m.RatingCallCount, 1)
	if err := m.holdWrite(ctx); err != nil {
		return common.Hash{}, err
	}
	if m.RatingError != nil {
		return common.Hash{}, m.RatingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RatedRideIDs = append(m.RatedRideIDs, rideID)
	m.Ratings = append(m.Ratings, rating)
	return common.BigToHash(big.NewInt(300)), nil
}

func (m *MockGateway) holdWrite(ctx context.Context) error {
	if m.WriteRelease == nil {
		return nil
	}
	select {
	case <-m.WriteRelease:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockGateway) SubscribeAccounts(fn func(common.Address)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	return func() {}
}

// SwitchAccount notifies subscribers of a new account.
func (m *MockGateway) SwitchAccount(account common.Address) {
	m.mu.Lock()
	listeners := append([]func(common.Address){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(account)
	}
}

var _ service.RideGateway = (*MockGateway)(nil)

// ──────────────────────────────────────────────
// MOCK WALLET LOCKER
// ──────────────────────────────────────────────

// MockWalletLocker is an in-memory implementation of service.WalletLocker.
type MockWalletLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	Error error

	ReleaseCallCount int32
}

// NewMockWalletLocker creates a new mock locker.
func NewMockWalletLocker() *MockWalletLocker {
	return &MockWalletLocker{held: make(map[string]bool)}
}

func (m *MockWalletLocker) AcquireWalletLock(ctx context.Context, address string, ttl time.Duration) (bool, error) {
	if m.Error != nil {
		return false, m.Error
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[address] {
		return false, nil
	}
	m.held[address] = true
	return true, nil
}

func (m *MockWalletLocker) ReleaseWalletLock(ctx context.Context, address string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, address)
	return nil
}

// Hold marks address as locked by another instance.
func (m *MockWalletLocker) Hold(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[address] = true
}

// IsHeld reports whether address is locked.
func (m *MockWalletLocker) IsHeld(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[address]
}

var _ service.WalletLocker = (*MockWalletLocker)(nil)

// ──────────────────────────────────────────────
// MOCK CHAIN READER
// ──────────────────────────────────────────────

// MockChainReader is a mock implementation of handler.ChainReader.
type MockChainReader struct {
	QuoteWei *big.Int
	Funds    decimal.Decimal
	Rides    []chain.RideRecord

	QuoteCallCount int32

	// Error injection
	QuoteError   error
	AccountError error
	RidesError   error
}

// NewMockChainReader creates a reader quoting 103 ether for every distance.
func NewMockChainReader() *MockChainReader {
	wei, _ := domain.ToBaseUnits(decimal.NewFromInt(103))
	return &MockChainReader{
		QuoteWei: wei,
		Funds:    decimal.RequireFromString("1.5"),
	}
}

func (m *MockChainReader) Contract() common.Address {
	return common.HexToAddress("0x0CB2585fb28a5729801F37CF20D11a88C48da07F")
}

func (m *MockChainReader) QuoteFare(ctx context.Context, distanceKm decimal.Decimal) (*big.Int, error) {
	atomic.AddInt32(&m.QuoteCallCount, 1)
	if m.QuoteError != nil {
		return nil, m.QuoteError
	}
	return m.QuoteWei, nil
}

func (m *MockChainReader) Account(ctx context.Context) (common.Address, error) {
	if m.AccountError != nil {
		return common.Address{}, m.AccountError
	}
	return TestAccount, nil
}

func (m *MockChainReader) Balance(ctx context.Context) (decimal.Decimal, error) {
	if m.AccountError != nil {
		return decimal.Zero, m.AccountError
	}
	return m.Funds, nil
}

func (m *MockChainReader) PassengerRides(ctx context.Context) ([]chain.RideRecord, error) {
	if m.RidesError != nil {
		return nil, m.RidesError
	}
	return m.Rides, nil
}

var _ handler.ChainReader = (*MockChainReader)(nil)

// ──────────────────────────────────────────────
// HELPERS
// ──────────────────────────────────────────────

// ErrProviderRejected simulates a wallet rejection.
var ErrProviderRejected = &domain.ChainError{Op: "requestRide", Message: "user rejected transaction"}

var errBoom = errors.New("boom")

// rideInput returns a valid request for distance km.
func rideInput(distance string) service.RequestRideInput {
	return service.RequestRideInput{
		Pickup:     "Railway Station",
		Drop:       "City Market",
		DistanceKm: decimal.RequireFromString(distance),
	}
}
