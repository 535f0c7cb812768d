package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"autoride/internal/chain"
	"autoride/internal/domain"
	"autoride/internal/logger"
)

// RideGateway is the subset of *chain.Gateway used by a Session.
type RideGateway interface {
	SubmitRideRequest(ctx context.Context, pickup, drop string, distanceKm decimal.Decimal) (*chain.RideSubmission, error)
	SubmitCompletion(ctx context.Context, rideID string) (common.Hash, error)
	SubmitRating(ctx context.Context, rideID string, rating int) (common.Hash, error)
	Account(ctx context.Context) (common.Address, error)
	SubscribeAccounts(fn func(common.Address)) func()
}

// Ensure *chain.Gateway implements RideGateway.
var _ RideGateway = (*chain.Gateway)(nil)

// WalletLocker guards a wallet against concurrent unconfirmed ride requests
// across service instances.
type WalletLocker interface {
	AcquireWalletLock(ctx context.Context, address string, ttl time.Duration) (bool, error)
	ReleaseWalletLock(ctx context.Context, address string) error
}

// Confirmation is the outcome of a ride request's chain confirmation.
type Confirmation struct {
	RideID      string
	ChainRideID string
	TxHash      string
	FareWei     *big.Int
	Warning     string
}

type pendingRequest struct {
	rideID string
	cancel context.CancelFunc
	done   chan struct{}
	result Confirmation
	err    error
}

// Session binds the lifecycle controller to the contract gateway. Chain
// confirmations run in the background and resume the controller when the
// receipt arrives.
type Session struct {
	controller *RideLifecycleController
	gateway    RideGateway
	locks      WalletLocker
	lockTTL    time.Duration
	log        *logger.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()

	mu      sync.Mutex
	closed  bool
	account common.Address
	request *pendingRequest

	// writeMu is held from the state check through the local commit of a
	// completion or rating, so each is sent on chain at most once.
	writeMu sync.Mutex
}

// NewSession creates a Session. locks is optional.
func NewSession(controller *RideLifecycleController, gateway RideGateway, locks WalletLocker, lockTTL time.Duration, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		controller: controller,
		gateway:    gateway,
		locks:      locks,
		lockTTL:    lockTTL,
		log:        log.WithField("component", "session"),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.unsubscribe = gateway.SubscribeAccounts(s.onAccountChanged)
	return s
}

// Controller returns the controller driven by this session.
func (s *Session) Controller() *RideLifecycleController {
	return s.controller
}

func (s *Session) onAccountChanged(account common.Address) {
	s.mu.Lock()
	previous := s.account
	s.account = account
	s.mu.Unlock()

	pending := s.Pending()
	log := s.log.WithField("account", account.Hex()).WithField("previous", previous.Hex())
	if pending {
		log.Warn("wallet account changed while a ride request is awaiting confirmation")
		return
	}
	log.Info("wallet account changed")
}

// RequestRide creates the ride and submits the paid request on chain in the
// background. Use AwaitConfirmation to wait for the outcome.
func (s *Session) RequestRide(ctx context.Context, in RequestRideInput) (*domain.Ride, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	// Validate before touching the wallet.
	if err := validateRequest(in); err != nil {
		return nil, err
	}
	if current := s.controller.Current(); current != nil {
		return nil, domain.ErrRideInFlight
	}

	account, err := s.gateway.Account(ctx)
	if err != nil {
		return nil, err
	}

	locked, err := s.acquireLock(ctx, account)
	if err != nil {
		return nil, err
	}

	ride, err := s.controller.RequestRide(ctx, in)
	if err != nil {
		if locked {
			s.releaseLock(account)
		}
		return nil, err
	}

	taskCtx, cancel := context.WithCancel(s.ctx)
	req := &pendingRequest{
		rideID: ride.ID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		if locked {
			s.releaseLock(account)
		}
		_, _ = s.controller.CancelRide(ctx, ride.ID, "session closed")
		return nil, ErrSessionClosed
	}
	s.account = account
	s.request = req
	s.wg.Add(1)
	// A cancel that ran before the request was registered could not stop the task.
	if current := s.controller.Current(); current == nil || current.ID != ride.ID {
		cancel()
	}
	s.mu.Unlock()

	go s.confirmRequest(taskCtx, req, ride, account, locked)

	return ride, nil
}

func validateRequest(in RequestRideInput) error {
	if strings.TrimSpace(in.Pickup) == "" {
		return domain.ErrEmptyPickup
	}
	if strings.TrimSpace(in.Drop) == "" {
		return domain.ErrEmptyDrop
	}
	// The contract only takes whole kilometres.
	return chain.ValidateDistance(in.DistanceKm)
}

func (s *Session) confirmRequest(ctx context.Context, req *pendingRequest, ride *domain.Ride, account common.Address, locked bool) {
	defer s.wg.Done()
	defer close(req.done)
	defer req.cancel()
	if locked {
		defer s.releaseLock(account)
	}

	log := s.log.WithRideID(ride.ID)
	req.result.RideID = ride.ID

	sub, err := s.gateway.SubmitRideRequest(ctx, ride.Pickup, ride.Drop, ride.DistanceKm)

	if ctx.Err() != nil {
		// Session closed or ride cancelled; nothing is recorded.
		log.Info("ride request confirmation abandoned")
		req.err = ErrRequestAbandoned
		if s.ctx.Err() != nil {
			req.err = ErrSessionClosed
		}
		return
	}

	// Bookkeeping after the receipt must not depend on the task context.
	bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case err == nil:
		req.result.ChainRideID = sub.RideID
		req.result.TxHash = sub.TxHash
		req.result.FareWei = sub.Fare
	case errors.Is(err, domain.ErrEventNotFound) && sub != nil:
		req.result.TxHash = sub.TxHash
		req.result.FareWei = sub.Fare
		req.result.Warning = err.Error()
		log.WithTxHash(sub.TxHash).Warn("ride request confirmed without ride id")
	default:
		req.err = err
		log.WithError(err).Warn("ride request not confirmed, cancelling ride")
		_, cerr := s.controller.CancelRide(bg, ride.ID, "request not confirmed: "+err.Error())
		switch {
		case errors.Is(cerr, domain.ErrRideMismatch), errors.Is(cerr, domain.ErrNoCurrentRide):
			log.Info("unconfirmed ride is no longer current")
		case cerr != nil:
			log.WithError(cerr).Error("failed to cancel unconfirmed ride")
		}
		return
	}

	if rerr := s.controller.RecordRequestConfirmation(bg, ride.ID, req.result.ChainRideID, req.result.TxHash, req.result.FareWei); rerr != nil {
		// The ride was cancelled locally while the transaction was in flight.
		log.WithError(rerr).WithTxHash(req.result.TxHash).Warn("confirmed ride request no longer current")
		req.err = rerr
	}
}

// AwaitConfirmation blocks until the request for rideID is confirmed, fails or
// ctx is done.
func (s *Session) AwaitConfirmation(ctx context.Context, rideID string) (Confirmation, error) {
	s.mu.Lock()
	req := s.request
	s.mu.Unlock()

	if req == nil || req.rideID != rideID {
		return Confirmation{}, ErrNoPendingRequest
	}

	select {
	case <-req.done:
		return req.result, req.err
	case <-ctx.Done():
		return Confirmation{}, ctx.Err()
	}
}

// Pending reports whether the current ride's request is still awaiting confirmation.
func (s *Session) Pending() bool {
	current := s.controller.Current()
	return current != nil && current.AwaitingRequestConfirmation()
}

// ConfirmAcceptance assigns a driver once the ride request is confirmed.
func (s *Session) ConfirmAcceptance(ctx context.Context, driverID string) (*domain.Ride, error) {
	return s.controller.AcceptPaidRequest(ctx, driverID)
}

// StartTrip starts the current ride.
func (s *Session) StartTrip(ctx context.Context) (*domain.Ride, error) {
	return s.controller.StartTrip(ctx)
}

// CancelTrip cancels the current ride. A confirmation still in flight is
// abandoned; the chain transaction itself cannot be recalled.
func (s *Session) CancelTrip(ctx context.Context, reason string) (*domain.Ride, error) {
	s.mu.Lock()
	req := s.request
	s.mu.Unlock()

	ride, err := s.controller.CancelTrip(ctx, reason)
	if err != nil {
		return nil, err
	}

	if req != nil && req.rideID == ride.ID && !isDone(req.done) {
		s.log.WithRideID(ride.ID).Warn("ride cancelled while request confirmation was pending")
		req.cancel()
	}

	return ride, nil
}

// CompleteTrip submits the completion on chain and completes the ride once confirmed.
// A ride without an on-chain id is completed locally.
func (s *Session) CompleteTrip(ctx context.Context) (*domain.Ride, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.controller.Current()
	if current == nil {
		return nil, domain.ErrNoCurrentRide
	}
	if current.Status != domain.RideStatusInProgress {
		return nil, &domain.InvalidTransitionError{From: current.Status, To: domain.RideStatusCompleted}
	}

	if current.ChainRideID == "" {
		s.log.WithRideID(current.ID).Warn("ride has no on-chain id, completing locally")
		return s.controller.CompleteRide(ctx, current.ID, "")
	}

	hash, err := s.gateway.SubmitCompletion(ctx, current.ChainRideID)
	if err != nil {
		return nil, err
	}

	return s.controller.CompleteRide(ctx, current.ID, hash.Hex())
}

// Rate submits the rating on chain and records it on the newest completed ride.
// A ride without an on-chain id is rated locally.
func (s *Session) Rate(ctx context.Context, rating int) (*domain.Ride, error) {
	if !domain.IsValidRating(rating) {
		return nil, domain.ErrInvalidRating
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	latest, err := s.controller.LatestRateable(ctx)
	if err != nil {
		return nil, err
	}

	var txHash string
	if latest.ChainRideID != "" {
		hash, err := s.gateway.SubmitRating(ctx, latest.ChainRideID, rating)
		if err != nil {
			return nil, err
		}
		txHash = hash.Hex()
	} else {
		s.log.WithRideID(latest.ID).Warn("ride has no on-chain id, rating locally")
	}

	return s.controller.Rate(ctx, rating, txHash)
}

// Close cancels outstanding confirmations and waits for them to stop.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Session) acquireLock(ctx context.Context, account common.Address) (bool, error) {
	if s.locks == nil {
		return false, nil
	}
	ok, err := s.locks.AcquireWalletLock(ctx, account.Hex(), s.lockTTL)
	if err != nil {
		s.log.WithError(err).Warn("wallet lock unavailable, continuing without it")
		return false, nil
	}
	if !ok {
		return false, domain.ErrWalletBusy
	}
	return true, nil
}

func (s *Session) releaseLock(account common.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locks.ReleaseWalletLock(ctx, account.Hex()); err != nil {
		s.log.WithError(err).Warn("failed to release wallet lock")
	}
}

func isDone(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
