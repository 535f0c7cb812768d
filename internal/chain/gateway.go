package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"autoride/internal/domain"
	"autoride/internal/logger"
)

// QuoteCache stores on-chain fare quotes keyed by distance.
// GetQuote returns nil on a miss.
type QuoteCache interface {
	GetQuote(ctx context.Context, distanceKm string) (*big.Int, error)
	SetQuote(ctx context.Context, distanceKm string, fareWei *big.Int) error
	InvalidateQuote(ctx context.Context, distanceKm string) error
}

// Gateway wraps the AutoRideFare contract. It holds no ride state.
type Gateway struct {
	wallet   Wallet
	contract common.Address
	cache    QuoteCache
	log      *logger.Logger
}

// NewGateway creates a Gateway. wallet may be nil, in which case every
// operation fails with domain.ErrNoWallet. cache is optional.
func NewGateway(wallet Wallet, contract common.Address, cache QuoteCache, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Discard()
	}
	return &Gateway{
		wallet:   wallet,
		contract: contract,
		cache:    cache,
		log:      log.WithField("component", "gateway"),
	}
}

// Contract returns the contract address.
func (g *Gateway) Contract() common.Address {
	return g.contract
}

// Available reports whether a wallet is configured.
func (g *Gateway) Available() bool {
	return g.wallet != nil
}

// QuoteFare asks the contract for the fare of distanceKm in wei.
func (g *Gateway) QuoteFare(ctx context.Context, distanceKm decimal.Decimal) (*big.Int, error) {
	distance, err := chainDistance(distanceKm)
	if err != nil {
		return nil, err
	}
	if g.wallet == nil {
		return nil, domain.ErrNoWallet
	}

	key := distance.String()
	if g.cache != nil {
		cached, err := g.cache.GetQuote(ctx, key)
		if err != nil {
			g.log.WithError(err).Warn("quote cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	out, err := g.call(ctx, methodCalculateFare, distance)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, &domain.ChainError{Op: methodCalculateFare, Message: "unexpected output"}
	}
	fare, ok := out[0].(*big.Int)
	if !ok {
		return nil, &domain.ChainError{Op: methodCalculateFare, Message: "unexpected output type"}
	}

	if g.cache != nil {
		if err := g.cache.SetQuote(ctx, key, fare); err != nil {
			g.log.WithError(err).Warn("quote cache write failed")
		}
	}

	return fare, nil
}

// SubmitRideRequest quotes the fare, sends requestRide paying exactly that
// amount and waits for the receipt. When the receipt is confirmed but has no
// RideRequested event, the submission is returned together with a
// *domain.EventNotFoundError.
func (g *Gateway) SubmitRideRequest(ctx context.Context, pickup, drop string, distanceKm decimal.Decimal) (*RideSubmission, error) {
	if strings.TrimSpace(pickup) == "" {
		return nil, domain.ErrEmptyPickup
	}
	if strings.TrimSpace(drop) == "" {
		return nil, domain.ErrEmptyDrop
	}
	distance, err := chainDistance(distanceKm)
	if err != nil {
		return nil, err
	}
	if g.wallet == nil {
		return nil, domain.ErrNoWallet
	}

	fare, err := g.QuoteFare(ctx, distanceKm)
	if err != nil {
		return nil, err
	}

	data, err := contractABI.Pack(methodRequestRide, pickup, drop, distance)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", methodRequestRide, err)
	}

	hash, receipt, err := g.transact(ctx, methodRequestRide, fare, data)
	if err != nil {
		if errors.Is(err, domain.ErrChain) {
			// The quote may be stale; make the next attempt ask the contract again.
			g.invalidateQuote(distance)
		}
		return nil, err
	}

	submission := &RideSubmission{
		TxHash: hash.Hex(),
		Fare:   fare,
	}

	rideID, found := g.findRideRequested(receipt)
	if !found {
		g.log.WithTxHash(submission.TxHash).Warn("RideRequested event missing from receipt")
		return submission, &domain.EventNotFoundError{Event: eventRideRequested, TxHash: submission.TxHash}
	}
	submission.RideID = rideID.String()

	g.log.WithTxHash(submission.TxHash).WithField("chain_ride_id", submission.RideID).Info("ride request confirmed")
	return submission, nil
}

// SubmitCompletion sends completeRide for rideID and waits for the receipt.
func (g *Gateway) SubmitCompletion(ctx context.Context, rideID string) (common.Hash, error) {
	id, err := parseRideID(rideID)
	if err != nil {
		return common.Hash{}, err
	}
	if g.wallet == nil {
		return common.Hash{}, domain.ErrNoWallet
	}

	data, err := contractABI.Pack(methodCompleteRide, id)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", methodCompleteRide, err)
	}

	hash, _, err := g.transact(ctx, methodCompleteRide, nil, data)
	return hash, err
}

// SubmitRating sends rateRide for rideID and waits for the receipt.
func (g *Gateway) SubmitRating(ctx context.Context, rideID string, rating int) (common.Hash, error) {
	if !domain.IsValidRating(rating) {
		return common.Hash{}, domain.ErrInvalidRating
	}
	id, err := parseRideID(rideID)
	if err != nil {
		return common.Hash{}, err
	}
	if g.wallet == nil {
		return common.Hash{}, domain.ErrNoWallet
	}

	data, err := contractABI.Pack(methodRateRide, id, uint8(rating))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", methodRateRide, err)
	}

	hash, _, err := g.transact(ctx, methodRateRide, nil, data)
	return hash, err
}

// PassengerRides returns every ride the active account has requested on chain.
func (g *Gateway) PassengerRides(ctx context.Context) ([]RideRecord, error) {
	account, err := g.Account(ctx)
	if err != nil {
		return nil, err
	}

	out, err := g.call(ctx, methodGetPassengerRides, account)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, &domain.ChainError{Op: methodGetPassengerRides, Message: "unexpected output"}
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, &domain.ChainError{Op: methodGetPassengerRides, Message: "unexpected output type"}
	}

	records := make([]RideRecord, 0, len(ids))
	for _, id := range ids {
		raw, err := g.rawCall(ctx, methodGetRideDetails, id)
		if err != nil {
			return nil, err
		}
		var details rideDetails
		if err := contractABI.UnpackIntoInterface(&details, methodGetRideDetails, raw); err != nil {
			return nil, &domain.ChainError{Op: methodGetRideDetails, Message: err.Error(), Err: err}
		}
		records = append(records, details.toRecord(id))
	}

	return records, nil
}

// Account returns the wallet's active account.
func (g *Gateway) Account(ctx context.Context) (common.Address, error) {
	if g.wallet == nil {
		return common.Address{}, domain.ErrNoWallet
	}
	accounts, err := g.wallet.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, &domain.ChainError{Op: "requestAccounts", Message: err.Error(), Err: err}
	}
	if len(accounts) == 0 {
		return common.Address{}, domain.ErrNoAccounts
	}
	return accounts[0], nil
}

// Balance returns the active account's balance in display units.
func (g *Gateway) Balance(ctx context.Context) (decimal.Decimal, error) {
	account, err := g.Account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := g.wallet.BalanceAt(ctx, account)
	if err != nil {
		return decimal.Zero, &domain.ChainError{Op: "getBalance", Message: err.Error(), Err: err}
	}
	return domain.FromBaseUnits(wei), nil
}

// SubscribeAccounts forwards account changes from the wallet.
func (g *Gateway) SubscribeAccounts(fn func(common.Address)) func() {
	if g.wallet == nil {
		return func() {}
	}
	return g.wallet.SubscribeAccounts(fn)
}

// accountSwitcher is implemented by wallets whose signing key can be replaced.
type accountSwitcher interface {
	SwitchAccount(hexKey string) error
}

// SwitchAccount replaces the wallet's signing key. Account subscribers are
// notified by the wallet.
func (g *Gateway) SwitchAccount(hexKey string) error {
	if g.wallet == nil {
		return domain.ErrNoWallet
	}
	sw, ok := g.wallet.(accountSwitcher)
	if !ok {
		return fmt.Errorf("%w: wallet cannot switch accounts", domain.ErrGatewayUnavailable)
	}
	if err := sw.SwitchAccount(hexKey); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func (g *Gateway) invalidateQuote(distance *big.Int) {
	if g.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.cache.InvalidateQuote(ctx, distance.String()); err != nil {
		g.log.WithError(err).Warn("quote cache invalidation failed")
	}
}

func (g *Gateway) rawCall(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := g.contract
	out, err := g.wallet.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, &domain.ChainError{Op: method, Message: err.Error(), Err: err}
	}
	return out, nil
}

func (g *Gateway) call(ctx context.Context, method string, args ...any) ([]any, error) {
	raw, err := g.rawCall(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, &domain.ChainError{Op: method, Message: err.Error(), Err: err}
	}
	return out, nil
}

// transact sends a transaction and blocks until it is mined.
// A cancelled ctx is returned as is, not as a chain error.
func (g *Gateway) transact(ctx context.Context, method string, value *big.Int, data []byte) (common.Hash, *types.Receipt, error) {
	hash, err := g.wallet.SendTransaction(ctx, TxRequest{To: g.contract, Value: value, Data: data})
	if err != nil {
		if isContextErr(err) {
			return common.Hash{}, nil, err
		}
		return common.Hash{}, nil, &domain.ChainError{Op: method, Message: err.Error(), Err: err}
	}

	log := g.log.WithTxHash(hash.Hex()).WithField("method", method)
	log.Debug("transaction sent")

	receipt, err := g.wallet.WaitForReceipt(ctx, hash)
	if err != nil {
		if isContextErr(err) {
			return hash, nil, err
		}
		return hash, nil, &domain.ChainError{Op: method, Message: err.Error(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warn("transaction reverted")
		return hash, receipt, &domain.ChainError{Op: method, Message: "transaction reverted"}
	}

	return hash, receipt, nil
}

func (g *Gateway) findRideRequested(receipt *types.Receipt) (*big.Int, bool) {
	event := contractABI.Events[eventRideRequested]
	for _, l := range receipt.Logs {
		if l == nil || l.Address != g.contract || len(l.Topics) < 2 {
			continue
		}
		if l.Topics[0] != event.ID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()), true
	}
	return nil, false
}

// ValidateDistance reports whether distanceKm can be sent to the contract.
func ValidateDistance(distanceKm decimal.Decimal) error {
	_, err := chainDistance(distanceKm)
	return err
}

// chainDistance converts a distance into the contract's whole-kilometre uint256.
func chainDistance(distanceKm decimal.Decimal) (*big.Int, error) {
	if !distanceKm.IsPositive() {
		return nil, domain.ErrInvalidDistance
	}
	if !distanceKm.IsInteger() {
		return nil, domain.ErrFractionalDistance
	}
	return distanceKm.BigInt(), nil
}

func parseRideID(rideID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(rideID), 10)
	if !ok || id.Sign() < 0 {
		return nil, domain.ErrInvalidRideID
	}
	return id, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
