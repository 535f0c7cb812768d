package handler

import (
	"context"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"autoride/internal/chain"
	"autoride/internal/domain"
)

// ChainReader is the read side of the contract gateway.
type ChainReader interface {
	Contract() common.Address
	QuoteFare(ctx context.Context, distanceKm decimal.Decimal) (*big.Int, error)
	Account(ctx context.Context) (common.Address, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	PassengerRides(ctx context.Context) ([]chain.RideRecord, error)
}

// Ensure *chain.Gateway implements ChainReader.
var _ ChainReader = (*chain.Gateway)(nil)

// ChainHandler handles fare quotes and wallet and contract queries.
type ChainHandler struct {
	gateway ChainReader
	fares   domain.FareSchedule
}

// NewChainHandler creates a new ChainHandler.
func NewChainHandler(gateway ChainReader, fares domain.FareSchedule) *ChainHandler {
	return &ChainHandler{
		gateway: gateway,
		fares:   fares,
	}
}

// FareQuoteResponse is the HTTP response for a fare quote.
type FareQuoteResponse struct {
	DistanceKm string `json:"distance_km"`
	Fare       string `json:"fare"`
	ChainWei   string `json:"chain_wei,omitempty"`
	ChainFare  string `json:"chain_fare,omitempty"`
	ChainError string `json:"chain_error,omitempty"`
}

// WalletResponse is the HTTP response for the wallet.
type WalletResponse struct {
	Account  string `json:"account"`
	Balance  string `json:"balance"`
	Contract string `json:"contract"`
}

// ChainRideResponse is a ride as stored by the contract.
type ChainRideResponse struct {
	ID         string `json:"id"`
	Passenger  string `json:"passenger"`
	Driver     string `json:"driver,omitempty"`
	Pickup     string `json:"pickup"`
	Drop       string `json:"drop"`
	DistanceKm string `json:"distance_km"`
	Fare       string `json:"fare"`
	FareWei    string `json:"fare_wei"`
	Status     string `json:"status"`
	Rating     int    `json:"rating,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// QuoteFare handles GET /v1/fare/quote?distance_km=
// The local fare is always returned; the contract quote is added when a
// wallet is available.
func (h *ChainHandler) QuoteFare(c *gin.Context) {
	distance, err := decimal.NewFromString(c.Query("distance_km"))
	if err != nil || !distance.IsPositive() {
		respondError(c, domain.ErrInvalidDistance)
		return
	}

	response := FareQuoteResponse{
		DistanceKm: distance.String(),
		Fare:       h.fares.Fare(distance).String(),
	}

	wei, err := h.gateway.QuoteFare(c.Request.Context(), distance)
	switch {
	case err == nil:
		response.ChainWei = wei.String()
		response.ChainFare = domain.FromBaseUnits(wei).String()
	case errors.Is(err, domain.ErrGatewayUnavailable):
		// Local fare only.
	default:
		response.ChainError = err.Error()
	}

	respondJSON(c, http.StatusOK, response)
}

// GetWallet handles GET /v1/wallet
func (h *ChainHandler) GetWallet(c *gin.Context) {
	ctx := c.Request.Context()

	account, err := h.gateway.Account(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	balance, err := h.gateway.Balance(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, WalletResponse{
		Account:  account.Hex(),
		Balance:  balance.String(),
		Contract: h.gateway.Contract().Hex(),
	})
}

// GetChainRides handles GET /v1/rides/chain
func (h *ChainHandler) GetChainRides(c *gin.Context) {
	records, err := h.gateway.PassengerRides(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]ChainRideResponse, 0, len(records))
	for _, r := range records {
		item := ChainRideResponse{
			ID:         r.ID,
			Passenger:  r.Passenger,
			Driver:     r.Driver,
			Pickup:     r.Pickup,
			Drop:       r.Drop,
			DistanceKm: r.DistanceKm.String(),
			Fare:       r.Fare.String(),
			Status:     string(r.Status),
			Rating:     r.Rating,
			Timestamp:  formatTime(r.Timestamp),
		}
		if r.FareWei != nil {
			item.FareWei = r.FareWei.String()
		}
		response = append(response, item)
	}

	respondJSON(c, http.StatusOK, response)
}
