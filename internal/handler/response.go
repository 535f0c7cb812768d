package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"autoride/internal/domain"
	"autoride/internal/repository"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// The error is attached to the gin context so APM middleware can record it.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	code, category := mapErrorToHTTPStatus(err)
	resp := ErrorResponse{Error: err.Error(), Code: category}

	var transition *domain.InvalidTransitionError
	if errors.As(err, &transition) {
		resp.From = string(transition.From)
		resp.To = string(transition.To)
	}

	c.JSON(code, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps domain/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) (int, string) {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"

	// Validation errors - Bad Request
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"

	// Conflict errors
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"

	// No wallet or provider
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "unavailable"

	// Wallet rejection, revert or missing event
	case errors.Is(err, domain.ErrChain),
		errors.Is(err, domain.ErrEventNotFound):
		return http.StatusBadGateway, "chain"

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"

	// Default to internal server error
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID            string `json:"id"`
	ChainRideID   string `json:"chain_ride_id,omitempty"`
	Pickup        string `json:"pickup"`
	Drop          string `json:"drop"`
	DistanceKm    string `json:"distance_km"`
	Fare          string `json:"fare"`
	FareWei       string `json:"fare_wei,omitempty"`
	Status        string `json:"status"`
	DriverID      string `json:"driver_id,omitempty"`
	Rating        int    `json:"rating,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	RequestTxHash string `json:"request_tx_hash,omitempty"`
	RatingTxHash  string `json:"rating_tx_hash,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	RequestedAt   string `json:"requested_at"`
	AcceptedAt    string `json:"accepted_at,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	resp := RideResponse{
		ID:            r.ID,
		ChainRideID:   r.ChainRideID,
		Pickup:        r.Pickup,
		Drop:          r.Drop,
		DistanceKm:    r.DistanceKm.String(),
		Fare:          r.Fare.String(),
		Status:        string(r.Status),
		DriverID:      r.DriverID,
		Rating:        r.Rating,
		TxHash:        r.TxHash,
		RequestTxHash: r.RequestTxHash,
		RatingTxHash:  r.RatingTxHash,
		CancelReason:  r.CancelReason,
		RequestedAt:   formatTime(r.RequestedAt),
		AcceptedAt:    formatTime(r.AcceptedAt),
		StartedAt:     formatTime(r.StartedAt),
		CompletedAt:   formatTime(r.CompletedAt),
		CancelledAt:   formatTime(r.CancelledAt),
	}
	if r.FareWei != nil {
		resp.FareWei = r.FareWei.String()
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
