package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"autoride/internal/domain"
	"autoride/internal/service"
)

// confirmationTimeout bounds how long POST /v1/rides?wait=true blocks.
const confirmationTimeout = 90 * time.Second

// RideHandler handles HTTP requests for the current ride and its history.
type RideHandler struct {
	session  *service.Session
	receipts *service.ReceiptService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(session *service.Session, receipts *service.ReceiptService) *RideHandler {
	return &RideHandler{
		session:  session,
		receipts: receipts,
	}
}

// CreateRideRequest is the HTTP request body for requesting a ride.
type CreateRideRequest struct {
	Pickup     string          `json:"pickup"`
	Drop       string          `json:"drop"`
	DistanceKm decimal.Decimal `json:"distance_km"`
}

// CreateRideResponse is the HTTP response for requesting a ride.
type CreateRideResponse struct {
	Ride      RideResponse `json:"ride"`
	Confirmed bool         `json:"confirmed"`
	Warning   string       `json:"warning,omitempty"`
}

// AcceptRideRequest is the HTTP request body for a driver accepting the ride.
type AcceptRideRequest struct {
	DriverID string `json:"driver_id"`
}

// CancelRideRequest is the HTTP request body for cancelling the ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RateRideRequest is the HTTP request body for rating the newest completed ride.
type RateRideRequest struct {
	Rating int `json:"rating"`
}

// CreateRide handles POST /v1/rides
// distance_km must be a whole number of kilometres because the contract prices
// whole kilometres; 5.2 is rejected with 400 while 5 is accepted.
// The chain request is confirmed in the background; pass ?wait=true to block
// until the receipt arrives.
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	ride, err := h.session.RequestRide(c.Request.Context(), service.RequestRideInput{
		Pickup:     req.Pickup,
		Drop:       req.Drop,
		DistanceKm: req.DistanceKm,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	wait, _ := strconv.ParseBool(c.Query("wait"))
	if !wait {
		respondJSON(c, http.StatusAccepted, CreateRideResponse{Ride: toRideResponse(ride)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), confirmationTimeout)
	defer cancel()

	conf, err := h.session.AwaitConfirmation(ctx, ride.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Report the ride as it is now, with the confirmation recorded.
	if current := h.session.Controller().Current(); current != nil && current.ID == ride.ID {
		ride = current
	}

	respondJSON(c, http.StatusCreated, CreateRideResponse{
		Ride:      toRideResponse(ride),
		Confirmed: true,
		Warning:   conf.Warning,
	})
}

// GetCurrent handles GET /v1/rides/current
func (h *RideHandler) GetCurrent(c *gin.Context) {
	ride := h.session.Controller().Current()
	if ride == nil {
		respondError(c, domain.ErrNoCurrentRide)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"ride":                 toRideResponse(ride),
		"confirmation_pending": h.session.Pending(),
	})
}

// AcceptRide handles POST /v1/rides/current/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	var req AcceptRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	ride, err := h.session.ConfirmAcceptance(c.Request.Context(), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// StartTrip handles POST /v1/rides/current/start
func (h *RideHandler) StartTrip(c *gin.Context) {
	ride, err := h.session.StartTrip(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CompleteTrip handles POST /v1/rides/current/complete
func (h *RideHandler) CompleteTrip(c *gin.Context) {
	ride, err := h.session.CompleteTrip(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CancelRide handles POST /v1/rides/current/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	var req CancelRideRequest
	// Body is optional.
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by passenger"
	}

	ride, err := h.session.CancelTrip(c.Request.Context(), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// RateRide handles POST /v1/rides/rating
func (h *RideHandler) RateRide(c *gin.Context) {
	var req RateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "validation"})
		return
	}

	ride, err := h.session.Rate(c.Request.Context(), req.Rating)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// GetHistory handles GET /v1/rides/history
func (h *RideHandler) GetHistory(c *gin.Context) {
	rides, err := h.session.Controller().History(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		response = append(response, toRideResponse(r))
	}

	respondJSON(c, http.StatusOK, response)
}
