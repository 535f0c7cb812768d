package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReceiptResponse is the HTTP response for a ride receipt.
type ReceiptResponse struct {
	ID              string  `json:"id"`
	RideID          string  `json:"ride_id"`
	ChainRideID     string  `json:"chain_ride_id,omitempty"`
	Pickup          string  `json:"pickup"`
	Drop            string  `json:"drop"`
	DistanceKm      string  `json:"distance_km"`
	BaseFare        string  `json:"base_fare"`
	DistanceCharge  string  `json:"distance_charge"`
	TotalFare       string  `json:"total_fare"`
	FareWei         string  `json:"fare_wei,omitempty"`
	PaymentStatus   string  `json:"payment_status"`
	RequestTxHash   string  `json:"request_tx_hash,omitempty"`
	CompleteTxHash  string  `json:"complete_tx_hash,omitempty"`
	DriverID        string  `json:"driver_id"`
	Rating          int     `json:"rating,omitempty"`
	DurationMinutes float64 `json:"duration_minutes"`
	StartedAt       string  `json:"started_at,omitempty"`
	EndedAt         string  `json:"ended_at"`
}

// GetReceipt handles GET /v1/rides/receipt
// Use ?format=text for the plain-text rendering.
func (h *RideHandler) GetReceipt(c *gin.Context) {
	ride, err := h.session.Controller().LatestCompleted(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	receipt, err := h.receipts.GenerateReceipt(ride)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, h.receipts.FormatReceipt(receipt))
		return
	}

	response := ReceiptResponse{
		ID:              receipt.ID,
		RideID:          receipt.RideID,
		ChainRideID:     receipt.ChainRideID,
		Pickup:          receipt.Pickup,
		Drop:            receipt.Drop,
		DistanceKm:      receipt.DistanceKm.String(),
		BaseFare:        receipt.BaseFare.String(),
		DistanceCharge:  receipt.DistanceCharge.String(),
		TotalFare:       receipt.TotalFare.String(),
		PaymentStatus:   string(receipt.PaymentStatus),
		RequestTxHash:   receipt.RequestTxHash,
		CompleteTxHash:  receipt.CompleteTxHash,
		DriverID:        receipt.DriverID,
		Rating:          receipt.Rating,
		DurationMinutes: receipt.Duration.Minutes(),
		StartedAt:       formatTime(receipt.StartedAt),
		EndedAt:         formatTime(receipt.EndedAt),
	}
	if receipt.FareWei != nil {
		response.FareWei = receipt.FareWei.String()
	}

	respondJSON(c, http.StatusOK, response)
}
