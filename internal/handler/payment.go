package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"donation/internal/domain"
	"donation/internal/gateway"
	"donation/internal/service"
)

// PaymentProcessor is the payment orchestration the handlers drive.
type PaymentProcessor interface {
	BeginPayment(ctx context.Context, req service.BeginPaymentRequest) (*service.BeginPaymentResult, error)
	HandleCallback(ctx context.Context, req service.CallbackRequest) (service.CallbackOutcome, error)
	CheckStatus(ctx context.Context, req service.CheckStatusRequest) (*service.CheckStatusResult, error)
	LastTransaction(ctx context.Context, donationID string) (*service.LastTransactionSummary, error)
	Snapshot(ctx context.Context, transactionID string) (*domain.TransactionSnapshot, error)
}

// Return-URL parameters that are ours, not the gateway's.
const (
	paramDonationID = "donation_id"
	paramReference  = "ref"
)

// PaymentHandler handles HTTP requests for donation payments.
type PaymentHandler struct {
	payments PaymentProcessor
	logger   *slog.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments PaymentProcessor, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{payments: payments, logger: logger}
}

// BeginPaymentRequest is the HTTP request body for starting a payment.
type BeginPaymentRequest struct {
	Gateway string `json:"gateway"`
}

// LaunchPayload is what the client needs to open the gateway checkout.
type LaunchPayload struct {
	LaunchData  gateway.LaunchData `json:"launch_data"`
	Environment string             `json:"environment"`
	ReturnURL   string             `json:"return_url"`
}

// BeginPaymentResponse is the HTTP response for a started payment.
type BeginPaymentResponse struct {
	OK            bool          `json:"ok"`
	Gateway       string        `json:"gateway"`
	TransactionID string        `json:"transaction_id"`
	Amount        string        `json:"amount"`
	Payload       LaunchPayload `json:"payload"`
}

// BeginPayment handles POST /v1/donations/:id/pay
func (h *PaymentHandler) BeginPayment(c *gin.Context) {
	var req BeginPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	gatewayCode := strings.ToLower(strings.TrimSpace(req.Gateway))
	if gatewayCode == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "gateway is required"})
		return
	}

	result, err := h.payments.BeginPayment(c.Request.Context(), service.BeginPaymentRequest{
		DonationID:  c.Param("id"),
		GatewayCode: gatewayCode,
	})
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "begin payment failed", "donation_id", c.Param("id"), "gateway", gatewayCode, "error", err)
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, BeginPaymentResponse{
		OK:            true,
		Gateway:       result.Gateway,
		TransactionID: result.TransactionID,
		Amount:        result.Amount.StringFixed(2),
		Payload: LaunchPayload{
			LaunchData:  result.LaunchData,
			Environment: result.Environment,
			ReturnURL:   result.ReturnURL,
		},
	})
}

// Callback handles GET|POST /v1/payments/callback. Gateways redirect the
// donor's browser here, so the answer is always a redirect.
func (h *PaymentHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()

	if err := c.Request.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.logger.WarnContext(ctx, "unparseable payment callback", "error", err)
	}

	query := c.Request.URL.Query()
	fields := make(map[string]string)
	for key, values := range query {
		if key == paramDonationID || key == paramReference || len(values) == 0 {
			continue
		}
		fields[key] = values[0]
	}
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	donationID := query.Get(paramDonationID)
	if donationID == "" {
		donationID = c.Request.PostForm.Get(paramDonationID)
	}
	delete(fields, paramDonationID)

	outcome, err := h.payments.HandleCallback(ctx, service.CallbackRequest{
		Fields:     fields,
		DonationID: donationID,
		Reference:  query.Get(paramReference),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "payment callback not applied", "donation_id", donationID, "error", err)
	}

	c.Redirect(http.StatusFound, withFlash(outcome))
}

// CheckStatusRequest is the HTTP request body for a status check.
type CheckStatusRequest struct {
	TransactionID string `json:"transaction_id"`
}

// CheckStatusResponse is the HTTP response of a status check.
type CheckStatusResponse struct {
	OK       bool   `json:"ok"`
	Status   string `json:"status,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
}

// CheckStatus handles POST /v1/donations/:id/status
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	var req CheckStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}
	if _, err := uuid.Parse(req.TransactionID); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "transaction_id must be a UUID"})
		return
	}

	result, err := h.payments.CheckStatus(c.Request.Context(), service.CheckStatusRequest{
		DonationID:    c.Param("id"),
		TransactionID: req.TransactionID,
	})
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "status check failed", "transaction_id", req.TransactionID, "error", err)
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CheckStatusResponse{
		OK:       result.Completed,
		Status:   result.Status,
		Redirect: result.RedirectURL,
		Message:  result.Message,
	})
}

// LastTransactionResponse is the HTTP response for the latest attempt of a donation.
type LastTransactionResponse struct {
	OK              bool                            `json:"ok"`
	LastTransaction *service.LastTransactionSummary `json:"last_transaction"`
}

// LastTransaction handles GET /v1/donations/:id/last-transaction
func (h *PaymentHandler) LastTransaction(c *gin.Context) {
	summary, err := h.payments.LastTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, LastTransactionResponse{OK: true, LastTransaction: summary})
}

// SessionResponse is the HTTP response of a snapshot lookup.
type SessionResponse struct {
	OK       bool                        `json:"ok"`
	Snapshot *domain.TransactionSnapshot `json:"snapshot"`
}

// Session handles GET /v1/transactions/:id/session
func (h *PaymentHandler) Session(c *gin.Context) {
	transactionID := c.Param("id")
	if _, err := uuid.Parse(transactionID); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "transaction id must be a UUID"})
		return
	}

	snap, err := h.payments.Snapshot(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SessionResponse{OK: true, Snapshot: snap})
}

// withFlash appends the outcome as status and message query parameters.
func withFlash(outcome service.CallbackOutcome) string {
	target, err := url.Parse(outcome.RedirectURL)
	if err != nil || outcome.RedirectURL == "" {
		target = &url.URL{Path: "/"}
	}

	status := "error"
	if outcome.Success {
		status = "success"
	}

	q := target.Query()
	q.Set("status", status)
	if outcome.Message != "" {
		q.Set("message", outcome.Message)
	}
	target.RawQuery = q.Encode()
	return target.String()
}
