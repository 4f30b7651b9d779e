package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"donation/internal/repository"
	"donation/internal/service"
)

const msgInternal = "Something went wrong. Please try again."

// ErrorResponse represents an error response.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Only messages of known service errors reach the client.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Message: publicMessage(err, code)})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrDonationNotFound),
		errors.Is(err, service.ErrTransactionNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidDonationID),
		errors.Is(err, service.ErrInvalidTransactionID),
		errors.Is(err, service.ErrInvalidGateway),
		errors.Is(err, service.ErrUnknownGatewayCallback),
		errors.Is(err, service.ErrCallbackRejected):
		return http.StatusBadRequest

	// Gateway refused or cannot serve this donation
	case errors.Is(err, service.ErrGatewayNotSupported),
		errors.Is(err, service.ErrPaymentInitFailed),
		errors.Is(err, service.ErrGatewayMismatch),
		errors.Is(err, service.ErrUnsettledCallback):
		return http.StatusUnprocessableEntity

	// Service unavailable
	case errors.Is(err, service.ErrGatewayUnavailable),
		errors.Is(err, service.ErrGatewayMisconfigured):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns a donor-safe text for err.
func publicMessage(err error, code int) string {
	switch {
	case errors.Is(err, service.ErrGatewayMisconfigured):
		return "Payments are temporarily unavailable. Please try again later."
	case errors.Is(err, service.ErrGatewayUnavailable):
		return "The payment gateway did not respond. Please try again shortly."
	case errors.Is(err, service.ErrGatewayNotSupported):
		return "Selected gateway is not supported yet."
	case errors.Is(err, service.ErrPaymentInitFailed):
		return "Failed to initialize payment."
	case errors.Is(err, service.ErrTransactionNotFound):
		return "Transaction not found for this donation."
	case errors.Is(err, service.ErrDonationNotFound), errors.Is(err, repository.ErrNotFound):
		return "Donation not found."
	case code == http.StatusBadRequest:
		return err.Error()
	default:
		return msgInternal
	}
}
