// Package worldline integrates the Worldline (Paynimo) hosted checkout.
//
// Initialization is local: the adapter signs a pipe-delimited request string
// and the browser redirects straight to Worldline. The callback arrives as a
// single pipe-delimited "msg" field, and verification is a JSON POST to the
// Paynimo status endpoint.
package worldline

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"donation/internal/domain"
	"donation/internal/gateway"
)

// Code identifies the Worldline gateway.
const Code = "worldline"

const (
	successCode      = "0300"
	testPaymentType  = "TEST"
	defaultVerifyURL = "https://www.paynimo.com/api/paynimoV2.req"
	verifyDateLayout = "02-01-2006"

	// Callback msg positions.
	fieldStatus    = 0
	fieldReference = 3
	fieldToken     = 5
	fieldAmount    = 6
)

var requiredKeys = []string{"merchantCode", "merchantSchemeCode", "salt", "typeOfPayment", "currency"}

// secretKeys are stripped from the UI config handed to the browser.
var secretKeys = []string{"salt", "encryption_key", "encryption_iv", "verifyURL"}

// Adapter implements gateway.Adapter for Worldline.
type Adapter struct {
	cfg        gateway.Config
	deps       gateway.Deps
	verifyURL  string
	consumerID func() string
}

// New validates cfg and creates a Worldline adapter.
func New(cfg gateway.Config, deps gateway.Deps) (*Adapter, error) {
	if err := cfg.Require(requiredKeys...); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:        cfg,
		deps:       deps.WithDefaults(),
		verifyURL:  cfg.GetOr("verifyURL", defaultVerifyURL),
		consumerID: randomConsumerID,
	}, nil
}

// Registration returns the factory and resolver entry for Worldline.
func Registration() gateway.Registration {
	return gateway.Registration{
		Code: Code,
		New: func(cfg gateway.Config, deps gateway.Deps) (gateway.Adapter, error) {
			return New(cfg, deps)
		},
		Matches: Matches,
	}
}

// Matches reports whether a callback carries Worldline's single combined field.
func Matches(fields map[string]string) bool {
	return gateway.HasFields(fields, "msg")
}

// Code returns the gateway code.
func (a *Adapter) Code() string { return Code }

// Hash signs a checkout request. The run of empty fields between email and
// salt is part of Worldline's wire contract.
func Hash(merchantCode, txnID, amount, consumerID, mobile, email, salt string) string {
	data := merchantCode + "|" + txnID + "|" + amount + "||" + consumerID + "|" + mobile + "|" + email + "||||||||||" + salt
	sum := sha512.Sum512([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Initialize signs the checkout payload. No network call is made.
func (a *Adapter) Initialize(ctx context.Context, req gateway.PaymentRequest) gateway.InitResult {
	amount := req.Amount.String()
	if strings.EqualFold(a.cfg.Get("typeOfPayment"), testPaymentType) {
		amount = "1"
	}

	mobile := strings.ReplaceAll(req.PhoneCountryCode+req.Phone, "+", "")
	consumerID := a.consumerID()
	merchantCode := a.cfg.Get("merchantCode")

	hash := Hash(merchantCode, req.Reference, amount, consumerID, mobile, req.Email, a.cfg.Get("salt"))

	a.deps.Logger.DebugContext(ctx, "worldline checkout signed",
		"reference", req.Reference,
		"environment", a.cfg.Environment(),
	)

	return gateway.InitResult{
		Success: true,
		LaunchData: gateway.LaunchData{
			"form_data": map[string]string{
				"merchantId":   merchantCode,
				"txnId":        req.Reference,
				"amount":       amount,
				"currencycode": a.cfg.Get("currency"),
				"schemecode":   a.cfg.Get("merchantSchemeCode"),
				"consumerId":   consumerID,
				"mobileNumber": mobile,
				"email":        req.Email,
				"customerName": req.Name,
				"hash":         hash,
			},
			"mer_array": a.cfg.Without(secretKeys...),
		},
	}
}

// HandleCallback parses the pipe-delimited msg field. Only status 0300 is a success.
func (a *Adapter) HandleCallback(ctx context.Context, fields map[string]string) gateway.CallbackResult {
	raw := copyFields(fields)

	msg := fields["msg"]
	if msg == "" {
		return gateway.CallbackResult{
			Status:  domain.TransactionStatusFailed,
			Raw:     raw,
			Message: "worldline callback without msg",
		}
	}

	parts := strings.Split(msg, "|")
	statusCode := strings.TrimSpace(parts[fieldStatus])
	success := statusCode == successCode

	result := gateway.CallbackResult{
		Success:      success,
		Status:       domain.TransactionStatusFailed,
		GatewayToken: field(parts, fieldToken),
		Reference:    field(parts, fieldReference),
		Raw:          raw,
	}
	if success {
		result.Status = domain.TransactionStatusCompleted
	} else {
		result.Message = "worldline status " + statusCode
	}

	if amount, err := decimal.NewFromString(field(parts, fieldAmount)); err == nil {
		result.Amount = &amount
	}

	return result
}

type verifyRequest struct {
	Merchant struct {
		Identifier string `json:"identifier"`
	} `json:"merchant"`
	Transaction struct {
		DeviceIdentifier string `json:"deviceIdentifier"`
		Currency         string `json:"currency"`
		Identifier       string `json:"identifier"`
		DateTime         string `json:"dateTime"`
		RequestType      string `json:"requestType"`
	} `json:"transaction"`
}

type verifyResponse struct {
	PaymentMethod struct {
		PaymentTransaction struct {
			StatusCode    string          `json:"statusCode"`
			StatusMessage string          `json:"statusMessage"`
			Identifier    string          `json:"identifier"`
			Amount        json.RawMessage `json:"amount"`
		} `json:"paymentTransaction"`
	} `json:"paymentMethod"`
}

// Verify queries the Paynimo status API for a merchant transaction reference.
func (a *Adapter) Verify(ctx context.Context, req gateway.VerifyRequest) (result gateway.VerifyResult) {
	start := time.Now()
	defer func() {
		a.deps.Observer.ObserveGatewayCall(Code, "verify", gateway.Outcome(result.Success, result.Err), time.Since(start))
	}()

	date := req.TransactionDate
	if date.IsZero() {
		date = a.deps.Now()
	}

	var payload verifyRequest
	payload.Merchant.Identifier = a.cfg.Get("merchantCode")
	payload.Transaction.DeviceIdentifier = "S"
	payload.Transaction.Currency = a.cfg.Get("currency")
	payload.Transaction.Identifier = req.Reference
	payload.Transaction.DateTime = date.Format(verifyDateLayout)
	payload.Transaction.RequestType = "O"

	body, err := json.Marshal(payload)
	if err != nil {
		return gateway.VerifyResult{Status: string(domain.TransactionStatusFailed), Message: err.Error(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.verifyURL, bytes.NewReader(body))
	if err != nil {
		return gateway.VerifyResult{Status: string(domain.TransactionStatusFailed), Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	respBody, err := gateway.Send(a.deps.HTTPClient, httpReq)
	if err != nil {
		a.deps.Logger.WarnContext(ctx, "worldline verify failed", "reference", req.Reference, "error", err)
		return gateway.VerifyResult{
			Status:  string(domain.TransactionStatusFailed),
			Raw:     rawJSON(respBody),
			Message: err.Error(),
			Err:     err,
		}
	}

	var decoded verifyResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		err = fmt.Errorf("%w: decode worldline status: %v", gateway.ErrRejected, err)
		return gateway.VerifyResult{Status: string(domain.TransactionStatusFailed), Message: err.Error(), Err: err}
	}

	txn := decoded.PaymentMethod.PaymentTransaction
	success := txn.StatusCode == successCode

	a.deps.Logger.InfoContext(ctx, "worldline verify",
		"reference", req.Reference,
		"status_code", txn.StatusCode,
	)

	status := string(domain.TransactionStatusCompleted)
	if !success {
		status = txn.StatusMessage
		if status == "" {
			status = string(domain.TransactionStatusFailed)
		}
	}

	return gateway.VerifyResult{
		Success:      success,
		Status:       status,
		GatewayToken: txn.Identifier,
		Amount:       strings.Trim(string(txn.Amount), `"`),
		Raw:          json.RawMessage(respBody),
	}
}

func randomConsumerID() string {
	return "c" + strconv.Itoa(rand.Intn(1000000)+1)
}

func field(parts []string, i int) string {
	if i < len(parts) {
		return strings.TrimSpace(parts[i])
	}
	return ""
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func rawJSON(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return nil
}
