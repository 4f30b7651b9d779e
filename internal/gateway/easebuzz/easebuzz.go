// Package easebuzz integrates the Easebuzz embedded checkout.
package easebuzz

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"donation/internal/domain"
	"donation/internal/gateway"
)

// Code identifies the Easebuzz gateway.
const Code = "easebuzz"

const (
	productInfo = "Donation"
	defaultName = "Donor"

	testPayBase       = "https://testpay.easebuzz.in"
	livePayBase       = "https://pay.easebuzz.in"
	testDashboardBase = "https://testdashboard.easebuzz.in"
	liveDashboardBase = "https://dashboard.easebuzz.in"

	initiatePath = "/payment/initiateLink"
	retrievePath = "/transaction/v1/retrieve"
	payPath      = "/pay/"

	udfCount = 10
)

var requiredKeys = []string{"merchant_key", "salt"}

// Adapter implements gateway.Adapter for Easebuzz.
type Adapter struct {
	cfg         gateway.Config
	deps        gateway.Deps
	key         string
	salt        string
	payBase     string
	initiateURL string
	retrieveURL string
	logEnabled  bool
}

// New validates cfg and creates an Easebuzz adapter.
func New(cfg gateway.Config, deps gateway.Deps) (*Adapter, error) {
	if err := cfg.Require(requiredKeys...); err != nil {
		return nil, err
	}

	payBase, dashboardBase := testPayBase, testDashboardBase
	if cfg.IsLive() {
		payBase, dashboardBase = livePayBase, liveDashboardBase
	}

	return &Adapter{
		cfg:         cfg,
		deps:        deps.WithDefaults(),
		key:         cfg.Get("merchant_key"),
		salt:        cfg.Get("salt"),
		payBase:     payBase,
		initiateURL: cfg.GetOr("initiateURL", payBase+initiatePath),
		retrieveURL: cfg.GetOr("retrieveURL", dashboardBase+retrievePath),
		logEnabled:  cfg.Bool("log_enabled"),
	}, nil
}

// Registration returns the factory and resolver entry for Easebuzz.
func Registration() gateway.Registration {
	return gateway.Registration{
		Code: Code,
		New: func(cfg gateway.Config, deps gateway.Deps) (gateway.Adapter, error) {
			return New(cfg, deps)
		},
		Matches: Matches,
	}
}

// Matches reports whether a callback has Easebuzz's signed field set.
func Matches(fields map[string]string) bool {
	return gateway.HasFields(fields, "txnid", "hash")
}

// Code returns the gateway code.
func (a *Adapter) Code() string { return Code }

// NormalizeStatus maps an Easebuzz status word to a transaction status.
func NormalizeStatus(status string) domain.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "completed":
		return domain.TransactionStatusCompleted
	case "usercancelled", "user_cancelled", "cancelled", "canceled":
		return domain.TransactionStatusCancelled
	case "aborted":
		return domain.TransactionStatusAborted
	case "refunded":
		return domain.TransactionStatusRefunded
	default:
		return domain.TransactionStatusFailed
	}
}

func checksum(parts ...string) string {
	sum := sha512.Sum512([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// RequestHash signs an initiate-payment request.
func RequestHash(key, txnID, amount, productInfo, firstName, email string, udf [udfCount]string, salt string) string {
	parts := []string{key, txnID, amount, productInfo, firstName, email}
	parts = append(parts, udf[:]...)
	parts = append(parts, salt)
	return checksum(parts...)
}

// ResponseHash computes the reverse hash Easebuzz attaches to a callback.
func ResponseHash(fields map[string]string, key, salt string) string {
	parts := []string{salt, fields["status"]}
	for i := udfCount; i >= 1; i-- {
		parts = append(parts, fields[fmt.Sprintf("udf%d", i)])
	}
	parts = append(parts,
		fields["email"],
		fields["firstname"],
		fields["productinfo"],
		fields["amount"],
		fields["txnid"],
		key,
	)
	return checksum(parts...)
}

// RetrieveHash signs a transaction retrieve request.
func RetrieveHash(key, txnID, amount, email, phone, salt string) string {
	return checksum(key, txnID, amount, email, phone, salt)
}

// flag decodes a status that Easebuzz sends as a bool, a number or a string.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch s := strings.Trim(strings.TrimSpace(string(b)), `"`); strings.ToLower(s) {
	case "true", "1", "success":
		*f = true
	default:
		*f = false
	}
	return nil
}

type initiateResponse struct {
	Status flag            `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error_desc"`
}

// Initialize creates a checkout session and returns its access key.
func (a *Adapter) Initialize(ctx context.Context, req gateway.PaymentRequest) (result gateway.InitResult) {
	start := time.Now()
	defer func() {
		a.deps.Observer.ObserveGatewayCall(Code, "initialize", gateway.Outcome(result.Success, result.Err), time.Since(start))
	}()

	amount := req.Amount.StringFixed(2)
	name := req.Name
	if strings.TrimSpace(name) == "" {
		name = defaultName
	}
	phone := normalizePhone(req.PhoneCountryCode, req.Phone)

	form := url.Values{}
	form.Set("key", a.key)
	form.Set("txnid", req.Reference)
	form.Set("amount", amount)
	form.Set("productinfo", productInfo)
	form.Set("firstname", name)
	form.Set("email", req.Email)
	form.Set("phone", phone)
	form.Set("surl", req.ReturnURL)
	form.Set("furl", req.ReturnURL)
	form.Set("hash", RequestHash(a.key, req.Reference, amount, productInfo, name, req.Email, [udfCount]string{}, a.salt))
	if sub := a.cfg.Get("sub_merchant_id"); sub != "" {
		form.Set("sub_merchant_id", sub)
	}

	body, err := a.postForm(ctx, a.initiateURL, form)
	if err != nil {
		a.deps.Logger.WarnContext(ctx, "easebuzz initiate failed", "reference", req.Reference, "error", err)
		return gateway.InitResult{Message: err.Error(), Err: err}
	}

	var decoded initiateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		err = fmt.Errorf("%w: decode easebuzz initiate: %v", gateway.ErrRejected, err)
		return gateway.InitResult{Message: err.Error(), Err: err}
	}

	var accessKey string
	if decoded.Status {
		accessKey = accessKeyFrom(decoded.Data)
	}

	if a.logEnabled {
		a.deps.Logger.InfoContext(ctx, "easebuzz initiate",
			"reference", req.Reference,
			"environment", a.cfg.Environment(),
			"status", bool(decoded.Status),
		)
	}

	if accessKey == "" {
		msg := initiateError(decoded)
		return gateway.InitResult{
			Message: msg,
			Err:     fmt.Errorf("%w: %s", gateway.ErrRejected, msg),
		}
	}

	env := "test"
	if a.cfg.IsLive() {
		env = "prod"
	}

	return gateway.InitResult{
		Success: true,
		LaunchData: gateway.LaunchData{
			"access_key": accessKey,
			"key":        a.key,
			"env":        env,
			"url":        a.payBase + payPath + accessKey,
		},
	}
}

// HandleCallback checks the reverse hash and normalizes the status word.
func (a *Adapter) HandleCallback(ctx context.Context, fields map[string]string) gateway.CallbackResult {
	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v
	}

	expected := ResponseHash(fields, a.key, a.salt)
	got := strings.ToLower(fields["hash"])
	if got == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		a.deps.Logger.WarnContext(ctx, "easebuzz callback hash mismatch", "txnid", fields["txnid"])
		return gateway.CallbackResult{
			Status:  domain.TransactionStatusFailed,
			Raw:     raw,
			Message: "easebuzz callback hash mismatch",
			Err:     fmt.Errorf("%w: easebuzz callback hash mismatch", gateway.ErrRejected),
		}
	}

	status := NormalizeStatus(fields["status"])
	token := fields["easepayid"]
	if token == "" {
		token = fields["txnid"]
	}

	result := gateway.CallbackResult{
		Success:      status == domain.TransactionStatusCompleted,
		Status:       status,
		GatewayToken: token,
		Reference:    fields["txnid"],
		Raw:          raw,
	}
	if !result.Success {
		result.Message = firstNonEmpty(fields["error_Message"], fields["error"], "easebuzz status "+fields["status"])
	}
	if amount, err := decimal.NewFromString(fields["amount"]); err == nil {
		result.Amount = &amount
	}

	if a.logEnabled {
		a.deps.Logger.InfoContext(ctx, "easebuzz callback", "txnid", fields["txnid"], "status", status)
	}

	return result
}

type retrieveResponse struct {
	Status flag            `json:"status"`
	Msg    json.RawMessage `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

type retrievedTransaction struct {
	Status    string `json:"status"`
	EasepayID string `json:"easepayid"`
	Amount    string `json:"amount"`
	Error     string `json:"error_Message"`
}

// Verify retrieves the transaction from the Easebuzz dashboard API. The API
// requires the donor's email and phone besides the transaction id.
func (a *Adapter) Verify(ctx context.Context, req gateway.VerifyRequest) (result gateway.VerifyResult) {
	start := time.Now()
	defer func() {
		a.deps.Observer.ObserveGatewayCall(Code, "verify", gateway.Outcome(result.Success, result.Err), time.Since(start))
	}()

	amount := req.Amount.StringFixed(2)
	phone := normalizePhone(req.PhoneCountryCode, req.Phone)

	form := url.Values{}
	form.Set("key", a.key)
	form.Set("txnid", req.Reference)
	form.Set("amount", amount)
	form.Set("email", req.Email)
	form.Set("phone", phone)
	form.Set("hash", RetrieveHash(a.key, req.Reference, amount, req.Email, phone, a.salt))

	body, err := a.postForm(ctx, a.retrieveURL, form)
	if err != nil {
		a.deps.Logger.WarnContext(ctx, "easebuzz verify failed", "reference", req.Reference, "error", err)
		return gateway.VerifyResult{Status: string(domain.TransactionStatusFailed), Message: err.Error(), Err: err}
	}

	var decoded retrieveResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		err = fmt.Errorf("%w: decode easebuzz retrieve: %v", gateway.ErrRejected, err)
		return gateway.VerifyResult{Status: string(domain.TransactionStatusFailed), Message: err.Error(), Err: err}
	}

	if a.logEnabled {
		a.deps.Logger.InfoContext(ctx, "easebuzz verify", "reference", req.Reference, "status", bool(decoded.Status))
	}

	payload := decoded.Msg
	if len(payload) == 0 || payload[0] != '{' {
		payload = decoded.Data
	}

	var txn retrievedTransaction
	if len(payload) > 0 && payload[0] == '{' {
		_ = json.Unmarshal(payload, &txn)
	}

	if !decoded.Status {
		msg := firstNonEmpty(txn.Error, strings.Trim(string(decoded.Msg), `"`), "easebuzz verification failed")
		return gateway.VerifyResult{
			Status:  firstNonEmpty(txn.Status, string(domain.TransactionStatusFailed)),
			Raw:     json.RawMessage(body),
			Message: msg,
		}
	}

	success := strings.EqualFold(txn.Status, "success")
	status := string(domain.TransactionStatusCompleted)
	if !success {
		status = firstNonEmpty(txn.Status, string(domain.TransactionStatusFailed))
	}

	return gateway.VerifyResult{
		Success:      success,
		Status:       status,
		GatewayToken: txn.EasepayID,
		Amount:       txn.Amount,
		Raw:          json.RawMessage(body),
		Message:      txn.Error,
	}
}

func (a *Adapter) postForm(ctx context.Context, target string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return gateway.Send(a.deps.HTTPClient, req)
}

// normalizePhone keeps the last ten digits of country code and number.
func normalizePhone(countryCode, phone string) string {
	var b strings.Builder
	for _, r := range countryCode + phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}

func accessKeyFrom(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var obj struct {
		AccessKey string `json:"access_key"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.AccessKey
	}
	return ""
}

func initiateError(resp initiateResponse) string {
	if resp.Error != "" {
		return resp.Error
	}
	var s string
	if err := json.Unmarshal(resp.Data, &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(resp.Data, &obj); err == nil {
		if m := firstNonEmpty(obj.Message, obj.Reason); m != "" {
			return m
		}
	}
	return "unable to initialize easebuzz payment"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
