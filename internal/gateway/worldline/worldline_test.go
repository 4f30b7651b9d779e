package worldline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donation/internal/domain"
	"donation/internal/gateway"
)

func testConfig(extra map[string]string) gateway.Config {
	values := map[string]string{
		"merchantCode":       "T1100662",
		"merchantSchemeCode": "first",
		"salt":               "6221663217KCONYJ",
		"typeOfPayment":      "LIVE",
		"currency":           "INR",
		"encryption_key":     "k",
		"encryption_iv":      "iv",
		"primaryColor":       "#0b5ed7",
	}
	for k, v := range extra {
		values[k] = v
	}
	return gateway.NewConfig(Code, gateway.EnvironmentTest, values)
}

func newAdapter(t *testing.T, extra map[string]string) *Adapter {
	t.Helper()
	a, err := New(testConfig(extra), gateway.Deps{})
	require.NoError(t, err)
	a.consumerID = func() string { return "c42" }
	return a
}

func TestHash_WireFormat(t *testing.T) {
	got := Hash("T1100662", "WOR-20250101120000-ABC123", "105", "c42", "919876543210", "donor@example.com", "6221663217KCONYJ")

	assert.Equal(t,
		"579e57f28c4327b1065481906958255c837000963e9821a19bc8537ed0738b654a4613e3872e8e3bb562c09c914323f9f632cf29297120f61d8a9680f3b38fdb",
		got)
}

func TestNew_MissingSalt(t *testing.T) {
	cfg := gateway.NewConfig(Code, gateway.EnvironmentTest, map[string]string{
		"merchantCode":       "T1100662",
		"merchantSchemeCode": "first",
		"typeOfPayment":      "LIVE",
		"currency":           "INR",
	})

	_, err := New(cfg, gateway.Deps{})

	var cfgErr *gateway.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "salt", cfgErr.Key)
	assert.Equal(t, Code, cfgErr.Gateway)
}

func TestInitialize_SignsPayload(t *testing.T) {
	a := newAdapter(t, nil)

	res := a.Initialize(context.Background(), gateway.PaymentRequest{
		Amount:           decimal.RequireFromString("105.00"),
		Currency:         "INR",
		Reference:        "WOR-20250101120000-ABC123",
		Name:             "Asha Rao",
		Email:            "donor@example.com",
		Phone:            "9876543210",
		PhoneCountryCode: "+91",
	})

	require.True(t, res.Success)
	form, ok := res.LaunchData["form_data"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "105", form["amount"])
	assert.Equal(t, "919876543210", form["mobileNumber"])
	assert.Equal(t, "c42", form["consumerId"])
	assert.Equal(t, "579e57f28c4327b1065481906958255c837000963e9821a19bc8537ed0738b654a4613e3872e8e3bb562c09c914323f9f632cf29297120f61d8a9680f3b38fdb", form["hash"])

	ui, ok := res.LaunchData["mer_array"].(map[string]string)
	require.True(t, ok)
	assert.NotContains(t, ui, "salt")
	assert.NotContains(t, ui, "encryption_key")
	assert.NotContains(t, ui, "encryption_iv")
	assert.Equal(t, "#0b5ed7", ui["primaryColor"])
}

func TestInitialize_TestModeChargesOne(t *testing.T) {
	a := newAdapter(t, map[string]string{"typeOfPayment": "TEST"})

	res := a.Initialize(context.Background(), gateway.PaymentRequest{
		Amount:           decimal.RequireFromString("105"),
		Reference:        "WOR-20250101120000-ABC123",
		Email:            "donor@example.com",
		Phone:            "9876543210",
		PhoneCountryCode: "+91",
	})

	form := res.LaunchData["form_data"].(map[string]string)
	assert.Equal(t, "1", form["amount"])
	assert.Equal(t, "c520156674ef1dedef61fa48432df867a456546ca1ec0651f8de3627ab75168be54c18ec7c17cffa6e6c99393ad5ade0f8fb8794d7e307df98b78a347ddd9a32", form["hash"])
}

func TestHandleCallback(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		success   bool
		status    domain.TransactionStatus
		token     string
		reference string
		amount    string
	}{
		{
			name:      "success",
			fields:    map[string]string{"msg": "0300|success|NA|WOR-1|9950|1325012345|105.00|{email:x}|01-01-2025 12:00:00|NA|||||||abc"},
			success:   true,
			status:    domain.TransactionStatusCompleted,
			token:     "1325012345",
			reference: "WOR-1",
			amount:    "105",
		},
		{
			name:      "failure code",
			fields:    map[string]string{"msg": "0399|failure|NA|WOR-2|9950|1325012346|105.00"},
			status:    domain.TransactionStatusFailed,
			token:     "1325012346",
			reference: "WOR-2",
			amount:    "105",
		},
		{
			name:   "prefix of success code is not success",
			fields: map[string]string{"msg": "03000|x"},
			status: domain.TransactionStatusFailed,
		},
		{
			name:   "single field",
			fields: map[string]string{"msg": "garbage"},
			status: domain.TransactionStatusFailed,
		},
		{
			name:   "missing msg",
			fields: map[string]string{"other": "1"},
			status: domain.TransactionStatusFailed,
		},
	}

	a := newAdapter(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.HandleCallback(context.Background(), tt.fields)

			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.token, res.GatewayToken)
			assert.Equal(t, tt.reference, res.Reference)
			assert.Equal(t, tt.fields, res.Raw)
			if tt.amount == "" {
				assert.Nil(t, res.Amount)
			} else {
				require.NotNil(t, res.Amount)
				assert.True(t, res.Amount.Equal(decimal.RequireFromString(tt.amount)))
			}
		})
	}
}

func TestVerify(t *testing.T) {
	var got verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"paymentMethod":{"paymentTransaction":{"statusCode":"0300","statusMessage":"SUCCESS","identifier":"1325012345","amount":"105.00"}}}`))
	}))
	defer srv.Close()

	a := newAdapter(t, map[string]string{"verifyURL": srv.URL})

	res := a.Verify(context.Background(), gateway.VerifyRequest{
		Reference:       "WOR-1",
		TransactionDate: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
	})

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, "1325012345", res.GatewayToken)
	assert.Equal(t, "105.00", res.Amount)

	assert.Equal(t, "T1100662", got.Merchant.Identifier)
	assert.Equal(t, "WOR-1", got.Transaction.Identifier)
	assert.Equal(t, "02-01-2025", got.Transaction.DateTime)
	assert.Equal(t, "O", got.Transaction.RequestType)
}

func TestVerify_NotConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paymentMethod":{"paymentTransaction":{"statusCode":"0398","statusMessage":"Initiated"}}}`))
	}))
	defer srv.Close()

	a := newAdapter(t, map[string]string{"verifyURL": srv.URL})

	res := a.Verify(context.Background(), gateway.VerifyRequest{Reference: "WOR-1"})

	assert.NoError(t, res.Err)
	assert.False(t, res.Success)
	assert.Equal(t, "Initiated", res.Status)
}

func TestVerify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	a := newAdapter(t, map[string]string{"verifyURL": target})

	res := a.Verify(context.Background(), gateway.VerifyRequest{Reference: "WOR-1"})

	assert.False(t, res.Success)
	assert.True(t, gateway.IsUnavailable(res.Err))
}

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) ObserveGatewayCall(gw, op, outcome string, _ time.Duration) {
	r.calls = append(r.calls, gw+"/"+op+"/"+outcome)
}

func TestVerify_ReportsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	a, err := New(testConfig(map[string]string{"verifyURL": srv.URL}), gateway.Deps{Observer: obs})
	require.NoError(t, err)

	a.Verify(context.Background(), gateway.VerifyRequest{Reference: "WOR-1"})

	assert.Equal(t, []string{"worldline/verify/unavailable"}, obs.calls)
}
