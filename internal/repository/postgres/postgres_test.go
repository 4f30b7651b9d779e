package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donation/internal/domain"
	"donation/internal/repository"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestTransactionRepository_ApplyOutcome(t *testing.T) {
	update := regexp.QuoteMeta("UPDATE transactions")
	exists := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)")
	outcome := domain.TransactionOutcome{
		Status:       domain.TransactionStatusCompleted,
		GatewayToken: "GW-1",
		Response:     []byte(`{"callback":{"status":"success"}}`),
	}

	t.Run("pending row is updated", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(update).
			WithArgs("completed", "GW-1", `{"callback":{"status":"success"}}`, "txn-1", "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := NewTransactionRepository(db).ApplyOutcome(context.Background(), "txn-1", outcome)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("settled row is left alone", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(exists).WithArgs("txn-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		applied, err := NewTransactionRepository(db).ApplyOutcome(context.Background(), "txn-1", outcome)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(exists).WithArgs("txn-9").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := NewTransactionRepository(db).ApplyOutcome(context.Background(), "txn-9", outcome)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("empty response is sent as null", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(update).
			WithArgs("failed", "", nil, "txn-1", "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := NewTransactionRepository(db).ApplyOutcome(context.Background(), "txn-1",
			domain.TransactionOutcome{Status: domain.TransactionStatusFailed})
		require.NoError(t, err)
		assert.True(t, applied)
	})
}

func TestTransactionRepository_GetByReference(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "donation_id", "payment_gateway_id", "code", "gateway_transaction_id",
		"gateway_token", "amount", "currency_id", "status", "gateway_response", "created_at", "updated_at",
	}).AddRow("txn-1", "don-1", int64(2), "easebuzz", "EAS-20240301100000-ABCDEF",
		"", "105.00", "cur-inr", "pending", nil, created, created)

	mock.ExpectQuery(regexp.QuoteMeta("t.gateway_transaction_id = $2 OR t.gateway_token = $2")).
		WithArgs("don-1", "EAS-20240301100000-ABCDEF").
		WillReturnRows(rows)

	txn, err := NewTransactionRepository(db).GetByReference(context.Background(), "don-1", "EAS-20240301100000-ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "easebuzz", txn.GatewayCode)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("105")))
	assert.Nil(t, txn.GatewayResponse)
}

func TestTransactionRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.id = $1")).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := NewTransactionRepository(db).GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTransactionRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WithArgs("txn-1", "don-1", int64(2), "EAS-1", "", sqlmock.AnyArg(), "cur-inr", "pending", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewTransactionRepository(db).Create(context.Background(), &domain.Transaction{
		ID:         "txn-1",
		DonationID: "don-1",
		GatewayID:  2,
		Reference:  "EAS-1",
		Amount:     decimal.RequireFromString("105.00"),
		CurrencyID: "cur-inr",
		Status:     domain.TransactionStatusPending,
		CreatedAt:  now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayRepository_LoadConfig(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_gateway_configs c")).
		WithArgs("easebuzz", "test").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("merchant_key", "KEY").
			AddRow("salt", "SALT").
			AddRow("enable_iframe", ""))

	values, err := NewGatewayRepository(db).LoadConfig(context.Background(), "easebuzz", "test")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"merchant_key": "KEY", "salt": "SALT", "enable_iframe": ""}, values)
}

func TestGatewayRepository_GetByCode_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_gateways WHERE code = $1")).
		WithArgs("paypal").
		WillReturnError(sql.ErrNoRows)

	_, err := NewGatewayRepository(db).GetByCode(context.Background(), "paypal")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGatewayRepository_ListActive(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "display_order", "is_active", "is_default"}).
			AddRow(int64(1), "Worldline", "worldline", 1, true, true).
			AddRow(int64(2), "Easebuzz", "easebuzz", 2, true, false))

	gateways, err := NewGatewayRepository(db).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, gateways, 2)
	assert.Equal(t, "worldline", gateways[0].Code)
	assert.True(t, gateways[0].IsDefault)
}

func TestDonationRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM donations d")).
		WithArgs("don-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "first_name", "last_name", "email", "phone", "phone_country_code",
			"amount", "currency_id", "code", "symbol",
		}).AddRow("don-1", "Asha", "Rao", "asha@example.org", "9876543210", "+91", "100.00", "cur-inr", "INR", "₹"))

	donation, err := NewDonationRepository(db).GetByID(context.Background(), "don-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", donation.DonorName())
	assert.Equal(t, "INR", donation.CurrencyCode)
	assert.True(t, donation.Amount.Equal(decimal.NewFromInt(100)))
}
