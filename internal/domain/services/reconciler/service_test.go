package reconciler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/domain/services/ledger"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
)

type fixture struct {
	svc    *Service
	mock   sqlmock.Sqlmock
	userID uuid.UUID
	txID   uuid.UUID
}

func newFixture(t *testing.T, secrets map[string]string) *fixture {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	log := logger.NewNop()
	svc := NewService(
		db,
		repositories.NewProviderEventRepository(db),
		repositories.NewTransactionRepository(db),
		repositories.NewGiftCardRepository(db),
		repositories.NewBillPaymentRepository(db),
		ledger.NewService(repositories.NewAccountRepository(db), log),
		nil,
		secrets,
		nil,
		log,
	)

	return &fixture{svc: svc, mock: mock, userID: uuid.New(), txID: uuid.New()}
}

var transactionColumns = []string{
	"id", "user_id", "kind", "status", "currency", "chain",
	"provider", "provider_ref", "failure_reason", "created_at", "completed_at",
}

var accountColumns = []string{
	"id", "user_id", "currency", "chain", "balance", "deposit_address",
	"frozen", "active", "created_at", "updated_at",
}

func (f *fixture) pendingTxRow(kind, currency, chain, provider, ref string) *sqlmock.Rows {
	return sqlmock.NewRows(transactionColumns).AddRow(
		f.txID, f.userID, kind, "pending", currency, chain,
		provider, ref, nil, time.Now(), nil,
	)
}

func event(provider string, payload string) *entities.ProviderEvent {
	return &entities.ProviderEvent{
		ID:         uuid.New(),
		Provider:   provider,
		Payload:    []byte(payload),
		ReceivedAt: time.Now(),
	}
}

func TestApplyPalmPaySuccessCreditsWallet(t *testing.T) {
	f := newFixture(t, nil)

	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE provider = $1 AND provider_ref = $2")).
		WithArgs(entities.ProviderPalmPay, "PP-1001").
		WillReturnRows(f.pendingTxRow("receive", "NGN", "", entities.ProviderPalmPay, "PP-1001"))

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			uuid.New(), f.userID, "NGN", "", "0", nil, false, true, time.Now(), time.Now(),
		))
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance + $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("15000"))
	f.mock.ExpectCommit()

	err := f.svc.apply(context.Background(), event(entities.ProviderPalmPay,
		`{"orderNo":"PP-1001","orderStatus":1,"amount":15000,"currency":"NGN"}`))
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestApplyRedeliveredEventIsNoOp(t *testing.T) {
	f := newFixture(t, nil)

	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE provider = $1 AND provider_ref = $2")).
		WillReturnRows(f.pendingTxRow("receive", "NGN", "", entities.ProviderPalmPay, "PP-1001"))

	f.mock.ExpectBegin()
	// The conditional guard finds the row already terminal.
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	err := f.svc.apply(context.Background(), event(entities.ProviderPalmPay,
		`{"orderNo":"PP-1001","orderStatus":1,"amount":15000}`))
	assert.True(t, domainerrors.IsDuplicateWebhook(err), "got %v", err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestApplyRejectsBadSignature(t *testing.T) {
	f := newFixture(t, map[string]string{entities.ProviderPalmPay: "topsecret"})

	ev := event(entities.ProviderPalmPay, `{"orderNo":"PP-1001","orderStatus":1}`)
	ev.Signature = "deadbeef"

	err := f.svc.apply(context.Background(), ev)
	assert.True(t, domainerrors.IsValidation(err))
}

func TestApplyAcceptsValidSignature(t *testing.T) {
	secret := "topsecret"
	f := newFixture(t, map[string]string{entities.ProviderPalmPay: secret})

	payload := `{"orderNo":"PP-2002","orderStatus":2,"amount":500}`
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))

	ev := event(entities.ProviderPalmPay, payload)
	ev.Signature = hex.EncodeToString(mac.Sum(nil))

	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE provider = $1 AND provider_ref = $2")).
		WillReturnRows(f.pendingTxRow("receive", "NGN", "", entities.ProviderPalmPay, "PP-2002"))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	err := f.svc.apply(context.Background(), ev)
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestApplyChainFailureRefundsHeldDebit(t *testing.T) {
	f := newFixture(t, nil)

	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE provider = $1 AND provider_ref = $2")).
		WithArgs(entities.ProviderChain, f.txID.String()).
		WillReturnRows(f.pendingTxRow("send", "ETH", "ethereum", entities.ProviderChain, f.txID.String()))

	detailColumns := []string{
		"id", "transaction_id", "kind", "amount_native", "amount_usd", "amount_local",
		"fee_native", "fee_usd", "usd_per_unit", "local_per_usd",
		"counterparty", "pair_currency", "pair_chain", "pair_amount", "created_at",
	}
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM transaction_details")).
		WillReturnRows(sqlmock.NewRows(detailColumns).AddRow(
			uuid.New(), f.txID, "send", "1", "2000", "3000000",
			"0.0025", "5", "2000", "1500",
			"0xabc", nil, nil, nil, time.Now(),
		))

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			uuid.New(), f.userID, "ETH", "ethereum", "0", nil, false, true, time.Now(), time.Now(),
		))
	// Refund returns the amount plus the held fee: 1.0025 ETH.
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance + $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("1.0025"))
	f.mock.ExpectCommit()

	payload := `{"reference":"` + f.txID.String() + `","direction":"out","status":"failed","currency":"ETH","chain":"ethereum","amount":1,"txHash":"0xdead","address":"0xabc"}`
	err := f.svc.apply(context.Background(), event(entities.ProviderChain, payload))
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestApplyUnknownProviderFails(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.apply(context.Background(), event("stripe", `{}`))
	assert.True(t, domainerrors.IsValidation(err))
}

func TestApplyVTPassDeliveredMarksSuccess(t *testing.T) {
	f := newFixture(t, nil)

	billColumns := []string{"id", "user_id", "bill_type", "amount", "recipient", "status", "provider_ref", "created_at"}
	f.mock.ExpectQuery(regexp.QuoteMeta("UPDATE bill_payments")).
		WithArgs("REQ-1", "successful").
		WillReturnRows(sqlmock.NewRows(billColumns).AddRow(
			uuid.New(), f.userID, "electricity", "5000", "meter-001", "successful", "REQ-1", time.Now(),
		))

	err := f.svc.apply(context.Background(), event(entities.ProviderVTPass,
		`{"requestId":"REQ-1","transactionStatus":"delivered"}`))
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}
