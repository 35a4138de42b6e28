package orchestrator

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/domain/services/ledger"
	"github.com/terescrow/ledger-service/internal/domain/services/rates"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
)

const testPin = "1234"

type fakePriceStore struct {
	prices map[string]decimal.Decimal
	local  decimal.Decimal
}

func (f *fakePriceStore) GetPrice(_ context.Context, currency string) (*entities.AssetPrice, error) {
	price, ok := f.prices[currency]
	if !ok {
		return nil, domainerrors.RateUnavailable(currency)
	}
	return &entities.AssetPrice{Currency: currency, USDPrice: price, UpdatedAt: time.Now()}, nil
}

func (f *fakePriceStore) GetFiatRate(_ context.Context, currency string) (*entities.FiatRate, error) {
	return &entities.FiatRate{Currency: currency, USDRate: f.local, UpdatedAt: time.Now()}, nil
}

type fakeGateway struct {
	err          error
	calls        int
	address      string
	addressCalls int
}

func (g *fakeGateway) Transfer(context.Context, ChainTransferRequest) error {
	g.calls++
	return g.err
}

func (g *fakeGateway) CreateDepositAddress(context.Context, string, string) (string, error) {
	g.addressCalls++
	if g.err != nil {
		return "", g.err
	}
	return g.address, nil
}

type fixture struct {
	svc     *Service
	mock    sqlmock.Sqlmock
	gateway *fakeGateway
	userID  uuid.UUID
	pinHash string
}

func newFixture(t *testing.T, prices map[string]decimal.Decimal) *fixture {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	hash, err := bcrypt.GenerateFromPassword([]byte(testPin), bcrypt.MinCost)
	require.NoError(t, err)

	store := &fakePriceStore{prices: prices, local: decimal.NewFromInt(1500)}
	log := logger.NewNop()
	accountRepo := repositories.NewAccountRepository(db)
	gateway := &fakeGateway{}

	svc := NewService(
		db,
		rates.NewService(store, nil, &config.LedgerConfig{PriceCacheTTL: 30, PriceMaxAge: 900}, log),
		ledger.NewService(accountRepo, log),
		repositories.NewTransactionRepository(db),
		accountRepo,
		repositories.NewUserRepository(db),
		gateway,
		&config.LedgerConfig{SendFeeUSD: 5},
		log,
	)

	return &fixture{svc: svc, mock: mock, gateway: gateway, userID: uuid.New(), pinHash: string(hash)}
}

var accountColumns = []string{
	"id", "user_id", "currency", "chain", "balance", "deposit_address",
	"frozen", "active", "created_at", "updated_at",
}

func (f *fixture) expectPinCheck() {
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "pin_hash", "active", "created_at", "updated_at"}).
			AddRow(f.userID, "user@example.com", f.pinHash, true, time.Now(), time.Now()))
}

func (f *fixture) accountRow(currency, chain, balance string) *sqlmock.Rows {
	return sqlmock.NewRows(accountColumns).AddRow(
		uuid.New(), f.userID, currency, chain, balance, nil, false, true, time.Now(), time.Now(),
	)
}

func TestQuoteBuyAmounts(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})

	quote, err := f.svc.Quote(context.Background(), entities.TransactionKindBuy, &entities.TradeRequest{
		Amount:   decimal.NewFromInt(10),
		Currency: "USDT",
		Chain:    "tron",
	})
	require.NoError(t, err)

	assert.True(t, quote.AmountUSD.Equal(decimal.NewFromInt(10)), "usd %s", quote.AmountUSD)
	assert.True(t, quote.AmountLocal.Equal(decimal.NewFromInt(15000)), "local %s", quote.AmountLocal)
	assert.True(t, quote.OutputAmount.Equal(decimal.NewFromInt(10)))
}

func TestQuoteSwapDeductsGasFee(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{
		"ETH":  decimal.NewFromInt(2000),
		"USDC": decimal.NewFromInt(1),
	})

	quote, err := f.svc.Quote(context.Background(), entities.TransactionKindSwap, &entities.TradeRequest{
		Amount:     decimal.NewFromInt(1),
		Currency:   "ETH",
		Chain:      "ethereum",
		ToCurrency: "USDC",
		ToChain:    "ethereum",
	})
	require.NoError(t, err)

	assert.True(t, quote.OutputAmount.Equal(decimal.NewFromInt(1995)), "output %s", quote.OutputAmount)
	assert.True(t, quote.FeeUSD.Equal(decimal.NewFromInt(5)))
	assert.True(t, quote.FeeNative.Equal(decimal.RequireFromString("0.0025")), "fee native %s", quote.FeeNative)
}

func TestQuoteRejectsUnknownCurrency(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{})

	_, err := f.svc.Quote(context.Background(), entities.TransactionKindBuy, &entities.TradeRequest{
		Amount:   decimal.NewFromInt(1),
		Currency: "DOGE",
	})
	assert.True(t, domainerrors.IsRateUnavailable(err))
}

func TestPreviewSwapProjectsFeeSurcharge(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{
		"ETH":  decimal.NewFromInt(2000),
		"USDC": decimal.NewFromInt(1),
	})

	// No ETH account yet: balance reads as zero.
	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND currency = $2 AND chain = $3")).
		WillReturnError(sql.ErrNoRows)

	preview, err := f.svc.Preview(context.Background(), entities.TransactionKindSwap, f.userID, &entities.TradeRequest{
		Amount:     decimal.NewFromInt(1),
		Currency:   "ETH",
		Chain:      "ethereum",
		ToCurrency: "USDC",
		ToChain:    "ethereum",
	})
	require.NoError(t, err)

	assert.False(t, preview.CanProceed)
	// Projected debit is the swapped amount plus the fee equivalent.
	assert.True(t, preview.BalanceAfter.Equal(decimal.RequireFromString("-1.0025")),
		"balance after %s", preview.BalanceAfter)
}

func TestExecuteBuyInsufficientBalance(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})

	f.expectPinCheck()
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(f.accountRow("NGN", "", "0"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance - $2")).
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WillReturnRows(f.accountRow("NGN", "", "0"))
	f.mock.ExpectRollback()

	_, err := f.svc.Execute(context.Background(), entities.TransactionKindBuy, f.userID, &entities.TradeRequest{
		Amount:   decimal.NewFromInt(10),
		Currency: "USDT",
		Chain:    "tron",
		Pin:      testPin,
	})
	assert.True(t, domainerrors.IsInsufficientBalance(err), "got %v", err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExecuteBuySucceeds(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})

	f.expectPinCheck()
	f.mock.ExpectBegin()
	// Fiat leg: ensure then conditional debit of the 15,000 NGN cost.
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(f.accountRow("NGN", "", "20000"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance - $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5000"))
	// Crypto leg: lazily created and credited 10 USDT.
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(f.accountRow("USDT", "tron", "0"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance + $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("10"))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transaction_details")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	result, err := f.svc.Execute(context.Background(), entities.TransactionKindBuy, f.userID, &entities.TradeRequest{
		Amount:   decimal.NewFromInt(10),
		Currency: "USDT",
		Chain:    "tron",
		Pin:      testPin,
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TransactionStatusSuccessful, result.Status)
	assert.True(t, result.BalanceBefore.Equal(decimal.NewFromInt(20000)), "before %s", result.BalanceBefore)
	assert.True(t, result.BalanceAfter.Equal(decimal.NewFromInt(5000)), "after %s", result.BalanceAfter)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExecuteRejectsWrongPin(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})
	f.expectPinCheck()

	_, err := f.svc.Execute(context.Background(), entities.TransactionKindBuy, f.userID, &entities.TradeRequest{
		Amount:   decimal.NewFromInt(10),
		Currency: "USDT",
		Pin:      "9999",
	})
	require.Error(t, err)
	assert.Equal(t, "INVALID_PIN", domainerrors.Code(err))
}

func TestExecuteSendRollsBackOnProviderFailure(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2000)})
	f.gateway.err = domainerrors.ProviderUnavailable(entities.ProviderChain, nil)

	f.expectPinCheck()
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(f.accountRow("ETH", "ethereum", "2"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance - $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("0.9975"))
	f.mock.ExpectRollback()

	_, err := f.svc.Execute(context.Background(), entities.TransactionKindSend, f.userID, &entities.TradeRequest{
		Amount:    decimal.NewFromInt(1),
		Currency:  "ETH",
		Chain:     "ethereum",
		ToAddress: "0xabc",
		Pin:       testPin,
	})
	assert.True(t, domainerrors.IsProviderUnavailable(err), "got %v", err)
	assert.Equal(t, 1, f.gateway.calls)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExecuteSendCommitsPendingOnAmbiguousTimeout(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2000)})
	f.gateway.err = domainerrors.ProviderTimeoutAmbiguous(entities.ProviderChain, "ref")

	f.expectPinCheck()
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(f.accountRow("ETH", "ethereum", "2"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance - $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("0.9975"))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transaction_details")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	result, err := f.svc.Execute(context.Background(), entities.TransactionKindSend, f.userID, &entities.TradeRequest{
		Amount:    decimal.NewFromInt(1),
		Currency:  "ETH",
		Chain:     "ethereum",
		ToAddress: "0xabc",
		Pin:       testPin,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusPending, result.Status)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDepositAddressProvisionsOnFirstUse(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})
	f.gateway.address = "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"

	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(f.accountRow("USDT", "tron", "0"))
	f.mock.ExpectExec(regexp.QuoteMeta("SET deposit_address = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	address, err := f.svc.DepositAddress(context.Background(), f.userID, "USDT", "tron")
	require.NoError(t, err)
	assert.Equal(t, f.gateway.address, address)
	assert.Equal(t, 1, f.gateway.addressCalls)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDepositAddressReturnsExistingWithoutGatewayCall(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})

	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			uuid.New(), f.userID, "USDT", "tron", "0", "TExistingAddr", false, true, time.Now(), time.Now(),
		))

	address, err := f.svc.DepositAddress(context.Background(), f.userID, "USDT", "tron")
	require.NoError(t, err)
	assert.Equal(t, "TExistingAddr", address)
	assert.Equal(t, 0, f.gateway.addressCalls)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDepositAddressRejectsFiatWallet(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{})

	_, err := f.svc.DepositAddress(context.Background(), f.userID, "NGN", "")
	assert.True(t, domainerrors.IsValidation(err))
}

func TestReceiveCreditsDepositAccount(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})

	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE deposit_address = $1")).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			uuid.New(), f.userID, "USDT", "tron", "0", "TAddr", false, true, time.Now(), time.Now(),
		))
	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE provider = $1 AND provider_ref = $2")).
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(f.accountRow("USDT", "tron", "0"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance + $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5"))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transaction_details")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	err := f.svc.Receive(context.Background(), &entities.ChainDepositEvent{
		TxHash:    "0xfeed",
		Direction: "in",
		Address:   "TAddr",
		Currency:  "USDT",
		Chain:     "tron",
		Amount:    decimal.NewFromInt(5),
		Status:    "confirmed",
	})
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReceiveLosingInsertRaceReadsAsDuplicate(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})

	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE deposit_address = $1")).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			uuid.New(), f.userID, "USDT", "tron", "0", "TAddr", false, true, time.Now(), time.Now(),
		))
	// The lookup sees nothing yet; a concurrent redelivery commits first and
	// this insert loses on the provider_ref unique index.
	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE provider = $1 AND provider_ref = $2")).
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(f.accountRow("USDT", "tron", "0"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance + $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5"))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnError(&pq.Error{Code: "23505"})
	f.mock.ExpectRollback()

	err := f.svc.Receive(context.Background(), &entities.ChainDepositEvent{
		TxHash:    "0xdup",
		Direction: "in",
		Address:   "TAddr",
		Currency:  "USDT",
		Chain:     "tron",
		Amount:    decimal.NewFromInt(5),
		Status:    "confirmed",
	})
	assert.True(t, domainerrors.IsDuplicateWebhook(err), "got %v", err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExecuteRejectsSwapToSameCurrency(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2000)})

	_, err := f.svc.Execute(context.Background(), entities.TransactionKindSwap, f.userID, &entities.TradeRequest{
		Amount:     decimal.NewFromInt(1),
		Currency:   "ETH",
		Chain:      "ethereum",
		ToCurrency: "ETH",
		ToChain:    "ethereum",
		Pin:        testPin,
	})
	assert.True(t, domainerrors.IsValidation(err))
}
