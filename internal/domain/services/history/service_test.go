package history

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
)

func newHistory(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	return NewService(
		repositories.NewTransactionRepository(db),
		repositories.NewGiftCardRepository(db),
		repositories.NewBillPaymentRepository(db),
		logger.NewNop(),
	), mock
}

func sumRows(total string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"coalesce"}).AddRow(total)
}

func TestStatsPeriodOverPeriod(t *testing.T) {
	svc, mock := newHistory(t)
	userID := uuid.New()

	// Crypto: 20,000 now vs 10,000 before: +100%.
	mock.ExpectQuery(regexp.QuoteMeta("JOIN transaction_details")).WillReturnRows(sumRows("20000"))
	mock.ExpectQuery(regexp.QuoteMeta("JOIN transaction_details")).WillReturnRows(sumRows("10000"))
	// Gift cards: volume with an empty prior window reads +100%, not a
	// division blowup.
	mock.ExpectQuery(regexp.QuoteMeta("FROM gift_card_orders")).WillReturnRows(sumRows("500"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM gift_card_orders")).WillReturnRows(sumRows("0"))
	// Bills: nothing either window.
	mock.ExpectQuery(regexp.QuoteMeta("FROM bill_payments")).WillReturnRows(sumRows("0"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM bill_payments")).WillReturnRows(sumRows("0"))

	stats, err := svc.Stats(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	byNiche := map[entities.Niche]*entities.NicheStats{}
	for _, s := range stats {
		byNiche[s.Niche] = s
	}

	assert.True(t, byNiche[entities.NicheCrypto].ChangePercent.Equal(decimal.NewFromInt(100)),
		"crypto change %s", byNiche[entities.NicheCrypto].ChangePercent)
	assert.True(t, byNiche[entities.NicheGiftCard].ChangePercent.Equal(decimal.NewFromInt(100)))
	assert.True(t, byNiche[entities.NicheBillPayment].ChangePercent.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsNegativeChange(t *testing.T) {
	svc, mock := newHistory(t)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN transaction_details")).WillReturnRows(sumRows("5000"))
	mock.ExpectQuery(regexp.QuoteMeta("JOIN transaction_details")).WillReturnRows(sumRows("10000"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM gift_card_orders")).WillReturnRows(sumRows("0"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM gift_card_orders")).WillReturnRows(sumRows("0"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM bill_payments")).WillReturnRows(sumRows("0"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM bill_payments")).WillReturnRows(sumRows("0"))

	stats, err := svc.Stats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, stats[0].ChangePercent.Equal(decimal.NewFromInt(-50)),
		"change %s", stats[0].ChangePercent)
}

func TestListSingleNiche(t *testing.T) {
	svc, mock := newHistory(t)
	userID := uuid.New()

	columns := []string{
		"id", "user_id", "kind", "status", "currency", "chain",
		"provider", "provider_ref", "failure_reason", "created_at", "completed_at",
		"amount_native", "amount_local", "counterparty",
	}
	now := time.Now()
	rows := sqlmock.NewRows(columns).
		AddRow(uuid.New(), userID, "buy", "successful", "USDT", "tron",
			nil, nil, nil, now, now, "10", "15000", nil).
		AddRow(uuid.New(), userID, "sell", "pending", "BTC", "bitcoin",
			nil, nil, nil, now.Add(-time.Hour), nil, "0.5", "1100000", nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions t")).WillReturnRows(rows)

	result, pagination, err := svc.List(context.Background(), entities.HistoryFilter{
		UserID: userID,
		Niche:  entities.NicheCrypto,
		Page:   1,
		Limit:  20,
	})
	require.NoError(t, err)
	require.Len(t, result, 2)

	// Newest first, statuses folded into the unified vocabulary.
	assert.Equal(t, "buy", result[0].Type)
	assert.Equal(t, entities.UnifiedStatusSuccessful, result[0].Status)
	assert.Equal(t, entities.UnifiedStatusPending, result[1].Status)
	assert.Equal(t, 2, pagination.Count)
	assert.False(t, pagination.HasMore)
	require.NoError(t, mock.ExpectationsWereMet())
}
