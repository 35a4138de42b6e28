package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terescrow/ledger-service/internal/domain/entities"
)

// The unified vocabulary is not what the tables store: a declined filter has
// to match the raw terminal words each subsystem actually writes, or
// failed/refunded rows silently vanish from filtered history.

func TestGiftCardDeclinedFilterMatchesRawStatuses(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGiftCardRepository(db)
	userID := uuid.New()

	columns := []string{"id", "user_id", "product_name", "amount", "currency", "status", "provider_ref", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("status = ANY")).
		WithArgs(userID, pq.StringArray{"failed", "declined", "refunded"}, 20).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			uuid.New(), userID, "Amazon", "500", "USD", "failed", "RL-1", time.Now(),
		))

	result, err := repo.ListByUser(context.Background(), entities.HistoryFilter{
		UserID: userID,
		Status: entities.UnifiedStatusDeclined,
		Page:   1,
		Limit:  20,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, entities.UnifiedStatusDeclined, result[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBillPaymentDeclinedFilterMatchesRawStatuses(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBillPaymentRepository(db)
	userID := uuid.New()

	columns := []string{"id", "user_id", "bill_type", "amount", "recipient", "status", "provider_ref", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("status = ANY")).
		WithArgs(userID, pq.StringArray{"failed", "declined", "refunded"}, 20).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			uuid.New(), userID, "electricity", "5000", "meter-001", "failed", "REQ-9", time.Now(),
		))

	result, err := repo.ListByUser(context.Background(), entities.HistoryFilter{
		UserID: userID,
		Status: entities.UnifiedStatusDeclined,
		Page:   1,
		Limit:  20,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, entities.UnifiedStatusDeclined, result[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionDeclinedFilterIncludesRefunded(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)
	userID := uuid.New()

	columns := []string{
		"id", "user_id", "kind", "status", "currency", "chain",
		"provider", "provider_ref", "failure_reason", "created_at", "completed_at",
		"amount_native", "amount_local", "counterparty",
	}
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("t.status = ANY")).
		WithArgs(userID, pq.StringArray{"failed", "refunded"}, 20).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			uuid.New(), userID, "send", "refunded", "ETH", "ethereum",
			nil, nil, nil, now, now, "1", "3000000", "0xabc",
		))

	result, err := repo.ListByUser(context.Background(), entities.HistoryFilter{
		UserID: userID,
		Status: entities.UnifiedStatusDeclined,
		Page:   1,
		Limit:  20,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, entities.UnifiedStatusDeclined, result[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSuccessfulFilterMatchesDeliveredOrders(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBillPaymentRepository(db)
	userID := uuid.New()

	columns := []string{"id", "user_id", "bill_type", "amount", "recipient", "status", "provider_ref", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("status = ANY")).
		WithArgs(userID, pq.StringArray{"successful", "delivered", "success"}, 20).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			uuid.New(), userID, "airtime", "1000", "0803", "delivered", "REQ-2", time.Now(),
		))

	result, err := repo.ListByUser(context.Background(), entities.HistoryFilter{
		UserID: userID,
		Status: entities.UnifiedStatusSuccessful,
		Page:   1,
		Limit:  20,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, entities.UnifiedStatusSuccessful, result[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
