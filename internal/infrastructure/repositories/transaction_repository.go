package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
)

// TransactionRepository persists transaction envelopes and their detail
// records. Terminal rows are immutable; the only permitted update is the
// conditional pending→terminal transition.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction envelope.
func (r *TransactionRepository) Create(ctx context.Context, q sqlx.ExtContext, tx *entities.Transaction) error {
	if err := tx.Validate(); err != nil {
		return domainerrors.Validation("transaction", err.Error())
	}

	query := `
		INSERT INTO transactions (
			id, user_id, kind, status, currency, chain,
			provider, provider_ref, failure_reason, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := q.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.Kind, tx.Status, tx.Currency, tx.Chain,
		tx.Provider, tx.ProviderRef, tx.FailureReason, tx.CreatedAt, tx.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// CreateDetail inserts the kind-specific detail record.
func (r *TransactionRepository) CreateDetail(ctx context.Context, q sqlx.ExtContext, detail *entities.TransactionDetail) error {
	if err := detail.Validate(); err != nil {
		return domainerrors.Validation("detail", err.Error())
	}

	query := `
		INSERT INTO transaction_details (
			id, transaction_id, kind, amount_native, amount_usd, amount_local,
			fee_native, fee_usd, usd_per_unit, local_per_usd,
			counterparty, pair_currency, pair_chain, pair_amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := q.ExecContext(ctx, query,
		detail.ID, detail.TransactionID, detail.Kind,
		detail.AmountNative, detail.AmountUSD, detail.AmountLocal,
		detail.FeeNative, detail.FeeUSD, detail.USDPerUnit, detail.LocalPerUSD,
		detail.Counterparty, detail.PairCurrency, detail.PairChain, detail.PairAmount,
		detail.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction detail: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by primary key.
func (r *TransactionRepository) GetByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*entities.Transaction, error) {
	query := `
		SELECT id, user_id, kind, status, currency, chain,
		       provider, provider_ref, failure_reason, created_at, completed_at
		FROM transactions
		WHERE id = $1
	`

	var tx entities.Transaction
	err := sqlx.GetContext(ctx, q, &tx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &tx, nil
}

// GetByProviderRef correlates a provider callback to its transaction.
func (r *TransactionRepository) GetByProviderRef(ctx context.Context, q sqlx.ExtContext, provider, ref string) (*entities.Transaction, error) {
	query := `
		SELECT id, user_id, kind, status, currency, chain,
		       provider, provider_ref, failure_reason, created_at, completed_at
		FROM transactions
		WHERE provider = $1 AND provider_ref = $2
	`

	var tx entities.Transaction
	err := sqlx.GetContext(ctx, q, &tx, query, provider, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction for %s ref %s: %w", provider, ref, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction by provider ref: %w", err)
	}

	return &tx, nil
}

// GetDetail retrieves the detail record for a transaction.
func (r *TransactionRepository) GetDetail(ctx context.Context, q sqlx.ExtContext, transactionID uuid.UUID) (*entities.TransactionDetail, error) {
	query := `
		SELECT id, transaction_id, kind, amount_native, amount_usd, amount_local,
		       fee_native, fee_usd, usd_per_unit, local_per_usd,
		       counterparty, pair_currency, pair_chain, pair_amount, created_at
		FROM transaction_details
		WHERE transaction_id = $1
	`

	var detail entities.TransactionDetail
	err := sqlx.GetContext(ctx, q, &detail, query, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("detail for transaction %s: %w", transactionID, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction detail: %w", err)
	}

	return &detail, nil
}

// MarkTerminal performs the single conditional pending→terminal transition.
// Returns false when the row was already terminal, which is how redelivered
// webhooks become no-ops regardless of processing order.
func (r *TransactionRepository) MarkTerminal(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, status entities.TransactionStatus, failureReason *string) (bool, error) {
	if !status.IsTerminal() {
		return false, domainerrors.Validation("status", fmt.Sprintf("%s is not a terminal status", status))
	}

	query := `
		UPDATE transactions
		SET status = $2, failure_reason = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`

	res, err := q.ExecContext(ctx, query, id, status, failureReason, time.Now(), entities.TransactionStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to transition transaction %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

// ListPendingOlderThan returns pending transactions with a provider
// reference that have gone stale, for the reconciliation status poll.
func (r *TransactionRepository) ListPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]*entities.Transaction, error) {
	query := `
		SELECT id, user_id, kind, status, currency, chain,
		       provider, provider_ref, failure_reason, created_at, completed_at
		FROM transactions
		WHERE status = $1 AND provider_ref IS NOT NULL AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`

	var txs []*entities.Transaction
	err := r.db.SelectContext(ctx, &txs, query, entities.TransactionStatusPending, time.Now().Add(-age), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending transactions: %w", err)
	}

	return txs, nil
}

// historyRow joins the envelope with its detail for list rendering.
type historyRow struct {
	entities.Transaction
	AmountNative sql.NullString `db:"amount_native"`
	AmountLocal  sql.NullString `db:"amount_local"`
	Counterparty sql.NullString `db:"counterparty"`
}

// ListByUser returns transactions matching the history filter, newest
// first, over-fetching page*limit rows so the aggregator can merge-sort
// against other sources.
func (r *TransactionRepository) ListByUser(ctx context.Context, filter entities.HistoryFilter) ([]*entities.UnifiedTransaction, error) {
	query := `
		SELECT t.id, t.user_id, t.kind, t.status, t.currency, t.chain,
		       t.provider, t.provider_ref, t.failure_reason, t.created_at, t.completed_at,
		       d.amount_native AS amount_native, d.amount_local AS amount_local,
		       d.counterparty AS counterparty
		FROM transactions t
		LEFT JOIN transaction_details d ON d.transaction_id = t.id
		WHERE t.user_id = :user_id
	`
	args := map[string]interface{}{
		"user_id": filter.UserID,
		"fetch":   filter.Page * filter.Limit,
	}

	if filter.Type != "" {
		query += " AND t.kind = :kind"
		args["kind"] = filter.Type
	}
	if filter.Status != "" {
		query += " AND t.status = ANY(:statuses)"
		args["statuses"] = pq.Array(rawTransactionStatuses(filter.Status))
	}
	if filter.Search != "" {
		query += " AND (t.currency ILIKE :search OR t.provider_ref ILIKE :search OR d.counterparty ILIKE :search)"
		args["search"] = "%" + filter.Search + "%"
	}
	if filter.StartDate != nil {
		query += " AND t.created_at >= :start_date"
		args["start_date"] = *filter.StartDate
	}
	if filter.EndDate != nil {
		query += " AND t.created_at <= :end_date"
		args["end_date"] = *filter.EndDate
	}
	query += " ORDER BY t.created_at DESC LIMIT :fetch"

	rows, err := sqlx.NamedQueryContext(ctx, r.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []*entities.UnifiedTransaction
	for rows.Next() {
		var row historyRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		result = append(result, unifyTransaction(&row))
	}

	return result, rows.Err()
}

// SumSuccessfulInWindow totals successful local-currency volume in a time
// window, for period-over-period statistics.
func (r *TransactionRepository) SumSuccessfulInWindow(ctx context.Context, userID uuid.UUID, from, to time.Time) (string, error) {
	query := `
		SELECT COALESCE(SUM(d.amount_local), 0)
		FROM transactions t
		JOIN transaction_details d ON d.transaction_id = t.id
		WHERE t.user_id = $1 AND t.status = $2 AND t.created_at >= $3 AND t.created_at < $4
	`

	var total string
	err := r.db.GetContext(ctx, &total, query, userID, entities.TransactionStatusSuccessful, from, to)
	if err != nil {
		return "0", fmt.Errorf("failed to sum transactions: %w", err)
	}

	return total, nil
}

func unifyTransaction(row *historyRow) *entities.UnifiedTransaction {
	u := &entities.UnifiedTransaction{
		ID:        row.ID,
		Niche:     entities.NicheCrypto,
		Type:      string(row.Kind),
		Status:    mapTransactionStatusToUnified(row.Status),
		Currency:  row.Currency,
		CreatedAt: row.CreatedAt,
	}
	if row.AmountNative.Valid {
		u.AmountNative, _ = parseDec(row.AmountNative.String)
	}
	if row.AmountLocal.Valid {
		u.AmountLocal, _ = parseDec(row.AmountLocal.String)
	}
	if row.Counterparty.Valid {
		u.Counterparty = row.Counterparty.String
	}
	if row.ProviderRef != nil {
		u.Reference = *row.ProviderRef
	}
	return u
}

func mapTransactionStatusToUnified(s entities.TransactionStatus) entities.UnifiedStatus {
	switch s {
	case entities.TransactionStatusSuccessful:
		return entities.UnifiedStatusSuccessful
	case entities.TransactionStatusFailed, entities.TransactionStatusRefunded:
		return entities.UnifiedStatusDeclined
	default:
		return entities.UnifiedStatusPending
	}
}

// rawTransactionStatuses inverts mapTransactionStatusToUnified for SQL
// filtering: every stored status that folds into the unified one. Declined
// covers both failed and refunded rows.
func rawTransactionStatuses(s entities.UnifiedStatus) []string {
	switch s {
	case entities.UnifiedStatusSuccessful:
		return []string{string(entities.TransactionStatusSuccessful)}
	case entities.UnifiedStatusDeclined:
		return []string{string(entities.TransactionStatusFailed), string(entities.TransactionStatusRefunded)}
	default:
		return []string{string(entities.TransactionStatusPending)}
	}
}
