package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/terescrow/ledger-service/internal/domain/entities"
)

// BillPaymentRepository reads the bill-payment subsystem's rows for the
// unified history view and applies VTpass callback status transitions.
type BillPaymentRepository struct {
	db *sqlx.DB
}

// NewBillPaymentRepository creates a new bill payment repository
func NewBillPaymentRepository(db *sqlx.DB) *BillPaymentRepository {
	return &BillPaymentRepository{db: db}
}

// ListByUser returns bill payments matching the history filter, newest
// first, over-fetched for the aggregator's merge.
func (r *BillPaymentRepository) ListByUser(ctx context.Context, filter entities.HistoryFilter) ([]*entities.UnifiedTransaction, error) {
	query := `
		SELECT id, user_id, bill_type, amount, recipient, status, provider_ref, created_at
		FROM bill_payments
		WHERE user_id = :user_id
	`
	args := map[string]interface{}{
		"user_id": filter.UserID,
		"fetch":   filter.Page * filter.Limit,
	}

	if filter.Type != "" {
		query += " AND bill_type = :bill_type"
		args["bill_type"] = filter.Type
	}
	if filter.Status != "" {
		query += " AND status = ANY(:statuses)"
		args["statuses"] = pq.Array(rawExternalStatuses(filter.Status))
	}
	if filter.Search != "" {
		query += " AND (bill_type ILIKE :search OR recipient ILIKE :search OR provider_ref ILIKE :search)"
		args["search"] = "%" + filter.Search + "%"
	}
	if filter.StartDate != nil {
		query += " AND created_at >= :start_date"
		args["start_date"] = *filter.StartDate
	}
	if filter.EndDate != nil {
		query += " AND created_at <= :end_date"
		args["end_date"] = *filter.EndDate
	}
	query += " ORDER BY created_at DESC LIMIT :fetch"

	rows, err := sqlx.NamedQueryContext(ctx, r.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list bill payments: %w", err)
	}
	defer rows.Close()

	var result []*entities.UnifiedTransaction
	for rows.Next() {
		var bp entities.BillPayment
		if err := rows.StructScan(&bp); err != nil {
			return nil, fmt.Errorf("failed to scan bill payment row: %w", err)
		}
		result = append(result, unifyBillPayment(&bp))
	}

	return result, rows.Err()
}

// SumSuccessfulInWindow totals successful bill-payment volume in a window.
func (r *BillPaymentRepository) SumSuccessfulInWindow(ctx context.Context, userID uuid.UUID, from, to time.Time) (string, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM bill_payments
		WHERE user_id = $1 AND status = 'successful' AND created_at >= $2 AND created_at < $3
	`

	var total string
	err := r.db.GetContext(ctx, &total, query, userID, from, to)
	if err != nil {
		return "0", fmt.Errorf("failed to sum bill payments: %w", err)
	}

	return total, nil
}

// UpdateStatusByProviderRef applies a VTpass terminal status. Conditional on
// the row still being pending so redelivered callbacks are no-ops. Returns
// the affected row, nil when nothing transitioned.
func (r *BillPaymentRepository) UpdateStatusByProviderRef(ctx context.Context, providerRef, status string) (*entities.BillPayment, error) {
	query := `
		UPDATE bill_payments
		SET status = $2
		WHERE provider_ref = $1 AND status = 'pending'
		RETURNING id, user_id, bill_type, amount, recipient, status, provider_ref, created_at
	`

	var bp entities.BillPayment
	err := r.db.GetContext(ctx, &bp, query, providerRef, status)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update bill payment status: %w", err)
	}

	return &bp, nil
}

func unifyBillPayment(bp *entities.BillPayment) *entities.UnifiedTransaction {
	return &entities.UnifiedTransaction{
		ID:           bp.ID,
		Niche:        entities.NicheBillPayment,
		Type:         bp.BillType,
		Status:       mapExternalStatus(bp.Status),
		Currency:     entities.LocalCurrency,
		AmountNative: bp.Amount,
		AmountLocal:  bp.Amount,
		Counterparty: bp.Recipient,
		Reference:    bp.ProviderRef,
		CreatedAt:    bp.CreatedAt,
	}
}

// mapExternalStatus folds subsystem status strings into the unified
// vocabulary. Anything unrecognized reads as pending rather than lying
// about an outcome.
func mapExternalStatus(s string) entities.UnifiedStatus {
	switch s {
	case "successful", "delivered", "success":
		return entities.UnifiedStatusSuccessful
	case "failed", "declined", "refunded":
		return entities.UnifiedStatusDeclined
	default:
		return entities.UnifiedStatusPending
	}
}

// rawExternalStatuses inverts mapExternalStatus for SQL filtering. The
// subsystems store provider-flavored words ("delivered", "failed"), so a
// unified filter value has to match the whole raw set, not itself.
func rawExternalStatuses(s entities.UnifiedStatus) []string {
	switch s {
	case entities.UnifiedStatusSuccessful:
		return []string{"successful", "delivered", "success"}
	case entities.UnifiedStatusDeclined:
		return []string{"failed", "declined", "refunded"}
	default:
		return []string{"pending"}
	}
}
