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

// GiftCardRepository reads gift-card orders for the unified history view and
// applies Reloadly callback status transitions.
type GiftCardRepository struct {
	db *sqlx.DB
}

// NewGiftCardRepository creates a new gift card repository
func NewGiftCardRepository(db *sqlx.DB) *GiftCardRepository {
	return &GiftCardRepository{db: db}
}

// ListByUser returns gift-card orders matching the history filter, newest
// first, over-fetched for the aggregator's merge.
func (r *GiftCardRepository) ListByUser(ctx context.Context, filter entities.HistoryFilter) ([]*entities.UnifiedTransaction, error) {
	query := `
		SELECT id, user_id, product_name, amount, currency, status, provider_ref, created_at
		FROM gift_card_orders
		WHERE user_id = :user_id
	`
	args := map[string]interface{}{
		"user_id": filter.UserID,
		"fetch":   filter.Page * filter.Limit,
	}

	if filter.Status != "" {
		query += " AND status = ANY(:statuses)"
		args["statuses"] = pq.Array(rawExternalStatuses(filter.Status))
	}
	if filter.Search != "" {
		query += " AND (product_name ILIKE :search OR provider_ref ILIKE :search)"
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
		return nil, fmt.Errorf("failed to list gift card orders: %w", err)
	}
	defer rows.Close()

	var result []*entities.UnifiedTransaction
	for rows.Next() {
		var order entities.GiftCardOrder
		if err := rows.StructScan(&order); err != nil {
			return nil, fmt.Errorf("failed to scan gift card row: %w", err)
		}
		result = append(result, unifyGiftCard(&order))
	}

	return result, rows.Err()
}

// SumSuccessfulInWindow totals successful gift-card volume in a window.
func (r *GiftCardRepository) SumSuccessfulInWindow(ctx context.Context, userID uuid.UUID, from, to time.Time) (string, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM gift_card_orders
		WHERE user_id = $1 AND status = 'successful' AND created_at >= $2 AND created_at < $3
	`

	var total string
	err := r.db.GetContext(ctx, &total, query, userID, from, to)
	if err != nil {
		return "0", fmt.Errorf("failed to sum gift card orders: %w", err)
	}

	return total, nil
}

// UpdateStatusByProviderRef applies a Reloadly terminal status, conditional
// on the order still being pending. Returns nil when nothing transitioned.
func (r *GiftCardRepository) UpdateStatusByProviderRef(ctx context.Context, providerRef, status string) (*entities.GiftCardOrder, error) {
	query := `
		UPDATE gift_card_orders
		SET status = $2
		WHERE provider_ref = $1 AND status = 'pending'
		RETURNING id, user_id, product_name, amount, currency, status, provider_ref, created_at
	`

	var order entities.GiftCardOrder
	err := r.db.GetContext(ctx, &order, query, providerRef, status)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update gift card status: %w", err)
	}

	return &order, nil
}

func unifyGiftCard(order *entities.GiftCardOrder) *entities.UnifiedTransaction {
	return &entities.UnifiedTransaction{
		ID:           order.ID,
		Niche:        entities.NicheGiftCard,
		Type:         "giftcard",
		Status:       mapExternalStatus(order.Status),
		Currency:     order.Currency,
		AmountNative: order.Amount,
		AmountLocal:  order.Amount,
		Counterparty: order.ProductName,
		Reference:    order.ProviderRef,
		CreatedAt:    order.CreatedAt,
	}
}
