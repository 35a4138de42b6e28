package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/terescrow/ledger-service/internal/domain/entities"
)

// ProviderEventRepository is the append-only store of raw webhook payloads.
// Insert happens on the request path before any validation; everything else
// is the deferred processor catching up.
type ProviderEventRepository struct {
	db *sqlx.DB
}

// NewProviderEventRepository creates a new provider event repository
func NewProviderEventRepository(db *sqlx.DB) *ProviderEventRepository {
	return &ProviderEventRepository{db: db}
}

// Insert persists a raw event. Never fails on payload content; the payload
// column is jsonb-compatible bytes stored as received.
func (r *ProviderEventRepository) Insert(ctx context.Context, event *entities.ProviderEvent) error {
	query := `
		INSERT INTO provider_events (
			id, provider, payload, headers, source_ip, signature,
			received_at, processed, processed_at, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, NULL, NULL)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Provider, []byte(event.Payload), []byte(event.Headers),
		event.SourceIP, event.Signature, event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert provider event: %w", err)
	}

	return nil
}

// ListUnprocessed returns the oldest unprocessed events for the worker pool.
func (r *ProviderEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]*entities.ProviderEvent, error) {
	query := `
		SELECT id, provider, payload, headers, source_ip, signature,
		       received_at, processed, processed_at, error
		FROM provider_events
		WHERE processed = false
		ORDER BY received_at
		LIMIT $1
	`

	var events []*entities.ProviderEvent
	err := r.db.SelectContext(ctx, &events, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}

	return events, nil
}

// MarkProcessed flags an event done, recording the application error if the
// event could not be applied. Either way the event leaves the work queue;
// unapplied events stay queryable by their error column.
func (r *ProviderEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, applyErr error) error {
	var errMsg *string
	if applyErr != nil {
		msg := applyErr.Error()
		errMsg = &msg
	}

	query := `
		UPDATE provider_events
		SET processed = true, processed_at = $2, error = $3
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, time.Now(), errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	return nil
}

// CountUnprocessed reports queue depth for health and metrics.
func (r *ProviderEventRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM provider_events WHERE processed = false`)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed events: %w", err)
	}
	return count, nil
}
