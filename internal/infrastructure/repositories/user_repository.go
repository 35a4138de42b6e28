package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
)

// UserRepository fetches the identity rows the orchestrator needs for PIN
// verification.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	query := `
		SELECT id, email, pin_hash, active, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user entities.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", id, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// SetPinHash stores a new transaction PIN hash.
func (r *UserRepository) SetPinHash(ctx context.Context, id uuid.UUID, pinHash string) error {
	query := `
		UPDATE users
		SET pin_hash = $2, updated_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, pinHash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set pin hash: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", id, domainerrors.ErrNotFound)
	}

	return nil
}
