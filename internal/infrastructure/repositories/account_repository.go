package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
)

// AccountRepository owns row access to the accounts table. Balance-mutating
// methods accept an sqlx.ExtContext so the ledger service can run them on
// the pool or inside an open transaction; the conditional-update guards are
// what make concurrent executes safe without in-process locks.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// DB exposes the pool for read-only callers.
func (r *AccountRepository) DB() *sqlx.DB {
	return r.db
}

// Get retrieves an account by its business key.
func (r *AccountRepository) Get(ctx context.Context, q sqlx.ExtContext, ref entities.AccountRef) (*entities.Account, error) {
	query := `
		SELECT id, user_id, currency, chain, balance, deposit_address, frozen, active, created_at, updated_at
		FROM accounts
		WHERE user_id = $1 AND currency = $2 AND chain = $3
	`

	var account entities.Account
	err := sqlx.GetContext(ctx, q, &account, query, ref.UserID, ref.Currency, ref.Chain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s/%s: %w", ref.Currency, ref.Chain, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// GetByID retrieves an account by primary key.
func (r *AccountRepository) GetByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*entities.Account, error) {
	query := `
		SELECT id, user_id, currency, chain, balance, deposit_address, frozen, active, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var account entities.Account
	err := sqlx.GetContext(ctx, q, &account, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// Ensure gets or creates the account for the given key. The upsert keys on
// the (user_id, currency, chain) unique constraint so two concurrent
// creates converge on one row instead of racing.
func (r *AccountRepository) Ensure(ctx context.Context, q sqlx.ExtContext, ref entities.AccountRef) (*entities.Account, error) {
	query := `
		INSERT INTO accounts (id, user_id, currency, chain, balance, frozen, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, false, true, $5, $5)
		ON CONFLICT (user_id, currency, chain)
		DO UPDATE SET updated_at = accounts.updated_at
		RETURNING id, user_id, currency, chain, balance, deposit_address, frozen, active, created_at, updated_at
	`

	var account entities.Account
	err := sqlx.GetContext(ctx, q, &account, query, uuid.New(), ref.UserID, ref.Currency, ref.Chain, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account %s/%s: %w", ref.Currency, ref.Chain, err)
	}

	return &account, nil
}

// GetByDepositAddress resolves an inbound chain deposit to its account.
func (r *AccountRepository) GetByDepositAddress(ctx context.Context, address, currency, chain string) (*entities.Account, error) {
	query := `
		SELECT id, user_id, currency, chain, balance, deposit_address, frozen, active, created_at, updated_at
		FROM accounts
		WHERE deposit_address = $1 AND currency = $2 AND chain = $3
	`

	var account entities.Account
	err := r.db.GetContext(ctx, &account, query, address, currency, chain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account for deposit address %s: %w", address, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account by deposit address: %w", err)
	}

	return &account, nil
}

// SetDepositAddress binds a chain deposit address to an account.
func (r *AccountRepository) SetDepositAddress(ctx context.Context, id uuid.UUID, address string) error {
	query := `
		UPDATE accounts
		SET deposit_address = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, address); err != nil {
		return fmt.Errorf("failed to set deposit address: %w", err)
	}
	return nil
}

// DebitIfSufficient atomically decrements the balance when it covers the
// amount and the account can transact. Returns the new balance; an
// InsufficientBalance or AccountFrozen domain error otherwise.
func (r *AccountRepository) DebitIfSufficient(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() || amount.IsZero() {
		return decimal.Zero, domainerrors.Validation("amount", "debit amount must be positive")
	}

	query := `
		UPDATE accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE id = $1 AND balance >= $2 AND frozen = false AND active = true
		RETURNING balance
	`

	var newBalance decimal.Decimal
	err := sqlx.GetContext(ctx, q, &newBalance, query, id, amount)
	if err == nil {
		return newBalance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("failed to debit account: %w", err)
	}

	// The guard rejected the update; re-read to report why.
	account, readErr := r.GetByID(ctx, q, id)
	if readErr != nil {
		return decimal.Zero, readErr
	}
	if !account.CanTransact() {
		return decimal.Zero, domainerrors.New(domainerrors.ErrAccountFrozen, "ACCOUNT_FROZEN", "account cannot transact")
	}
	return decimal.Zero, domainerrors.InsufficientBalance(account.Currency, account.Balance.String(), amount.String())
}

// Credit increments the balance unconditionally for a valid account.
func (r *AccountRepository) Credit(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() || amount.IsZero() {
		return decimal.Zero, domainerrors.Validation("amount", "credit amount must be positive")
	}

	query := `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND active = true
		RETURNING balance
	`

	var newBalance decimal.Decimal
	err := sqlx.GetContext(ctx, q, &newBalance, query, id, amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("account %s: %w", id, domainerrors.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to credit account: %w", err)
	}

	return newBalance, nil
}

// ListByUser returns all accounts for a user, fiat wallet first.
func (r *AccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Account, error) {
	query := `
		SELECT id, user_id, currency, chain, balance, deposit_address, frozen, active, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY (currency = $2) DESC, currency, chain
	`

	var accounts []*entities.Account
	err := r.db.SelectContext(ctx, &accounts, query, userID, entities.LocalCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}
