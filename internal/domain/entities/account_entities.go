package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LocalCurrency is the fiat wallet currency. The single fiat account per
// user is modeled as an Account with Currency=NGN and an empty chain.
const LocalCurrency = "NGN"

// Account is a balance holder: the user's fiat wallet or one virtual
// account per (user, currency, chain) pair. Balances are mutated only by
// the ledger service inside a database transaction.
type Account struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	Currency       string          `json:"currency" db:"currency"`
	Chain          string          `json:"chain" db:"chain"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	DepositAddress *string         `json:"deposit_address,omitempty" db:"deposit_address"`
	Frozen         bool            `json:"frozen" db:"frozen"`
	Active         bool            `json:"active" db:"active"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// IsFiat reports whether this is the user's local-currency wallet.
func (a *Account) IsFiat() bool {
	return a.Currency == LocalCurrency && a.Chain == ""
}

// CanTransact reports whether the account accepts debits and credits.
func (a *Account) CanTransact() bool {
	return a.Active && !a.Frozen
}

// Validate checks structural invariants. A negative balance here means the
// conditional-update guard was bypassed and must be treated as corruption.
func (a *Account) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("account ID is required")
	}
	if a.UserID == uuid.Nil {
		return fmt.Errorf("account user ID is required")
	}
	if a.Currency == "" {
		return fmt.Errorf("account currency is required")
	}
	if a.Balance.IsNegative() {
		return fmt.Errorf("account balance cannot be negative")
	}
	return nil
}

// AccountRef identifies an account by its unique business key.
type AccountRef struct {
	UserID   uuid.UUID
	Currency string
	Chain    string
}

// BalanceSnapshot is the read model returned by the balances endpoint.
type BalanceSnapshot struct {
	Currency string          `json:"currency"`
	Chain    string          `json:"chain,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
	Frozen   bool            `json:"frozen"`
}
