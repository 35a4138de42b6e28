package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind identifies the ledger operation.
type TransactionKind string

const (
	TransactionKindBuy     TransactionKind = "buy"
	TransactionKindSell    TransactionKind = "sell"
	TransactionKindSwap    TransactionKind = "swap"
	TransactionKindSend    TransactionKind = "send"
	TransactionKindReceive TransactionKind = "receive"
)

// Validate checks if the transaction kind is valid.
func (k TransactionKind) Validate() error {
	switch k {
	case TransactionKindBuy, TransactionKindSell, TransactionKindSwap,
		TransactionKindSend, TransactionKindReceive:
		return nil
	default:
		return fmt.Errorf("invalid transaction kind: %s", k)
	}
}

// TransactionStatus is the envelope status. Only pending→terminal
// transitions are ever persisted; terminal rows are immutable.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusSuccessful TransactionStatus = "successful"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

// IsTerminal reports whether the status permits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccessful || s == TransactionStatusFailed || s == TransactionStatusRefunded
}

// Validate checks if the status is valid.
func (s TransactionStatus) Validate() error {
	switch s {
	case TransactionStatusPending, TransactionStatusSuccessful,
		TransactionStatusFailed, TransactionStatusRefunded:
		return nil
	default:
		return fmt.Errorf("invalid transaction status: %s", s)
	}
}

// Transaction is the immutable envelope for any ledger-affecting operation.
// ProviderRef correlates asynchronous provider webhooks back to this row.
type Transaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	UserID        uuid.UUID         `json:"user_id" db:"user_id"`
	Kind          TransactionKind   `json:"kind" db:"kind"`
	Status        TransactionStatus `json:"status" db:"status"`
	Currency      string            `json:"currency" db:"currency"`
	Chain         string            `json:"chain" db:"chain"`
	Provider      *string           `json:"provider,omitempty" db:"provider"`
	ProviderRef   *string           `json:"provider_ref,omitempty" db:"provider_ref"`
	FailureReason *string           `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Validate checks the envelope before it is written.
func (t *Transaction) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("transaction ID is required")
	}
	if t.UserID == uuid.Nil {
		return fmt.Errorf("transaction user ID is required")
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if t.Currency == "" {
		return fmt.Errorf("transaction currency is required")
	}
	return nil
}

// TransactionDetail is the kind-specific record linked 1:1 to a Transaction,
// created at Execute time and immutable thereafter. Amounts are carried in
// all three denominations so history rendering never needs a rate lookup.
type TransactionDetail struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	TransactionID uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	Kind          TransactionKind `json:"kind" db:"kind"`
	AmountNative  decimal.Decimal `json:"amount_native" db:"amount_native"`
	AmountUSD     decimal.Decimal `json:"amount_usd" db:"amount_usd"`
	AmountLocal   decimal.Decimal `json:"amount_local" db:"amount_local"`
	FeeNative     decimal.Decimal `json:"fee_native" db:"fee_native"`
	FeeUSD        decimal.Decimal `json:"fee_usd" db:"fee_usd"`
	USDPerUnit    decimal.Decimal `json:"rate_usd_to_crypto" db:"usd_per_unit"`
	LocalPerUSD   decimal.Decimal `json:"rate_local_to_usd" db:"local_per_usd"`
	Counterparty  *string         `json:"counterparty,omitempty" db:"counterparty"`
	PairCurrency  *string         `json:"pair_currency,omitempty" db:"pair_currency"`
	PairChain     *string         `json:"pair_chain,omitempty" db:"pair_chain"`
	PairAmount    *decimal.Decimal `json:"pair_amount,omitempty" db:"pair_amount"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Validate checks the kind-specific constraints of the detail record.
func (d *TransactionDetail) Validate() error {
	if d.TransactionID == uuid.Nil {
		return fmt.Errorf("detail transaction ID is required")
	}
	if err := d.Kind.Validate(); err != nil {
		return err
	}
	if d.AmountNative.IsNegative() || d.AmountNative.IsZero() {
		return fmt.Errorf("detail amount must be positive")
	}
	switch d.Kind {
	case TransactionKindSwap:
		if d.PairCurrency == nil || d.PairAmount == nil {
			return fmt.Errorf("swap detail requires pair currency and amount")
		}
	case TransactionKindSend, TransactionKindReceive:
		if d.Counterparty == nil || *d.Counterparty == "" {
			return fmt.Errorf("%s detail requires a counterparty address", d.Kind)
		}
	}
	return nil
}
