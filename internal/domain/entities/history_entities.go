package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Niche identifies which subsystem a history row came from.
type Niche string

const (
	NicheCrypto      Niche = "crypto"
	NicheGiftCard    Niche = "giftcard"
	NicheBillPayment Niche = "billpayment"
)

// Validate checks if the niche is valid.
func (n Niche) Validate() error {
	switch n {
	case NicheCrypto, NicheGiftCard, NicheBillPayment:
		return nil
	default:
		return fmt.Errorf("invalid niche: %s", n)
	}
}

// UnifiedStatus is the shared status vocabulary of the history view.
type UnifiedStatus string

const (
	UnifiedStatusPending    UnifiedStatus = "pending"
	UnifiedStatusSuccessful UnifiedStatus = "successful"
	UnifiedStatusDeclined   UnifiedStatus = "declined"
)

// UnifiedTransaction is the common shape every subsystem's records map into.
type UnifiedTransaction struct {
	ID           uuid.UUID       `json:"id"`
	Niche        Niche           `json:"niche"`
	Type         string          `json:"type"`
	Status       UnifiedStatus   `json:"status"`
	Currency     string          `json:"currency"`
	AmountNative decimal.Decimal `json:"amount_native"`
	AmountLocal  decimal.Decimal `json:"amount_local"`
	Counterparty string          `json:"counterparty,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HistoryFilter is the query surface of the unified list endpoint.
type HistoryFilter struct {
	UserID    uuid.UUID
	Niche     Niche
	Type      string
	Status    UnifiedStatus
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// Normalize clamps pagination to sane bounds.
func (f *HistoryFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// Pagination is the list-response metadata.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Count   int  `json:"count"`
	HasMore bool `json:"has_more"`
}

// NicheStats is the period-over-period summary for one niche.
type NicheStats struct {
	Niche         Niche           `json:"niche"`
	CurrentTotal  decimal.Decimal `json:"current_total"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// BillPayment is the bill-payment subsystem's record. Read-only input to the
// aggregator; this core never mutates it outside reconciliation status
// updates driven by VTpass callbacks.
type BillPayment struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	BillType    string          `json:"bill_type" db:"bill_type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Recipient   string          `json:"recipient" db:"recipient"`
	Status      string          `json:"status" db:"status"`
	ProviderRef string          `json:"provider_ref" db:"provider_ref"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// GiftCardOrder is the gift-card subsystem's record, read the same way.
type GiftCardOrder struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Currency    string          `json:"currency" db:"currency"`
	Status      string          `json:"status" db:"status"`
	ProviderRef string          `json:"provider_ref" db:"provider_ref"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
