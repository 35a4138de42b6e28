package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider names recognized by the reconciler.
const (
	ProviderPalmPay  = "palmpay"
	ProviderReloadly = "reloadly"
	ProviderVTPass   = "vtpass"
	ProviderChain    = "chain"
)

// ProviderEvent is an inbound webhook payload stored verbatim before any
// parsing or signature check. Append-only; the processed flag is the only
// column that ever changes.
type ProviderEvent struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Provider    string          `json:"provider" db:"provider"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Headers     json.RawMessage `json:"headers" db:"headers"`
	SourceIP    string          `json:"source_ip" db:"source_ip"`
	Signature   string          `json:"signature" db:"signature"`
	ReceivedAt  time.Time       `json:"received_at" db:"received_at"`
	Processed   bool            `json:"processed" db:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	Error       *string         `json:"error,omitempty" db:"error"`
}

// PalmPayCallback is the fiat collection/disbursement notification shape.
type PalmPayCallback struct {
	OrderNo     string          `json:"orderNo"`
	OrderStatus int             `json:"orderStatus"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PayerMobile string          `json:"payerMobileNo"`
	CompletedAt string          `json:"completeTime"`
}

// PalmPay order statuses as delivered on the callback.
const (
	PalmPayStatusSuccess = 1
	PalmPayStatusFailed  = 2
)

// ReloadlyCallback is the gift-card order status notification shape.
type ReloadlyCallback struct {
	TransactionID string `json:"transactionId"`
	CustomID      string `json:"customIdentifier"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// VTPassCallback is the bill-payment status notification shape.
type VTPassCallback struct {
	RequestID          string `json:"requestId"`
	TransactionStatus  string `json:"transactionStatus"`
	ResponseDescription string `json:"responseDescription,omitempty"`
}

// ChainDepositEvent is the chain gateway notification for an inbound
// deposit or an outbound transfer confirmation.
type ChainDepositEvent struct {
	TxHash    string          `json:"txHash"`
	Direction string          `json:"direction"` // "in" or "out"
	Address   string          `json:"address"`
	Currency  string          `json:"currency"`
	Chain     string          `json:"chain"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"` // "confirmed" or "failed"
	Reference string          `json:"reference,omitempty"`
}
