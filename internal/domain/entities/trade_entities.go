package entities

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeRequest is the shared request body of quote, preview and execute for
// all four operation kinds. PIN is required only at execute time.
type TradeRequest struct {
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Currency   string          `json:"currency" binding:"required"`
	Chain      string          `json:"chain"`
	ToCurrency string          `json:"toCurrency,omitempty"`
	ToChain    string          `json:"toChain,omitempty"`
	ToAddress  string          `json:"toAddress,omitempty"`
	Pin        string          `json:"pin,omitempty"`
}

// Quote is the side-effect-free projection of an operation.
type Quote struct {
	Kind         TransactionKind `json:"kind"`
	AmountNative decimal.Decimal `json:"amountNative"`
	AmountUSD    decimal.Decimal `json:"amountUsd"`
	AmountLocal  decimal.Decimal `json:"amountLocal"`
	OutputAmount decimal.Decimal `json:"outputAmount"`
	FeeNative    decimal.Decimal `json:"feeNative"`
	FeeUSD       decimal.Decimal `json:"feeUsd"`
	Rate         RateSnapshot    `json:"rate"`
	PairRate     *RateSnapshot   `json:"pairRate,omitempty"`
}

// Preview extends a quote with projected balances. Still no mutation.
type Preview struct {
	Quote
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	CanProceed    bool            `json:"canProceed"`
	Reason        string          `json:"reason,omitempty"`
}

// ExecuteResult is returned once an operation commits (or is recorded
// pending on an ambiguous provider outcome).
type ExecuteResult struct {
	TransactionID uuid.UUID         `json:"transactionId"`
	Status        TransactionStatus `json:"status"`
	Quote         Quote             `json:"quote"`
	BalanceBefore decimal.Decimal   `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal   `json:"balanceAfter"`
}
