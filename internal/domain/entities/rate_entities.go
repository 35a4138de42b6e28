package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetPrice is the latest known price of a crypto asset in USD. Refreshed
// by an external rate-feed job; read-only to the orchestrator.
type AssetPrice struct {
	Currency  string          `json:"currency" db:"currency"`
	USDPrice  decimal.Decimal `json:"usd_price" db:"usd_price"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// FiatRate is the USD to local-currency conversion point. Admin-configurable
// and time-varying.
type FiatRate struct {
	Currency  string          `json:"currency" db:"currency"`
	USDRate   decimal.Decimal `json:"usd_rate" db:"usd_rate"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// RateSnapshot captures both price points used for a conversion so a quote
// response can echo exactly what it was computed from.
type RateSnapshot struct {
	Currency    string          `json:"currency"`
	USDPerUnit  decimal.Decimal `json:"rate_usd_to_crypto"`
	LocalPerUSD decimal.Decimal `json:"rate_local_to_usd"`
	RetrievedAt time.Time       `json:"retrieved_at"`
}
