package rates

import (
	"github.com/shopspring/decimal"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
)

// Display precision per currency class. Intermediate math is never rounded;
// only final outputs pass through these.
const (
	cryptoPrecision = 8
	fiatPrecision   = 2
)

var oneUSD = decimal.NewFromInt(1)

// Converter performs deterministic conversions between a crypto asset's
// native unit, USD, and the local currency using the two price points of a
// RateSnapshot. Pure functions, safe for concurrent use.
type Converter struct{}

// NewConverter creates a converter.
func NewConverter() *Converter {
	return &Converter{}
}

func validSnapshot(rate entities.RateSnapshot) error {
	if !rate.USDPerUnit.IsPositive() || !rate.LocalPerUSD.IsPositive() {
		return domainerrors.RateUnavailable(rate.Currency)
	}
	return nil
}

// NativeToUSD converts an amount in the asset's native unit to USD.
// Unrounded; callers round when rendering.
func (c *Converter) NativeToUSD(amount decimal.Decimal, rate entities.RateSnapshot) (decimal.Decimal, error) {
	if err := validSnapshot(rate); err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate.USDPerUnit), nil
}

// USDToNative converts a USD amount to the asset's native unit.
func (c *Converter) USDToNative(amountUSD decimal.Decimal, rate entities.RateSnapshot) (decimal.Decimal, error) {
	if err := validSnapshot(rate); err != nil {
		return decimal.Zero, err
	}
	return amountUSD.Div(rate.USDPerUnit), nil
}

// USDToLocal converts a USD amount to local currency.
func (c *Converter) USDToLocal(amountUSD decimal.Decimal, rate entities.RateSnapshot) (decimal.Decimal, error) {
	if err := validSnapshot(rate); err != nil {
		return decimal.Zero, err
	}
	return amountUSD.Mul(rate.LocalPerUSD), nil
}

// LocalToUSD converts a local-currency amount to USD.
func (c *Converter) LocalToUSD(amountLocal decimal.Decimal, rate entities.RateSnapshot) (decimal.Decimal, error) {
	if err := validSnapshot(rate); err != nil {
		return decimal.Zero, err
	}
	return amountLocal.Div(rate.LocalPerUSD), nil
}

// NativeToLocal chains native→USD→local without intermediate rounding.
func (c *Converter) NativeToLocal(amount decimal.Decimal, rate entities.RateSnapshot) (decimal.Decimal, error) {
	usd, err := c.NativeToUSD(amount, rate)
	if err != nil {
		return decimal.Zero, err
	}
	return c.USDToLocal(usd, rate)
}

// LocalToNative chains local→USD→native without intermediate rounding.
func (c *Converter) LocalToNative(amountLocal decimal.Decimal, rate entities.RateSnapshot) (decimal.Decimal, error) {
	usd, err := c.LocalToUSD(amountLocal, rate)
	if err != nil {
		return decimal.Zero, err
	}
	return c.USDToNative(usd, rate)
}

// RoundNative rounds a final native amount to crypto display precision.
func RoundNative(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(cryptoPrecision)
}

// RoundFiat rounds a final USD or local amount to fiat display precision.
func RoundFiat(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(fiatPrecision)
}
