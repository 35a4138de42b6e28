package rates

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
)

func snapshot(usdPerUnit, localPerUSD string) entities.RateSnapshot {
	return entities.RateSnapshot{
		Currency:    "USDT",
		USDPerUnit:  decimal.RequireFromString(usdPerUnit),
		LocalPerUSD: decimal.RequireFromString(localPerUSD),
		RetrievedAt: time.Now(),
	}
}

func TestConverterNativeToLocal(t *testing.T) {
	conv := NewConverter()
	rate := snapshot("1", "1500")

	local, err := conv.NativeToLocal(decimal.NewFromInt(10), rate)
	require.NoError(t, err)
	assert.True(t, local.Equal(decimal.NewFromInt(15000)), "got %s", local)
}

func TestConverterRoundTrip(t *testing.T) {
	conv := NewConverter()
	rate := snapshot("2013.37", "1542.75")

	amount := decimal.RequireFromString("0.73521")
	local, err := conv.NativeToLocal(amount, rate)
	require.NoError(t, err)

	back, err := conv.LocalToNative(local, rate)
	require.NoError(t, err)

	diff := back.Sub(amount).Abs()
	assert.True(t, diff.LessThan(decimal.New(1, -8)),
		"round trip drifted by %s", diff)
}

func TestConverterRejectsNonPositiveRates(t *testing.T) {
	conv := NewConverter()
	amount := decimal.NewFromInt(1)

	cases := map[string]entities.RateSnapshot{
		"zero usd price":  snapshot("0", "1500"),
		"zero local rate": snapshot("2000", "0"),
		"negative price":  snapshot("-1", "1500"),
	}

	for name, rate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := conv.NativeToUSD(amount, rate)
			assert.True(t, domainerrors.IsRateUnavailable(err))

			_, err = conv.USDToLocal(amount, rate)
			assert.True(t, domainerrors.IsRateUnavailable(err))
		})
	}
}

func TestConverterNoIntermediateRounding(t *testing.T) {
	conv := NewConverter()
	// A price chosen so rounding the USD leg first would visibly shift the
	// local result.
	rate := snapshot("0.333333333333", "1500")

	local, err := conv.NativeToLocal(decimal.NewFromInt(3), rate)
	require.NoError(t, err)

	expected := decimal.RequireFromString("3").
		Mul(decimal.RequireFromString("0.333333333333")).
		Mul(decimal.NewFromInt(1500))
	assert.True(t, local.Equal(expected), "got %s want %s", local, expected)
}

func TestRounding(t *testing.T) {
	assert.Equal(t, "0.12345679", RoundNative(decimal.RequireFromString("0.123456789")).String())
	assert.Equal(t, "15000.56", RoundFiat(decimal.RequireFromString("15000.555")).String())
}
