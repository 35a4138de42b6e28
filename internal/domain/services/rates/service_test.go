package rates

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/pkg/logger"
)

type fakePriceStore struct {
	prices map[string]*entities.AssetPrice
	fiat   map[string]*entities.FiatRate
}

func (f *fakePriceStore) GetPrice(_ context.Context, currency string) (*entities.AssetPrice, error) {
	p, ok := f.prices[currency]
	if !ok {
		return nil, domainerrors.RateUnavailable(currency)
	}
	return p, nil
}

func (f *fakePriceStore) GetFiatRate(_ context.Context, currency string) (*entities.FiatRate, error) {
	r, ok := f.fiat[currency]
	if !ok {
		return nil, domainerrors.RateUnavailable(currency)
	}
	return r, nil
}

func newRateService(store *fakePriceStore) *Service {
	return NewService(store, nil, &config.LedgerConfig{
		PriceCacheTTL: 30,
		PriceMaxAge:   900,
	}, logger.NewNop())
}

func TestSnapshotCombinesPricePoints(t *testing.T) {
	store := &fakePriceStore{
		prices: map[string]*entities.AssetPrice{
			"ETH": {Currency: "ETH", USDPrice: decimal.NewFromInt(2000), UpdatedAt: time.Now()},
		},
		fiat: map[string]*entities.FiatRate{
			"NGN": {Currency: "NGN", USDRate: decimal.NewFromInt(1500), UpdatedAt: time.Now()},
		},
	}

	snap, err := newRateService(store).Snapshot(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, snap.USDPerUnit.Equal(decimal.NewFromInt(2000)))
	assert.True(t, snap.LocalPerUSD.Equal(decimal.NewFromInt(1500)))
}

func TestSnapshotUSDShortCircuits(t *testing.T) {
	store := &fakePriceStore{
		prices: map[string]*entities.AssetPrice{},
		fiat: map[string]*entities.FiatRate{
			"NGN": {Currency: "NGN", USDRate: decimal.NewFromInt(1500), UpdatedAt: time.Now()},
		},
	}

	snap, err := newRateService(store).Snapshot(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, snap.USDPerUnit.Equal(decimal.NewFromInt(1)))
}

func TestSnapshotRejectsStalePrice(t *testing.T) {
	store := &fakePriceStore{
		prices: map[string]*entities.AssetPrice{
			"ETH": {Currency: "ETH", USDPrice: decimal.NewFromInt(2000), UpdatedAt: time.Now().Add(-2 * time.Hour)},
		},
		fiat: map[string]*entities.FiatRate{
			"NGN": {Currency: "NGN", USDRate: decimal.NewFromInt(1500), UpdatedAt: time.Now()},
		},
	}

	_, err := newRateService(store).Snapshot(context.Background(), "ETH")
	assert.True(t, domainerrors.IsRateUnavailable(err))
}

func TestSnapshotRejectsMissingFiatRate(t *testing.T) {
	store := &fakePriceStore{
		prices: map[string]*entities.AssetPrice{
			"ETH": {Currency: "ETH", USDPrice: decimal.NewFromInt(2000), UpdatedAt: time.Now()},
		},
		fiat: map[string]*entities.FiatRate{},
	}

	_, err := newRateService(store).Snapshot(context.Background(), "ETH")
	assert.True(t, domainerrors.IsRateUnavailable(err))
}
