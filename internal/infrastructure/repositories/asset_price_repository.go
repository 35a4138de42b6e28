package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
)

// AssetPriceRepository reads the two price points the converter needs.
// Rows are written by the external rate-feed job and by admin updates.
type AssetPriceRepository struct {
	db *sqlx.DB
}

// NewAssetPriceRepository creates a new asset price repository
func NewAssetPriceRepository(db *sqlx.DB) *AssetPriceRepository {
	return &AssetPriceRepository{db: db}
}

// GetPrice retrieves the latest USD price for a crypto asset.
func (r *AssetPriceRepository) GetPrice(ctx context.Context, currency string) (*entities.AssetPrice, error) {
	query := `
		SELECT currency, usd_price, updated_at
		FROM asset_prices
		WHERE currency = $1
	`

	var price entities.AssetPrice
	err := r.db.GetContext(ctx, &price, query, currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.RateUnavailable(currency)
		}
		return nil, fmt.Errorf("failed to get asset price: %w", err)
	}

	return &price, nil
}

// GetFiatRate retrieves the USD→local conversion point.
func (r *AssetPriceRepository) GetFiatRate(ctx context.Context, currency string) (*entities.FiatRate, error) {
	query := `
		SELECT currency, usd_rate, updated_at
		FROM fiat_rates
		WHERE currency = $1
	`

	var rate entities.FiatRate
	err := r.db.GetContext(ctx, &rate, query, currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.RateUnavailable(currency)
		}
		return nil, fmt.Errorf("failed to get fiat rate: %w", err)
	}

	return &rate, nil
}

// UpsertPrice writes an asset price point. Used by the admin surface and
// by tests; the production feed writes through the same statement.
func (r *AssetPriceRepository) UpsertPrice(ctx context.Context, currency string, usdPrice decimal.Decimal) error {
	query := `
		INSERT INTO asset_prices (currency, usd_price, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (currency) DO UPDATE SET usd_price = $2, updated_at = $3
	`

	_, err := r.db.ExecContext(ctx, query, currency, usdPrice, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert asset price: %w", err)
	}

	return nil
}

// UpsertFiatRate writes the USD→local rate.
func (r *AssetPriceRepository) UpsertFiatRate(ctx context.Context, currency string, usdRate decimal.Decimal) error {
	query := `
		INSERT INTO fiat_rates (currency, usd_rate, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (currency) DO UPDATE SET usd_rate = $2, updated_at = $3
	`

	_, err := r.db.ExecContext(ctx, query, currency, usdRate, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert fiat rate: %w", err)
	}

	return nil
}
