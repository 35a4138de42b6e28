package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/infrastructure/cache"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// PriceStore is the persistence surface the rate service reads.
type PriceStore interface {
	GetPrice(ctx context.Context, currency string) (*entities.AssetPrice, error)
	GetFiatRate(ctx context.Context, currency string) (*entities.FiatRate, error)
}

// Service resolves RateSnapshots: Redis first, database on miss, with a
// staleness ceiling so a dead rate feed degrades to RateUnavailable instead
// of quoting yesterday's prices.
type Service struct {
	store    PriceStore
	cache    cache.RedisClient
	cacheTTL time.Duration
	maxAge   time.Duration
	logger   *logger.Logger
}

// NewService creates a rate service.
func NewService(store PriceStore, redisClient cache.RedisClient, cfg *config.LedgerConfig, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		cache:    redisClient,
		cacheTTL: time.Duration(cfg.PriceCacheTTL) * time.Second,
		maxAge:   time.Duration(cfg.PriceMaxAge) * time.Second,
		logger:   log,
	}
}

func snapshotKey(currency string) string {
	return fmt.Sprintf("rates:snapshot:%s", currency)
}

// Snapshot returns both price points for a crypto currency against the
// local currency. USD itself is a valid input: its USDPerUnit is 1.
func (s *Service) Snapshot(ctx context.Context, currency string) (entities.RateSnapshot, error) {
	if s.cache != nil {
		var cached entities.RateSnapshot
		err := s.cache.Get(ctx, snapshotKey(currency), &cached)
		if err == nil && s.fresh(cached.RetrievedAt) {
			return cached, nil
		}
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("rate cache read failed", "currency", currency, "error", err)
		}
	}

	snapshot, err := s.load(ctx, currency)
	if err != nil {
		return entities.RateSnapshot{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, snapshotKey(currency), snapshot, s.cacheTTL); err != nil {
			s.logger.Warn("rate cache write failed", "currency", currency, "error", err)
		}
	}

	return snapshot, nil
}

func (s *Service) load(ctx context.Context, currency string) (entities.RateSnapshot, error) {
	fiat, err := s.store.GetFiatRate(ctx, entities.LocalCurrency)
	if err != nil {
		return entities.RateSnapshot{}, err
	}
	if !fiat.USDRate.IsPositive() || !s.fresh(fiat.UpdatedAt) {
		return entities.RateSnapshot{}, domainerrors.RateUnavailable(entities.LocalCurrency)
	}

	snapshot := entities.RateSnapshot{
		Currency:    currency,
		LocalPerUSD: fiat.USDRate,
		RetrievedAt: time.Now(),
	}

	if currency == "USD" {
		snapshot.USDPerUnit = oneUSD
		return snapshot, nil
	}

	price, err := s.store.GetPrice(ctx, currency)
	if err != nil {
		return entities.RateSnapshot{}, err
	}
	if !price.USDPrice.IsPositive() || !s.fresh(price.UpdatedAt) {
		return entities.RateSnapshot{}, domainerrors.RateUnavailable(currency)
	}

	snapshot.USDPerUnit = price.USDPrice
	return snapshot, nil
}

func (s *Service) fresh(t time.Time) bool {
	if s.maxAge <= 0 {
		return true
	}
	return time.Since(t) <= s.maxAge
}
