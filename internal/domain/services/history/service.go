package history

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// StatsWindow is the dashboard comparison window: current 30 days against
// the 30 days before that.
const StatsWindow = 30 * 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// Service merges the three subsystems' records into one paginated history
// and computes period-over-period stats. Each source is over-fetched
// page*limit rows so the merged global ordering stays correct across pages.
type Service struct {
	transactions *repositories.TransactionRepository
	giftcards    *repositories.GiftCardRepository
	billpayments *repositories.BillPaymentRepository
	logger       *logger.Logger
}

// NewService creates a history aggregator.
func NewService(
	transactions *repositories.TransactionRepository,
	giftcards *repositories.GiftCardRepository,
	billpayments *repositories.BillPaymentRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		transactions: transactions,
		giftcards:    giftcards,
		billpayments: billpayments,
		logger:       log,
	}
}

// List returns the unified transaction page for a filter. With a niche set,
// only that source is queried; otherwise all sources are merged and
// re-sorted by timestamp before the page window is cut.
func (s *Service) List(ctx context.Context, filter entities.HistoryFilter) ([]*entities.UnifiedTransaction, *entities.Pagination, error) {
	filter.Normalize()

	var merged []*entities.UnifiedTransaction
	for _, source := range s.sources(filter.Niche) {
		rows, err := source(ctx, filter)
		if err != nil {
			return nil, nil, err
		}
		merged = append(merged, rows...)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	start := (filter.Page - 1) * filter.Limit
	end := start + filter.Limit
	if start > len(merged) {
		start = len(merged)
	}
	if end > len(merged) {
		end = len(merged)
	}
	page := merged[start:end]

	return page, &entities.Pagination{
		Page:    filter.Page,
		Limit:   filter.Limit,
		Count:   len(page),
		HasMore: len(merged) > filter.Page*filter.Limit,
	}, nil
}

type sourceFn func(ctx context.Context, filter entities.HistoryFilter) ([]*entities.UnifiedTransaction, error)

func (s *Service) sources(niche entities.Niche) []sourceFn {
	switch niche {
	case entities.NicheCrypto:
		return []sourceFn{s.transactions.ListByUser}
	case entities.NicheGiftCard:
		return []sourceFn{s.giftcards.ListByUser}
	case entities.NicheBillPayment:
		return []sourceFn{s.billpayments.ListByUser}
	default:
		return []sourceFn{s.transactions.ListByUser, s.giftcards.ListByUser, s.billpayments.ListByUser}
	}
}

// Stats computes the current-window total and its change against the equal
// prior window, per niche. A zero prior window reads as +100% when the
// current window has volume and 0% when both are empty.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) ([]*entities.NicheStats, error) {
	now := time.Now()
	currentFrom := now.Add(-StatsWindow)
	previousFrom := now.Add(-2 * StatsWindow)

	type summer func(ctx context.Context, userID uuid.UUID, from, to time.Time) (string, error)
	niches := []struct {
		niche entities.Niche
		sum   summer
	}{
		{entities.NicheCrypto, s.transactions.SumSuccessfulInWindow},
		{entities.NicheGiftCard, s.giftcards.SumSuccessfulInWindow},
		{entities.NicheBillPayment, s.billpayments.SumSuccessfulInWindow},
	}

	stats := make([]*entities.NicheStats, 0, len(niches))
	for _, n := range niches {
		current, err := s.sumWindow(ctx, n.sum, userID, currentFrom, now)
		if err != nil {
			return nil, err
		}
		previous, err := s.sumWindow(ctx, n.sum, userID, previousFrom, currentFrom)
		if err != nil {
			return nil, err
		}

		stats = append(stats, &entities.NicheStats{
			Niche:         n.niche,
			CurrentTotal:  current,
			PreviousTotal: previous,
			ChangePercent: changePercent(current, previous),
		})
	}
	return stats, nil
}

func (s *Service) sumWindow(ctx context.Context, sum func(context.Context, uuid.UUID, time.Time, time.Time) (string, error), userID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	raw, err := sum(ctx, userID, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func changePercent(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsZero() {
			return decimal.Zero
		}
		return hundred
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(2)
}
