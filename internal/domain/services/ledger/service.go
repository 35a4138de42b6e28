package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// Service is the balance ledger: the only code path allowed to mutate
// account balances. Mutating methods take an sqlx.ExtContext so the
// orchestrator can run a whole operation's debits and credits inside one
// database transaction; the row-level conditional updates underneath make
// concurrent executes against the same account serialize correctly.
type Service struct {
	accounts *repositories.AccountRepository
	logger   *logger.Logger
}

// NewService creates a ledger service.
func NewService(accounts *repositories.AccountRepository, log *logger.Logger) *Service {
	return &Service{accounts: accounts, logger: log}
}

// GetBalance returns the current balance for an account key, zero if the
// account does not exist yet.
func (s *Service) GetBalance(ctx context.Context, ref entities.AccountRef) (decimal.Decimal, error) {
	account, err := s.accounts.Get(ctx, s.accounts.DB(), ref)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// ListBalances returns every account snapshot for a user, fiat wallet first.
func (s *Service) ListBalances(ctx context.Context, userID uuid.UUID) ([]*entities.BalanceSnapshot, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshots := make([]*entities.BalanceSnapshot, 0, len(accounts))
	for _, a := range accounts {
		snapshots = append(snapshots, &entities.BalanceSnapshot{
			Currency: a.Currency,
			Chain:    a.Chain,
			Balance:  a.Balance,
			Frozen:   a.Frozen,
		})
	}
	return snapshots, nil
}

// EnsureAccount gets or creates the account for a key.
func (s *Service) EnsureAccount(ctx context.Context, q sqlx.ExtContext, ref entities.AccountRef) (*entities.Account, error) {
	return s.accounts.Ensure(ctx, q, ref)
}

// ReserveAndDebit atomically checks and debits an account in one statement.
// Fails with InsufficientBalance or AccountFrozen; on success the debit is
// part of whatever transaction q carries and rolls back with it.
func (s *Service) ReserveAndDebit(ctx context.Context, q sqlx.ExtContext, ref entities.AccountRef, amount decimal.Decimal) (decimal.Decimal, error) {
	account, err := s.accounts.Ensure(ctx, q, ref)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance, err := s.accounts.DebitIfSufficient(ctx, q, account.ID, amount)
	if err != nil {
		return decimal.Zero, err
	}

	if newBalance.IsNegative() {
		return decimal.Zero, domainerrors.InvariantViolation(
			"debit produced negative balance",
			map[string]interface{}{"account_id": account.ID, "balance": newBalance.String()},
		)
	}

	s.logger.Debug("account debited",
		"account_id", account.ID, "currency", ref.Currency, "amount", amount.String())
	return newBalance, nil
}

// Credit increases an account's balance, creating the account if needed.
func (s *Service) Credit(ctx context.Context, q sqlx.ExtContext, ref entities.AccountRef, amount decimal.Decimal) (decimal.Decimal, error) {
	account, err := s.accounts.Ensure(ctx, q, ref)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance, err := s.accounts.Credit(ctx, q, account.ID, amount)
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.Debug("account credited",
		"account_id", account.ID, "currency", ref.Currency, "amount", amount.String())
	return newBalance, nil
}

// Refund returns a previously debited amount. Same mechanics as Credit but
// named separately so refund paths are greppable in logs and call sites.
func (s *Service) Refund(ctx context.Context, q sqlx.ExtContext, ref entities.AccountRef, amount decimal.Decimal) (decimal.Decimal, error) {
	newBalance, err := s.Credit(ctx, q, ref, amount)
	if err != nil {
		return decimal.Zero, err
	}
	s.logger.Info("account refunded",
		"user_id", ref.UserID, "currency", ref.Currency, "amount", amount.String())
	return newBalance, nil
}
