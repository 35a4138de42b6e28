package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/domain/services/ledger"
	"github.com/terescrow/ledger-service/internal/domain/services/rates"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/internal/infrastructure/database"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
	"github.com/terescrow/ledger-service/pkg/metrics"
)

// ChainTransferRequest is what the orchestrator hands the chain gateway for
// an outbound transfer. Reference is the idempotency key the gateway echoes
// back on its webhook.
type ChainTransferRequest struct {
	Reference string
	Currency  string
	Chain     string
	ToAddress string
	Amount    decimal.Decimal
}

// ChainGateway executes outbound transfers. Implementations must map their
// failure modes onto ProviderUnavailable (nothing happened) or
// ProviderTimeoutAmbiguous (outcome unknown); any other error is treated as
// unavailable.
type ChainGateway interface {
	Transfer(ctx context.Context, req ChainTransferRequest) error
	CreateDepositAddress(ctx context.Context, currency, chain string) (string, error)
}

// Service drives the quote → preview → execute pipeline for all operation
// kinds and the webhook-triggered receive path. Execute is the only method
// that mutates balances, and it does all its mutations inside one database
// transaction.
type Service struct {
	db           *sqlx.DB
	rates        *rates.Service
	converter    *rates.Converter
	ledger       *ledger.Service
	transactions *repositories.TransactionRepository
	accounts     *repositories.AccountRepository
	users        *repositories.UserRepository
	chain        ChainGateway
	feeUSD       decimal.Decimal
	logger       *logger.Logger
}

// NewService creates a transaction orchestrator.
func NewService(
	db *sqlx.DB,
	rateService *rates.Service,
	ledgerService *ledger.Service,
	transactions *repositories.TransactionRepository,
	accounts *repositories.AccountRepository,
	users *repositories.UserRepository,
	chain ChainGateway,
	cfg *config.LedgerConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		db:           db,
		rates:        rateService,
		converter:    rates.NewConverter(),
		ledger:       ledgerService,
		transactions: transactions,
		accounts:     accounts,
		users:        users,
		chain:        chain,
		feeUSD:       decimal.NewFromFloat(cfg.SendFeeUSD),
		logger:       log,
	}
}

// Quote computes the projection for an operation. Pure: no balance reads,
// no writes, freely repeatable.
func (s *Service) Quote(ctx context.Context, kind entities.TransactionKind, req *entities.TradeRequest) (*entities.Quote, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	if err := spec.validate(req); err != nil {
		return nil, err
	}
	return s.buildQuote(ctx, spec, req)
}

func (s *Service) buildQuote(ctx context.Context, spec operationSpec, req *entities.TradeRequest) (*entities.Quote, error) {
	rate, err := s.rates.Snapshot(ctx, req.Currency)
	if err != nil {
		return nil, err
	}

	var pair *entities.RateSnapshot
	if spec.needsPairRate() {
		p, err := s.rates.Snapshot(ctx, req.ToCurrency)
		if err != nil {
			return nil, err
		}
		pair = &p
	}

	return spec.buildQuote(req, rate, pair, s.feeUSD, s.converter)
}

// Preview extends Quote with the source account's current and projected
// balances. Still no mutation.
func (s *Service) Preview(ctx context.Context, kind entities.TransactionKind, userID uuid.UUID, req *entities.TradeRequest) (*entities.Preview, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	if err := spec.validate(req); err != nil {
		return nil, err
	}

	quote, err := s.buildQuote(ctx, spec, req)
	if err != nil {
		return nil, err
	}

	sourceRef, debitAmount := spec.debitLeg(userID, req, quote)
	balance, err := s.ledger.GetBalance(ctx, sourceRef)
	if err != nil {
		return nil, err
	}

	preview := &entities.Preview{
		Quote:         *quote,
		BalanceBefore: balance,
		BalanceAfter:  balance.Sub(debitAmount),
		CanProceed:    balance.GreaterThanOrEqual(debitAmount),
	}
	if !preview.CanProceed {
		preview.Reason = fmt.Sprintf("insufficient %s balance", sourceRef.Currency)
	}
	return preview, nil
}

// Execute recomputes the quote server-side, verifies the transaction PIN,
// and applies the operation atomically. The provider call for sends happens
// inside the open transaction so a hard failure rolls the debit back; only
// an ambiguous timeout commits, as a pending row for reconciliation.
func (s *Service) Execute(ctx context.Context, kind entities.TransactionKind, userID uuid.UUID, req *entities.TradeRequest) (*entities.ExecuteResult, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	if err := spec.validate(req); err != nil {
		return nil, err
	}
	if err := s.verifyPin(ctx, userID, req.Pin); err != nil {
		return nil, err
	}

	quote, err := s.buildQuote(ctx, spec, req)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	sourceRef, debitAmount := spec.debitLeg(userID, req, quote)

	var result *entities.ExecuteResult
	err = database.WithTransaction(ctx, s.db, func(dbTx *sqlx.Tx) error {
		newBalance, err := s.ledger.ReserveAndDebit(ctx, dbTx, sourceRef, debitAmount)
		if err != nil {
			return err
		}

		record := &entities.Transaction{
			ID:        txID,
			UserID:    userID,
			Kind:      spec.kind(),
			Status:    entities.TransactionStatusSuccessful,
			Currency:  req.Currency,
			Chain:     req.Chain,
			CreatedAt: time.Now(),
		}

		if kind == entities.TransactionKindSend {
			status, err := s.dispatchTransfer(ctx, txID, req, quote)
			if err != nil {
				return err
			}
			record.Status = status
			provider := entities.ProviderChain
			ref := txID.String()
			record.Provider = &provider
			record.ProviderRef = &ref
		}

		if record.Status.IsTerminal() {
			now := time.Now()
			record.CompletedAt = &now
		}

		if creditRef, creditAmount := spec.creditLeg(userID, req, quote); creditRef != nil {
			if _, err := s.ledger.Credit(ctx, dbTx, *creditRef, creditAmount); err != nil {
				return err
			}
		}

		if err := s.transactions.Create(ctx, dbTx, record); err != nil {
			return err
		}
		if err := s.transactions.CreateDetail(ctx, dbTx, spec.detail(txID, req, quote)); err != nil {
			return err
		}

		result = &entities.ExecuteResult{
			TransactionID: txID,
			Status:        record.Status,
			Quote:         *quote,
			BalanceBefore: newBalance.Add(debitAmount),
			BalanceAfter:  newBalance,
		}
		return nil
	})
	if err != nil {
		metrics.TransactionsExecutedTotal.WithLabelValues(string(kind), "failed").Inc()
		return nil, err
	}

	metrics.TransactionsExecutedTotal.WithLabelValues(string(kind), string(result.Status)).Inc()
	s.logger.Info("operation executed",
		"transaction_id", txID, "kind", kind, "status", result.Status,
		"user_id", userID, "currency", req.Currency, "amount", req.Amount.String())

	// A pending result means the debit committed and reconciliation owns the
	// outcome; the handler renders it as processing, not as a failure.
	return result, nil
}

// dispatchTransfer invokes the chain gateway and maps its outcome onto a
// transaction status. ProviderUnavailable propagates so the enclosing
// transaction rolls back; ambiguous outcomes commit as pending.
func (s *Service) dispatchTransfer(ctx context.Context, txID uuid.UUID, req *entities.TradeRequest, quote *entities.Quote) (entities.TransactionStatus, error) {
	err := s.chain.Transfer(ctx, ChainTransferRequest{
		Reference: txID.String(),
		Currency:  req.Currency,
		Chain:     req.Chain,
		ToAddress: req.ToAddress,
		Amount:    quote.AmountNative,
	})
	if err == nil {
		return entities.TransactionStatusPending, nil
	}
	if domainerrors.IsAmbiguous(err) {
		s.logger.Warn("chain transfer outcome unknown, holding pending",
			"transaction_id", txID, "currency", req.Currency)
		return entities.TransactionStatusPending, nil
	}
	if domainerrors.IsProviderUnavailable(err) {
		return "", err
	}
	return "", domainerrors.ProviderUnavailable(entities.ProviderChain, err)
}

// Receive credits an inbound chain deposit. Triggered by the webhook
// reconciler, never by a user call. Idempotent on the chain transaction
// hash: a redelivered deposit finds its transaction row and no-ops.
func (s *Service) Receive(ctx context.Context, deposit *entities.ChainDepositEvent) error {
	if !deposit.Amount.IsPositive() {
		return domainerrors.Validation("amount", "deposit amount must be positive")
	}

	account, err := s.accounts.GetByDepositAddress(ctx, deposit.Address, deposit.Currency, deposit.Chain)
	if err != nil {
		return err
	}

	if existing, err := s.transactions.GetByProviderRef(ctx, s.db, entities.ProviderChain, deposit.TxHash); err == nil && existing != nil {
		return domainerrors.New(domainerrors.ErrDuplicateWebhook, "DUPLICATE_WEBHOOK",
			"deposit already applied").WithDetails(map[string]interface{}{"tx_hash": deposit.TxHash})
	} else if err != nil && !domainerrors.IsNotFound(err) {
		return err
	}

	rate, err := s.rates.Snapshot(ctx, deposit.Currency)
	if err != nil {
		return err
	}
	usd, err := s.converter.NativeToUSD(deposit.Amount, rate)
	if err != nil {
		return err
	}
	local, err := s.converter.USDToLocal(usd, rate)
	if err != nil {
		return err
	}

	txID := uuid.New()
	now := time.Now()
	provider := entities.ProviderChain
	ref := deposit.TxHash
	counterparty := deposit.Address

	err = database.WithTransaction(ctx, s.db, func(dbTx *sqlx.Tx) error {
		if _, err := s.ledger.Credit(ctx, dbTx, entities.AccountRef{
			UserID:   account.UserID,
			Currency: deposit.Currency,
			Chain:    deposit.Chain,
		}, deposit.Amount); err != nil {
			return err
		}

		record := &entities.Transaction{
			ID:          txID,
			UserID:      account.UserID,
			Kind:        entities.TransactionKindReceive,
			Status:      entities.TransactionStatusSuccessful,
			Currency:    deposit.Currency,
			Chain:       deposit.Chain,
			Provider:    &provider,
			ProviderRef: &ref,
			CreatedAt:   now,
			CompletedAt: &now,
		}
		if err := s.transactions.Create(ctx, dbTx, record); err != nil {
			return err
		}

		return s.transactions.CreateDetail(ctx, dbTx, &entities.TransactionDetail{
			ID:            uuid.New(),
			TransactionID: txID,
			Kind:          entities.TransactionKindReceive,
			AmountNative:  deposit.Amount,
			AmountUSD:     rates.RoundFiat(usd),
			AmountLocal:   rates.RoundFiat(local),
			USDPerUnit:    rate.USDPerUnit,
			LocalPerUSD:   rate.LocalPerUSD,
			Counterparty:  &counterparty,
			CreatedAt:     now,
		})
	})
	if err != nil {
		// A concurrent redelivery can pass the lookup above and lose the
		// insert race on the (provider, provider_ref) unique index. That is
		// the same no-op as a sequential duplicate.
		if repositories.IsUniqueViolation(err) {
			return domainerrors.New(domainerrors.ErrDuplicateWebhook, "DUPLICATE_WEBHOOK",
				"deposit already applied").WithDetails(map[string]interface{}{"tx_hash": deposit.TxHash})
		}
		return err
	}

	metrics.TransactionsExecutedTotal.WithLabelValues(string(entities.TransactionKindReceive), "successful").Inc()
	s.logger.Info("deposit credited",
		"transaction_id", txID, "user_id", account.UserID,
		"currency", deposit.Currency, "amount", deposit.Amount.String(), "tx_hash", deposit.TxHash)
	return nil
}

// DepositAddress returns the inbound deposit address for a user's virtual
// account, provisioning one from the chain gateway on first use. Fiat
// wallets are funded through collection webhooks and have no address.
func (s *Service) DepositAddress(ctx context.Context, userID uuid.UUID, currency, chain string) (string, error) {
	if currency == "" {
		return "", domainerrors.Validation("currency", "currency is required")
	}
	if currency == entities.LocalCurrency {
		return "", domainerrors.Validation("currency", "fiat wallets have no deposit address")
	}

	account, err := s.ledger.EnsureAccount(ctx, s.db, entities.AccountRef{
		UserID:   userID,
		Currency: currency,
		Chain:    chain,
	})
	if err != nil {
		return "", err
	}
	if account.DepositAddress != nil && *account.DepositAddress != "" {
		return *account.DepositAddress, nil
	}

	address, err := s.chain.CreateDepositAddress(ctx, currency, chain)
	if err != nil {
		return "", err
	}
	if err := s.accounts.SetDepositAddress(ctx, account.ID, address); err != nil {
		return "", err
	}

	s.logger.Info("deposit address provisioned",
		"user_id", userID, "currency", currency, "chain", chain)
	return address, nil
}

func (s *Service) verifyPin(ctx context.Context, userID uuid.UUID, pin string) error {
	if pin == "" {
		return domainerrors.Validation("pin", "transaction pin is required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte(pin)); err != nil {
		return domainerrors.New(domainerrors.ErrInvalidPin, "INVALID_PIN", "transaction pin is incorrect")
	}
	return nil
}
