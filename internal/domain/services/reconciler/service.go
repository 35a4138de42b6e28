package reconciler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/domain/services/ledger"
	"github.com/terescrow/ledger-service/internal/domain/services/orchestrator"
	"github.com/terescrow/ledger-service/internal/infrastructure/database"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
	"github.com/terescrow/ledger-service/pkg/metrics"
)

// ProviderStatus is the answer a status poll gives about a provider-side
// transaction.
type ProviderStatus string

const (
	ProviderStatusConfirmed ProviderStatus = "confirmed"
	ProviderStatusFailed    ProviderStatus = "failed"
	ProviderStatusPending   ProviderStatus = "pending"
)

// StatusChecker polls a provider for the outcome of a reference. Used by
// the reconciliation sweep when no webhook arrived for a pending row.
type StatusChecker interface {
	CheckStatus(ctx context.Context, reference string) (ProviderStatus, error)
}

// Service reconciles provider callbacks against the ledger. Ingest persists
// raw events on the request path; Apply runs deferred in the worker pool.
// Every status change goes through the conditional pending→terminal update,
// so redelivery and webhook-vs-poll races collapse to no-ops.
type Service struct {
	db           *sqlx.DB
	events       *repositories.ProviderEventRepository
	transactions *repositories.TransactionRepository
	giftcards    *repositories.GiftCardRepository
	billpayments *repositories.BillPaymentRepository
	ledger       *ledger.Service
	orchestrator *orchestrator.Service
	secrets      map[string]string
	checkers     map[string]StatusChecker
	logger       *logger.Logger
}

// NewService creates a webhook reconciler. secrets maps provider name to
// its webhook HMAC secret; checkers maps provider name to its status poller.
func NewService(
	db *sqlx.DB,
	events *repositories.ProviderEventRepository,
	transactions *repositories.TransactionRepository,
	giftcards *repositories.GiftCardRepository,
	billpayments *repositories.BillPaymentRepository,
	ledgerService *ledger.Service,
	orchestratorService *orchestrator.Service,
	secrets map[string]string,
	checkers map[string]StatusChecker,
	log *logger.Logger,
) *Service {
	return &Service{
		db:           db,
		events:       events,
		transactions: transactions,
		giftcards:    giftcards,
		billpayments: billpayments,
		ledger:       ledgerService,
		orchestrator: orchestratorService,
		secrets:      secrets,
		checkers:     checkers,
		logger:       log,
	}
}

// Ingest persists a raw provider event before any validation. Persistence
// failure is logged, never propagated: the HTTP acknowledgment must not
// depend on it, and the provider's retry policy covers the gap.
func (s *Service) Ingest(ctx context.Context, provider string, payload, headers []byte, sourceIP, signature string) {
	event := &entities.ProviderEvent{
		ID:         uuid.New(),
		Provider:   provider,
		Payload:    payload,
		Headers:    headers,
		SourceIP:   sourceIP,
		Signature:  signature,
		ReceivedAt: time.Now(),
	}

	if err := s.events.Insert(ctx, event); err != nil {
		s.logger.Error("failed to persist provider event",
			"provider", provider, "source_ip", sourceIP, "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(provider, "persist_failed").Inc()
		return
	}
	metrics.WebhookEventsTotal.WithLabelValues(provider, "received").Inc()
}

// Apply runs the idempotent application of one persisted event and marks it
// processed either way. A DuplicateWebhook outcome is recorded as applied.
func (s *Service) Apply(ctx context.Context, event *entities.ProviderEvent) {
	err := s.apply(ctx, event)
	switch {
	case err == nil:
		metrics.WebhookEventsTotal.WithLabelValues(event.Provider, "applied").Inc()
	case domainerrors.IsDuplicateWebhook(err):
		metrics.WebhookEventsTotal.WithLabelValues(event.Provider, "duplicate").Inc()
		err = nil
	default:
		metrics.WebhookEventsTotal.WithLabelValues(event.Provider, "apply_failed").Inc()
		s.logger.Error("webhook application failed",
			"event_id", event.ID, "provider", event.Provider, "error", err)
	}

	if markErr := s.events.MarkProcessed(ctx, event.ID, err); markErr != nil {
		s.logger.Error("failed to mark event processed", "event_id", event.ID, "error", markErr)
	}
}

func (s *Service) apply(ctx context.Context, event *entities.ProviderEvent) error {
	if err := s.verifySignature(event); err != nil {
		return err
	}

	switch event.Provider {
	case entities.ProviderPalmPay:
		return s.applyPalmPay(ctx, event)
	case entities.ProviderChain:
		return s.applyChain(ctx, event)
	case entities.ProviderReloadly:
		return s.applyReloadly(ctx, event)
	case entities.ProviderVTPass:
		return s.applyVTPass(ctx, event)
	default:
		return domainerrors.Validation("provider", "unknown provider: "+event.Provider)
	}
}

// verifySignature checks the HMAC-SHA256 of the raw payload against the
// provider's webhook secret. An unconfigured secret skips verification so
// local environments work without provider credentials.
func (s *Service) verifySignature(event *entities.ProviderEvent) error {
	secret, ok := s.secrets[event.Provider]
	if !ok || secret == "" {
		return nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(event.Payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(event.Signature)) {
		return domainerrors.Validation("signature", "webhook signature verification failed")
	}
	return nil
}

// applyPalmPay handles fiat collection results: a successful order credits
// the user's fiat wallet; a failed order just closes the transaction.
func (s *Service) applyPalmPay(ctx context.Context, event *entities.ProviderEvent) error {
	var cb entities.PalmPayCallback
	if err := json.Unmarshal(event.Payload, &cb); err != nil {
		return domainerrors.Validation("payload", "malformed palmpay callback: "+err.Error())
	}
	if cb.OrderNo == "" {
		return domainerrors.Validation("orderNo", "palmpay callback missing order number")
	}

	tx, err := s.transactions.GetByProviderRef(ctx, s.db, entities.ProviderPalmPay, cb.OrderNo)
	if err != nil {
		return err
	}

	switch cb.OrderStatus {
	case entities.PalmPayStatusSuccess:
		return s.settle(ctx, tx, entities.TransactionStatusSuccessful, nil, func(dbTx *sqlx.Tx) error {
			_, err := s.ledger.Credit(ctx, dbTx, entities.AccountRef{
				UserID:   tx.UserID,
				Currency: entities.LocalCurrency,
			}, cb.Amount)
			return err
		})
	case entities.PalmPayStatusFailed:
		reason := "palmpay order failed"
		return s.settle(ctx, tx, entities.TransactionStatusFailed, &reason, nil)
	default:
		return domainerrors.Validation("orderStatus", fmt.Sprintf("unrecognized palmpay status %d", cb.OrderStatus))
	}
}

// applyChain handles both directions of chain gateway events. Inbound
// deposits route through the orchestrator's receive path; outbound
// confirmations resolve the pending send, refunding the held debit when
// the transfer failed on-chain.
func (s *Service) applyChain(ctx context.Context, event *entities.ProviderEvent) error {
	var cb entities.ChainDepositEvent
	if err := json.Unmarshal(event.Payload, &cb); err != nil {
		return domainerrors.Validation("payload", "malformed chain event: "+err.Error())
	}

	if cb.Direction == "in" {
		return s.orchestrator.Receive(ctx, &cb)
	}

	if cb.Reference == "" {
		return domainerrors.Validation("reference", "chain event missing reference")
	}
	tx, err := s.transactions.GetByProviderRef(ctx, s.db, entities.ProviderChain, cb.Reference)
	if err != nil {
		return err
	}

	if cb.Status == "confirmed" {
		return s.settle(ctx, tx, entities.TransactionStatusSuccessful, nil, nil)
	}

	// The send failed after the debit committed; return the full held
	// amount including the fee surcharge.
	detail, err := s.transactions.GetDetail(ctx, s.db, tx.ID)
	if err != nil {
		return err
	}
	reason := "chain transfer failed"
	return s.settle(ctx, tx, entities.TransactionStatusRefunded, &reason, func(dbTx *sqlx.Tx) error {
		_, err := s.ledger.Refund(ctx, dbTx, entities.AccountRef{
			UserID:   tx.UserID,
			Currency: tx.Currency,
			Chain:    tx.Chain,
		}, detail.AmountNative.Add(detail.FeeNative))
		return err
	})
}

func (s *Service) applyReloadly(ctx context.Context, event *entities.ProviderEvent) error {
	var cb entities.ReloadlyCallback
	if err := json.Unmarshal(event.Payload, &cb); err != nil {
		return domainerrors.Validation("payload", "malformed reloadly callback: "+err.Error())
	}
	ref := cb.CustomID
	if ref == "" {
		ref = cb.TransactionID
	}
	if ref == "" {
		return domainerrors.Validation("reference", "reloadly callback missing reference")
	}

	status := "failed"
	if cb.Status == "SUCCESSFUL" {
		status = "successful"
	}
	order, err := s.giftcards.UpdateStatusByProviderRef(ctx, ref, status)
	if err != nil {
		return err
	}
	if order == nil {
		return domainerrors.New(domainerrors.ErrDuplicateWebhook, "DUPLICATE_WEBHOOK", "gift card order already settled")
	}
	return nil
}

func (s *Service) applyVTPass(ctx context.Context, event *entities.ProviderEvent) error {
	var cb entities.VTPassCallback
	if err := json.Unmarshal(event.Payload, &cb); err != nil {
		return domainerrors.Validation("payload", "malformed vtpass callback: "+err.Error())
	}
	if cb.RequestID == "" {
		return domainerrors.Validation("requestId", "vtpass callback missing request id")
	}

	status := "failed"
	if cb.TransactionStatus == "delivered" {
		status = "successful"
	}
	payment, err := s.billpayments.UpdateStatusByProviderRef(ctx, cb.RequestID, status)
	if err != nil {
		return err
	}
	if payment == nil {
		return domainerrors.New(domainerrors.ErrDuplicateWebhook, "DUPLICATE_WEBHOOK", "bill payment already settled")
	}
	return nil
}

// settle runs the conditional status transition plus the optional balance
// effect in one database transaction. The guard losing means the row was
// already terminal: the whole settlement, balance effect included, becomes
// a DuplicateWebhook no-op.
func (s *Service) settle(ctx context.Context, tx *entities.Transaction, status entities.TransactionStatus, reason *string, effect func(dbTx *sqlx.Tx) error) error {
	return database.WithTransaction(ctx, s.db, func(dbTx *sqlx.Tx) error {
		transitioned, err := s.transactions.MarkTerminal(ctx, dbTx, tx.ID, status, reason)
		if err != nil {
			return err
		}
		if !transitioned {
			return domainerrors.New(domainerrors.ErrDuplicateWebhook, "DUPLICATE_WEBHOOK",
				"transaction already settled").WithDetails(map[string]interface{}{"transaction_id": tx.ID})
		}
		if effect != nil {
			return effect(dbTx)
		}
		return nil
	})
}

// ResolvePending polls providers for transactions stuck pending longer than
// maxAge and applies the answer through the same settlement path webhooks
// use. Still-pending answers are left alone for the next sweep.
func (s *Service) ResolvePending(ctx context.Context, maxAge time.Duration, limit int) error {
	stale, err := s.transactions.ListPendingOlderThan(ctx, maxAge, limit)
	if err != nil {
		return err
	}

	for _, tx := range stale {
		if tx.Provider == nil || tx.ProviderRef == nil {
			continue
		}
		checker, ok := s.checkers[*tx.Provider]
		if !ok {
			continue
		}

		status, err := checker.CheckStatus(ctx, *tx.ProviderRef)
		if err != nil {
			s.logger.Warn("status poll failed",
				"transaction_id", tx.ID, "provider", *tx.Provider, "error", err)
			continue
		}

		if err := s.resolve(ctx, tx, status); err != nil && !domainerrors.IsDuplicateWebhook(err) {
			s.logger.Error("failed to resolve pending transaction",
				"transaction_id", tx.ID, "status", status, "error", err)
		}
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, tx *entities.Transaction, status ProviderStatus) error {
	switch status {
	case ProviderStatusConfirmed:
		s.logger.Info("pending transaction confirmed by status poll", "transaction_id", tx.ID)
		return s.settle(ctx, tx, entities.TransactionStatusSuccessful, nil, nil)
	case ProviderStatusFailed:
		detail, err := s.transactions.GetDetail(ctx, s.db, tx.ID)
		if err != nil {
			return err
		}
		reason := "provider reported failure on status poll"
		return s.settle(ctx, tx, entities.TransactionStatusRefunded, &reason, func(dbTx *sqlx.Tx) error {
			_, err := s.ledger.Refund(ctx, dbTx, entities.AccountRef{
				UserID:   tx.UserID,
				Currency: tx.Currency,
				Chain:    tx.Chain,
			}, detail.AmountNative.Add(detail.FeeNative))
			return err
		})
	default:
		return nil
	}
}
