package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/domain/services/rates"
)

// operationSpec describes one operation kind declaratively: how to validate
// its request, how its amounts derive from rate snapshots, and which
// accounts its debit and credit legs touch. Execute runs every kind through
// the same pipeline; only the operationSpec differs.
type operationSpec interface {
	kind() entities.TransactionKind
	validate(req *entities.TradeRequest) error
	// needsPairRate reports whether the quote requires a second snapshot
	// for req.ToCurrency.
	needsPairRate() bool
	// buildQuote fills the amounts from the snapshots. pair is nil unless
	// needsPairRate.
	buildQuote(req *entities.TradeRequest, rate entities.RateSnapshot, pair *entities.RateSnapshot, feeUSD decimal.Decimal, conv *rates.Converter) (*entities.Quote, error)
	// debitLeg is the account charged and the gross amount taken from it.
	debitLeg(userID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) (entities.AccountRef, decimal.Decimal)
	// creditLeg is the account credited, nil when funds leave the system.
	creditLeg(userID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) (*entities.AccountRef, decimal.Decimal)
	detail(txID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) *entities.TransactionDetail
}

func specFor(kind entities.TransactionKind) (operationSpec, error) {
	switch kind {
	case entities.TransactionKindBuy:
		return buySpec{}, nil
	case entities.TransactionKindSell:
		return sellSpec{}, nil
	case entities.TransactionKindSwap:
		return swapSpec{}, nil
	case entities.TransactionKindSend:
		return sendSpec{}, nil
	default:
		return nil, domainerrors.Validation("kind", "unsupported operation kind: "+string(kind))
	}
}

func validateBase(req *entities.TradeRequest) error {
	if !req.Amount.IsPositive() {
		return domainerrors.Validation("amount", "amount must be positive")
	}
	if req.Currency == "" {
		return domainerrors.Validation("currency", "currency is required")
	}
	if req.Currency == entities.LocalCurrency {
		return domainerrors.Validation("currency", "currency must be a crypto asset")
	}
	return nil
}

// buySpec: spend fiat, receive crypto. Amount is the native quantity of the
// asset being bought; the cost in local currency derives from it.
type buySpec struct{}

func (buySpec) kind() entities.TransactionKind { return entities.TransactionKindBuy }
func (buySpec) needsPairRate() bool            { return false }

func (buySpec) validate(req *entities.TradeRequest) error {
	return validateBase(req)
}

func (buySpec) buildQuote(req *entities.TradeRequest, rate entities.RateSnapshot, _ *entities.RateSnapshot, _ decimal.Decimal, conv *rates.Converter) (*entities.Quote, error) {
	usd, err := conv.NativeToUSD(req.Amount, rate)
	if err != nil {
		return nil, err
	}
	local, err := conv.USDToLocal(usd, rate)
	if err != nil {
		return nil, err
	}
	return &entities.Quote{
		Kind:         entities.TransactionKindBuy,
		AmountNative: req.Amount,
		AmountUSD:    rates.RoundFiat(usd),
		AmountLocal:  rates.RoundFiat(local),
		OutputAmount: rates.RoundNative(req.Amount),
		Rate:         rate,
	}, nil
}

func (buySpec) debitLeg(userID uuid.UUID, _ *entities.TradeRequest, q *entities.Quote) (entities.AccountRef, decimal.Decimal) {
	return entities.AccountRef{UserID: userID, Currency: entities.LocalCurrency}, q.AmountLocal
}

func (buySpec) creditLeg(userID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) (*entities.AccountRef, decimal.Decimal) {
	return &entities.AccountRef{UserID: userID, Currency: req.Currency, Chain: req.Chain}, q.OutputAmount
}

func (buySpec) detail(txID uuid.UUID, _ *entities.TradeRequest, q *entities.Quote) *entities.TransactionDetail {
	return baseDetail(txID, entities.TransactionKindBuy, q)
}

// sellSpec: spend crypto, receive fiat.
type sellSpec struct{}

func (sellSpec) kind() entities.TransactionKind { return entities.TransactionKindSell }
func (sellSpec) needsPairRate() bool            { return false }

func (sellSpec) validate(req *entities.TradeRequest) error {
	return validateBase(req)
}

func (sellSpec) buildQuote(req *entities.TradeRequest, rate entities.RateSnapshot, _ *entities.RateSnapshot, _ decimal.Decimal, conv *rates.Converter) (*entities.Quote, error) {
	usd, err := conv.NativeToUSD(req.Amount, rate)
	if err != nil {
		return nil, err
	}
	local, err := conv.USDToLocal(usd, rate)
	if err != nil {
		return nil, err
	}
	return &entities.Quote{
		Kind:         entities.TransactionKindSell,
		AmountNative: req.Amount,
		AmountUSD:    rates.RoundFiat(usd),
		AmountLocal:  rates.RoundFiat(local),
		OutputAmount: rates.RoundFiat(local),
		Rate:         rate,
	}, nil
}

func (sellSpec) debitLeg(userID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) (entities.AccountRef, decimal.Decimal) {
	return entities.AccountRef{UserID: userID, Currency: req.Currency, Chain: req.Chain}, q.AmountNative
}

func (sellSpec) creditLeg(userID uuid.UUID, _ *entities.TradeRequest, q *entities.Quote) (*entities.AccountRef, decimal.Decimal) {
	return &entities.AccountRef{UserID: userID, Currency: entities.LocalCurrency}, q.OutputAmount
}

func (sellSpec) detail(txID uuid.UUID, _ *entities.TradeRequest, q *entities.Quote) *entities.TransactionDetail {
	return baseDetail(txID, entities.TransactionKindSell, q)
}

// swapSpec: crypto to crypto through USD. The flat gas fee is surcharged on
// the source leg in native units and deducted from the USD value before the
// target conversion.
type swapSpec struct{}

func (swapSpec) kind() entities.TransactionKind { return entities.TransactionKindSwap }
func (swapSpec) needsPairRate() bool            { return true }

func (swapSpec) validate(req *entities.TradeRequest) error {
	if err := validateBase(req); err != nil {
		return err
	}
	if req.ToCurrency == "" {
		return domainerrors.Validation("toCurrency", "target currency is required")
	}
	if req.ToCurrency == req.Currency && req.ToChain == req.Chain {
		return domainerrors.Validation("toCurrency", "cannot swap a currency to itself")
	}
	if req.ToCurrency == entities.LocalCurrency {
		return domainerrors.Validation("toCurrency", "target currency must be a crypto asset")
	}
	return nil
}

func (swapSpec) buildQuote(req *entities.TradeRequest, rate entities.RateSnapshot, pair *entities.RateSnapshot, feeUSD decimal.Decimal, conv *rates.Converter) (*entities.Quote, error) {
	usd, err := conv.NativeToUSD(req.Amount, rate)
	if err != nil {
		return nil, err
	}
	if usd.LessThanOrEqual(feeUSD) {
		return nil, domainerrors.Validation("amount", "amount does not cover the gas fee")
	}
	local, err := conv.USDToLocal(usd, rate)
	if err != nil {
		return nil, err
	}
	feeNative, err := conv.USDToNative(feeUSD, rate)
	if err != nil {
		return nil, err
	}
	output, err := conv.USDToNative(usd.Sub(feeUSD), *pair)
	if err != nil {
		return nil, err
	}
	return &entities.Quote{
		Kind:         entities.TransactionKindSwap,
		AmountNative: req.Amount,
		AmountUSD:    rates.RoundFiat(usd),
		AmountLocal:  rates.RoundFiat(local),
		OutputAmount: rates.RoundNative(output),
		FeeNative:    rates.RoundNative(feeNative),
		FeeUSD:       feeUSD,
		Rate:         rate,
		PairRate:     pair,
	}, nil
}

func (swapSpec) debitLeg(userID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) (entities.AccountRef, decimal.Decimal) {
	return entities.AccountRef{UserID: userID, Currency: req.Currency, Chain: req.Chain},
		q.AmountNative.Add(q.FeeNative)
}

func (swapSpec) creditLeg(userID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) (*entities.AccountRef, decimal.Decimal) {
	return &entities.AccountRef{UserID: userID, Currency: req.ToCurrency, Chain: req.ToChain}, q.OutputAmount
}

func (swapSpec) detail(txID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) *entities.TransactionDetail {
	d := baseDetail(txID, entities.TransactionKindSwap, q)
	pairCurrency := req.ToCurrency
	pairChain := req.ToChain
	pairAmount := q.OutputAmount
	d.PairCurrency = &pairCurrency
	d.PairChain = &pairChain
	d.PairAmount = &pairAmount
	return d
}

// sendSpec: crypto leaves the system through the chain gateway. Network fee
// surcharged in native units; no credit leg.
type sendSpec struct{}

func (sendSpec) kind() entities.TransactionKind { return entities.TransactionKindSend }
func (sendSpec) needsPairRate() bool            { return false }

func (sendSpec) validate(req *entities.TradeRequest) error {
	if err := validateBase(req); err != nil {
		return err
	}
	if req.ToAddress == "" {
		return domainerrors.Validation("toAddress", "destination address is required")
	}
	if req.Chain == "" {
		return domainerrors.Validation("chain", "chain is required for transfers")
	}
	return nil
}

func (sendSpec) buildQuote(req *entities.TradeRequest, rate entities.RateSnapshot, _ *entities.RateSnapshot, feeUSD decimal.Decimal, conv *rates.Converter) (*entities.Quote, error) {
	usd, err := conv.NativeToUSD(req.Amount, rate)
	if err != nil {
		return nil, err
	}
	local, err := conv.USDToLocal(usd, rate)
	if err != nil {
		return nil, err
	}
	feeNative, err := conv.USDToNative(feeUSD, rate)
	if err != nil {
		return nil, err
	}
	return &entities.Quote{
		Kind:         entities.TransactionKindSend,
		AmountNative: req.Amount,
		AmountUSD:    rates.RoundFiat(usd),
		AmountLocal:  rates.RoundFiat(local),
		OutputAmount: rates.RoundNative(req.Amount),
		FeeNative:    rates.RoundNative(feeNative),
		FeeUSD:       feeUSD,
		Rate:         rate,
	}, nil
}

func (sendSpec) debitLeg(userID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) (entities.AccountRef, decimal.Decimal) {
	return entities.AccountRef{UserID: userID, Currency: req.Currency, Chain: req.Chain},
		q.AmountNative.Add(q.FeeNative)
}

func (sendSpec) creditLeg(uuid.UUID, *entities.TradeRequest, *entities.Quote) (*entities.AccountRef, decimal.Decimal) {
	return nil, decimal.Zero
}

func (sendSpec) detail(txID uuid.UUID, req *entities.TradeRequest, q *entities.Quote) *entities.TransactionDetail {
	d := baseDetail(txID, entities.TransactionKindSend, q)
	counterparty := req.ToAddress
	d.Counterparty = &counterparty
	return d
}

func baseDetail(txID uuid.UUID, kind entities.TransactionKind, q *entities.Quote) *entities.TransactionDetail {
	return &entities.TransactionDetail{
		ID:            uuid.New(),
		TransactionID: txID,
		Kind:          kind,
		CreatedAt:     time.Now(),
		AmountNative:  q.AmountNative,
		AmountUSD:     q.AmountUSD,
		AmountLocal:   q.AmountLocal,
		FeeNative:     q.FeeNative,
		FeeUSD:        q.FeeUSD,
		USDPerUnit:    q.Rate.USDPerUnit,
		LocalPerUSD:   q.Rate.LocalPerUSD,
	}
}
