// Package chaingw adapts the blockchain gateway: outbound transfers for
// sends and status queries for reconciliation.
package chaingw

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/domain/services/orchestrator"
	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/internal/infrastructure/providers/transport"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// Client talks to the chain gateway. Implements both the orchestrator's
// transfer port and the reconciler's status checker.
type Client struct {
	http   *transport.Client
	logger *logger.Logger
}

// NewClient creates a chain gateway client.
func NewClient(cfg config.ProviderConfig, log *logger.Logger) *Client {
	return &Client{
		http:   transport.NewClient("ChainGateway", cfg, log),
		logger: log,
	}
}

type transferRequest struct {
	Reference string          `json:"reference"`
	Currency  string          `json:"currency"`
	Chain     string          `json:"chain"`
	ToAddress string          `json:"toAddress"`
	Amount    decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Transfer submits an outbound transfer. A timeout maps to ambiguous
// because the gateway may have broadcast the transaction; everything else
// maps to unavailable and is safe to roll back.
func (c *Client) Transfer(ctx context.Context, req orchestrator.ChainTransferRequest) error {
	var resp transferResponse
	err := c.http.DoJSON(ctx, "POST", "/v1/transfers", transferRequest{
		Reference: req.Reference,
		Currency:  req.Currency,
		Chain:     req.Chain,
		ToAddress: req.ToAddress,
		Amount:    req.Amount,
	}, &resp)
	if err != nil {
		if transport.IsTimeout(err) {
			return domainerrors.ProviderTimeoutAmbiguous(entities.ProviderChain, req.Reference)
		}
		return domainerrors.ProviderUnavailable(entities.ProviderChain, err)
	}

	c.logger.Info("chain transfer submitted",
		"reference", req.Reference, "currency", req.Currency, "chain", req.Chain)
	return nil
}

type addressRequest struct {
	Currency string `json:"currency"`
	Chain    string `json:"chain"`
}

type addressResponse struct {
	Address string `json:"address"`
}

// CreateDepositAddress asks the gateway for a fresh inbound address. Safe
// to retry: nothing is held against an unused address, so any failure maps
// to unavailable.
func (c *Client) CreateDepositAddress(ctx context.Context, currency, chain string) (string, error) {
	var resp addressResponse
	err := c.http.DoJSON(ctx, "POST", "/v1/addresses", addressRequest{Currency: currency, Chain: chain}, &resp)
	if err != nil {
		return "", domainerrors.ProviderUnavailable(entities.ProviderChain, err)
	}
	if resp.Address == "" {
		return "", domainerrors.ProviderUnavailable(entities.ProviderChain, fmt.Errorf("gateway returned empty address"))
	}

	c.logger.Info("deposit address created", "currency", currency, "chain", chain)
	return resp.Address, nil
}

type statusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	TxHash    string `json:"txHash,omitempty"`
}

// CheckStatus polls the gateway for a transfer outcome.
func (c *Client) CheckStatus(ctx context.Context, reference string) (reconciler.ProviderStatus, error) {
	var resp statusResponse
	if err := c.http.DoJSON(ctx, "GET", fmt.Sprintf("/v1/transfers/%s", reference), nil, &resp); err != nil {
		return "", err
	}

	switch resp.Status {
	case "confirmed", "completed":
		return reconciler.ProviderStatusConfirmed, nil
	case "failed", "rejected":
		return reconciler.ProviderStatusFailed, nil
	default:
		return reconciler.ProviderStatusPending, nil
	}
}
