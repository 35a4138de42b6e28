// Package vtpass adapts the VTpass bill payment API for transaction
// requeries.
package vtpass

import (
	"context"

	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/internal/infrastructure/providers/transport"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// Client talks to the VTpass API.
type Client struct {
	http   *transport.Client
	logger *logger.Logger
}

// NewClient creates a VTpass client.
func NewClient(cfg config.ProviderConfig, log *logger.Logger) *Client {
	return &Client{
		http:   transport.NewClient("VTpass", cfg, log),
		logger: log,
	}
}

type requeryRequest struct {
	RequestID string `json:"request_id"`
}

type requeryResponse struct {
	Code    string `json:"code"`
	Content struct {
		Transactions struct {
			Status string `json:"status"`
		} `json:"transactions"`
	} `json:"content"`
}

// CheckStatus requeries a bill payment by its request id.
func (c *Client) CheckStatus(ctx context.Context, requestID string) (reconciler.ProviderStatus, error) {
	var resp requeryResponse
	if err := c.http.DoJSON(ctx, "POST", "/api/requery", requeryRequest{RequestID: requestID}, &resp); err != nil {
		return "", err
	}

	switch resp.Content.Transactions.Status {
	case "delivered":
		return reconciler.ProviderStatusConfirmed, nil
	case "failed", "reversed":
		return reconciler.ProviderStatusFailed, nil
	default:
		return reconciler.ProviderStatusPending, nil
	}
}
