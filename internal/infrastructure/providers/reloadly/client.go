// Package reloadly adapts the Reloadly gift card API for order status
// queries.
package reloadly

import (
	"context"
	"fmt"
	"strings"

	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/internal/infrastructure/providers/transport"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// Client talks to the Reloadly gift card API.
type Client struct {
	http   *transport.Client
	logger *logger.Logger
}

// NewClient creates a Reloadly client.
func NewClient(cfg config.ProviderConfig, log *logger.Logger) *Client {
	return &Client{
		http:   transport.NewClient("Reloadly", cfg, log),
		logger: log,
	}
}

type orderStatusResponse struct {
	TransactionID    int64  `json:"transactionId"`
	CustomIdentifier string `json:"customIdentifier"`
	Status           string `json:"status"`
}

// CheckStatus queries a gift card order by the custom identifier set at
// order time.
func (c *Client) CheckStatus(ctx context.Context, reference string) (reconciler.ProviderStatus, error) {
	var resp orderStatusResponse
	path := fmt.Sprintf("/orders/transactions?customIdentifier=%s", reference)
	if err := c.http.DoJSON(ctx, "GET", path, nil, &resp); err != nil {
		return "", err
	}

	switch strings.ToUpper(resp.Status) {
	case "SUCCESSFUL":
		return reconciler.ProviderStatusConfirmed, nil
	case "FAILED", "REFUNDED":
		return reconciler.ProviderStatusFailed, nil
	default:
		return reconciler.ProviderStatusPending, nil
	}
}
