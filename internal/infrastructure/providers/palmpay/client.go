// Package palmpay adapts the PalmPay merchant API for fiat collection
// status queries.
package palmpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/internal/infrastructure/providers/transport"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// Order statuses returned by the merchant query endpoint.
const (
	orderStatusSuccess = 1
	orderStatusFailed  = 2
)

// Client talks to PalmPay's merchant API.
type Client struct {
	http      *transport.Client
	apiSecret string
	logger    *logger.Logger
}

// NewClient creates a PalmPay client.
func NewClient(cfg config.ProviderConfig, log *logger.Logger) *Client {
	return &Client{
		http:      transport.NewClient("PalmPay", cfg, log),
		apiSecret: cfg.APISecret,
		logger:    log,
	}
}

type orderQueryRequest struct {
	OrderNo string `json:"orderNo"`
	Sign    string `json:"sign"`
}

type orderQueryResponse struct {
	OrderNo     string `json:"orderNo"`
	OrderStatus int    `json:"orderStatus"`
	Message     string `json:"message,omitempty"`
}

// CheckStatus queries a collection order's outcome.
func (c *Client) CheckStatus(ctx context.Context, orderNo string) (reconciler.ProviderStatus, error) {
	req := orderQueryRequest{OrderNo: orderNo, Sign: c.sign(orderNo)}

	var resp orderQueryResponse
	if err := c.http.DoJSON(ctx, "POST", "/api/v2/payment/merchant/order/query", req, &resp); err != nil {
		return "", err
	}

	switch resp.OrderStatus {
	case orderStatusSuccess:
		return reconciler.ProviderStatusConfirmed, nil
	case orderStatusFailed:
		return reconciler.ProviderStatusFailed, nil
	default:
		return reconciler.ProviderStatusPending, nil
	}
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
