package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/pkg/logger"
)

const maxWebhookBody = 1 << 20

// WebhookHandler ingests provider callbacks. The contract with every
// provider is the same: persist the raw payload, acknowledge with the
// provider's expected body, HTTP 200, no matter what happened internally.
// Application runs later in the worker pool.
type WebhookHandler struct {
	reconciler *reconciler.Service
	logger     *logger.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(reconcilerService *reconciler.Service, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconcilerService, logger: log}
}

func (h *WebhookHandler) ingest(c *gin.Context, provider, signatureHeader string) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "provider", provider, "error", err)
		payload = []byte("{}")
	}

	headers, err := json.Marshal(c.Request.Header)
	if err != nil {
		headers = []byte("{}")
	}

	h.reconciler.Ingest(
		c.Request.Context(),
		provider,
		payload,
		headers,
		c.ClientIP(),
		c.GetHeader(signatureHeader),
	)
}

// PalmPay handles POST /webhooks/palmpay. PalmPay requires the literal
// body "success" on acknowledgment.
func (h *WebhookHandler) PalmPay(c *gin.Context) {
	h.ingest(c, entities.ProviderPalmPay, "X-PalmPay-Signature")
	c.String(http.StatusOK, "success")
}

// Reloadly handles POST /webhooks/reloadly.
func (h *WebhookHandler) Reloadly(c *gin.Context) {
	h.ingest(c, entities.ProviderReloadly, "X-Reloadly-Signature")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// VTPass handles POST /webhooks/vtpass.
func (h *WebhookHandler) VTPass(c *gin.Context) {
	h.ingest(c, entities.ProviderVTPass, "X-VTpass-Signature")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ChainDeposit handles POST /webhooks/chain-deposit: inbound deposits and
// outbound transfer confirmations from the chain gateway.
func (h *WebhookHandler) ChainDeposit(c *gin.Context) {
	h.ingest(c, entities.ProviderChain, "X-Gateway-Signature")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
