package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/domain/services/history"
	"github.com/terescrow/ledger-service/internal/domain/services/ledger"
	"github.com/terescrow/ledger-service/internal/domain/services/orchestrator"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// TransactionHandler serves the quote/preview/execute pipeline, balances
// and the unified history surface.
type TransactionHandler struct {
	orchestrator *orchestrator.Service
	ledger       *ledger.Service
	history      *history.Service
	logger       *logger.Logger
}

// NewTransactionHandler creates the transaction handler.
func NewTransactionHandler(
	orchestratorService *orchestrator.Service,
	ledgerService *ledger.Service,
	historyService *history.Service,
	log *logger.Logger,
) *TransactionHandler {
	return &TransactionHandler{
		orchestrator: orchestratorService,
		ledger:       ledgerService,
		history:      historyService,
		logger:       log,
	}
}

func parseKind(c *gin.Context) (entities.TransactionKind, bool) {
	kind := entities.TransactionKind(c.Param("kind"))
	switch kind {
	case entities.TransactionKindBuy, entities.TransactionKindSell,
		entities.TransactionKindSwap, entities.TransactionKindSend:
		return kind, true
	default:
		respondError(c, domainerrors.Validation("kind", "unknown operation kind: "+string(kind)))
		return "", false
	}
}

func bindTradeRequest(c *gin.Context) (*entities.TradeRequest, bool) {
	var req entities.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domainerrors.Validation("body", err.Error()))
		return nil, false
	}
	return &req, true
}

// Quote handles POST /transactions/:kind/quote.
func (h *TransactionHandler) Quote(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	req, ok := bindTradeRequest(c)
	if !ok {
		return
	}

	quote, err := h.orchestrator.Quote(c.Request.Context(), kind, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, quote)
}

// Preview handles POST /transactions/:kind/preview.
func (h *TransactionHandler) Preview(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, domainerrors.Validation("auth", "missing authenticated user"))
		return
	}
	req, ok := bindTradeRequest(c)
	if !ok {
		return
	}

	preview, err := h.orchestrator.Preview(c.Request.Context(), kind, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, preview)
}

// Execute handles POST /transactions/:kind/execute. A pending result means
// the operation committed with its outcome owned by reconciliation, so it
// renders as 202 rather than 200.
func (h *TransactionHandler) Execute(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, domainerrors.Validation("auth", "missing authenticated user"))
		return
	}
	req, ok := bindTradeRequest(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.Execute(c.Request.Context(), kind, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Status == entities.TransactionStatusPending {
		status = http.StatusAccepted
	}
	respondSuccess(c, status, result)
}

// Balances handles GET /balances.
func (h *TransactionHandler) Balances(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, domainerrors.Validation("auth", "missing authenticated user"))
		return
	}

	balances, err := h.ledger.ListBalances(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"balances": balances})
}

// DepositAddress handles GET /balances/deposit-address. Provisions the
// address on first use.
func (h *TransactionHandler) DepositAddress(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, domainerrors.Validation("auth", "missing authenticated user"))
		return
	}

	currency := c.Query("currency")
	chain := c.Query("chain")

	address, err := h.orchestrator.DepositAddress(c.Request.Context(), userID, currency, chain)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"currency": currency,
		"chain":    chain,
		"address":  address,
	})
}

// List handles GET /transactions with the unified history filters.
func (h *TransactionHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, domainerrors.Validation("auth", "missing authenticated user"))
		return
	}

	filter, err := buildHistoryFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	filter.UserID = userID

	rows, pagination, err := h.history.List(c.Request.Context(), *filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"transactions": rows,
		"pagination":   pagination,
	})
}

// Stats handles GET /transactions/stats.
func (h *TransactionHandler) Stats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, domainerrors.Validation("auth", "missing authenticated user"))
		return
	}

	stats, err := h.history.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"stats": stats})
}

func buildHistoryFilter(c *gin.Context) (*entities.HistoryFilter, error) {
	filter := &entities.HistoryFilter{
		Type:   c.Query("type"),
		Search: c.Query("search"),
	}

	if niche := c.Query("niche"); niche != "" {
		n := entities.Niche(niche)
		if err := n.Validate(); err != nil {
			return nil, domainerrors.Validation("niche", err.Error())
		}
		filter.Niche = n
	}

	if status := c.Query("status"); status != "" {
		s := entities.UnifiedStatus(status)
		switch s {
		case entities.UnifiedStatusPending, entities.UnifiedStatusSuccessful, entities.UnifiedStatusDeclined:
			filter.Status = s
		default:
			return nil, domainerrors.Validation("status", "unknown status: "+status)
		}
	}

	if raw := c.Query("startDate"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, domainerrors.Validation("startDate", "must be RFC3339")
		}
		filter.StartDate = &t
	}
	if raw := c.Query("endDate"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, domainerrors.Validation("endDate", "must be RFC3339")
		}
		filter.EndDate = &t
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return nil, domainerrors.Validation("page", "must be a positive integer")
		}
		filter.Page = page
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return nil, domainerrors.Validation("limit", "must be a positive integer")
		}
		filter.Limit = limit
	}

	return filter, nil
}
