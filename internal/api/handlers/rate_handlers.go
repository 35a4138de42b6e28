package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// RateHandler writes the two price points the converter reads. The rate-feed
// job and operators push through the same endpoints.
type RateHandler struct {
	prices *repositories.AssetPriceRepository
	logger *logger.Logger
}

// NewRateHandler creates the rate handler.
func NewRateHandler(prices *repositories.AssetPriceRepository, log *logger.Logger) *RateHandler {
	return &RateHandler{prices: prices, logger: log}
}

type setPriceRequest struct {
	Currency string          `json:"currency" binding:"required"`
	USDPrice decimal.Decimal `json:"usd_price" binding:"required"`
}

// SetAssetPrice handles PUT /rates/prices.
func (h *RateHandler) SetAssetPrice(c *gin.Context) {
	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domainerrors.Validation("body", err.Error()))
		return
	}
	if !req.USDPrice.IsPositive() {
		respondError(c, domainerrors.Validation("usd_price", "price must be positive"))
		return
	}

	if err := h.prices.UpsertPrice(c.Request.Context(), req.Currency, req.USDPrice); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("asset price updated", "currency", req.Currency, "usd_price", req.USDPrice.String())
	respondSuccess(c, http.StatusOK, gin.H{"currency": req.Currency, "usd_price": req.USDPrice})
}

type setFiatRateRequest struct {
	Currency string          `json:"currency" binding:"required"`
	USDRate  decimal.Decimal `json:"usd_rate" binding:"required"`
}

// SetFiatRate handles PUT /rates/fiat.
func (h *RateHandler) SetFiatRate(c *gin.Context) {
	var req setFiatRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domainerrors.Validation("body", err.Error()))
		return
	}
	if !req.USDRate.IsPositive() {
		respondError(c, domainerrors.Validation("usd_rate", "rate must be positive"))
		return
	}

	if err := h.prices.UpsertFiatRate(c.Request.Context(), req.Currency, req.USDRate); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("fiat rate updated", "currency", req.Currency, "usd_rate", req.USDRate.String())
	respondSuccess(c, http.StatusOK, gin.H{"currency": req.Currency, "usd_rate": req.USDRate})
}
