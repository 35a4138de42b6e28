package handlers

import (
	"net/http"
	"unicode"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// UserHandler serves the transaction-PIN surface.
type UserHandler struct {
	users  *repositories.UserRepository
	logger *logger.Logger
}

// NewUserHandler creates the user handler.
func NewUserHandler(users *repositories.UserRepository, log *logger.Logger) *UserHandler {
	return &UserHandler{users: users, logger: log}
}

type setPinRequest struct {
	Pin string `json:"pin" binding:"required"`
}

// SetPin handles PUT /users/pin: stores a new transaction PIN for the
// authenticated user. The PIN gates Execute, so only its bcrypt hash is
// ever persisted.
func (h *UserHandler) SetPin(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, domainerrors.Validation("auth", "missing authenticated user"))
		return
	}

	var req setPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domainerrors.Validation("body", err.Error()))
		return
	}
	if err := validatePin(req.Pin); err != nil {
		respondError(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Pin), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.users.SetPinHash(c.Request.Context(), userID, string(hash)); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("transaction pin updated", "user_id", userID)
	respondSuccess(c, http.StatusOK, gin.H{"message": "transaction pin updated"})
}

func validatePin(pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return domainerrors.Validation("pin", "pin must be 4 to 6 digits")
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return domainerrors.Validation("pin", "pin must contain only digits")
		}
	}
	return nil
}
