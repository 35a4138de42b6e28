package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/terescrow/ledger-service/internal/api/middleware"
	domainerrors "github.com/terescrow/ledger-service/internal/domain/errors"
)

// respondSuccess writes the standard success envelope.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError maps a domain error onto an HTTP status and the error
// envelope. The split matters: rollback failures say "nothing changed",
// ambiguous outcomes say "processing" and must never look like failures.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case domainerrors.IsValidation(err):
		status = http.StatusBadRequest
	case domainerrors.IsNotFound(err):
		status = http.StatusNotFound
	case domainerrors.IsInsufficientBalance(err):
		status = http.StatusUnprocessableEntity
	case domainerrors.IsRateUnavailable(err):
		status = http.StatusServiceUnavailable
	case domainerrors.IsProviderUnavailable(err):
		// Fully rolled back; safe for the client to retry.
		status = http.StatusServiceUnavailable
	case domainerrors.IsAmbiguous(err):
		// Not a failure: the transaction is recorded pending.
		status = http.StatusAccepted
	case domainerrors.Code(err) == "INVALID_PIN":
		status = http.StatusForbidden
	case domainerrors.Code(err) == "ACCOUNT_FROZEN":
		status = http.StatusForbidden
	default:
		message = "internal server error"
	}

	body := gin.H{
		"success": false,
		"error": gin.H{
			"code":    domainerrors.Code(err),
			"message": message,
		},
	}
	if details := domainerrors.Details(err); details != nil {
		body["error"].(gin.H)["details"] = details
	}
	c.JSON(status, body)
}

// currentUserID reads the authenticated user id set by the auth middleware.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
