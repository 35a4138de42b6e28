package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terescrow/ledger-service/internal/domain/services/ledger"
	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
)

func newWebhookRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	log := logger.NewNop()
	svc := reconciler.NewService(
		db,
		repositories.NewProviderEventRepository(db),
		repositories.NewTransactionRepository(db),
		repositories.NewGiftCardRepository(db),
		repositories.NewBillPaymentRepository(db),
		ledger.NewService(repositories.NewAccountRepository(db), log),
		nil, nil, nil,
		log,
	)
	handler := NewWebhookHandler(svc, log)

	router := gin.New()
	router.POST("/webhooks/palmpay", handler.PalmPay)
	router.POST("/webhooks/chain-deposit", handler.ChainDeposit)
	return router, mock
}

func TestPalmPayWebhookAcksWithLiteralBody(t *testing.T) {
	router, mock := newWebhookRouter(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provider_events")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/palmpay",
		strings.NewReader(`{"orderNo":"PP-1","orderStatus":1,"amount":100}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookAcksEvenWhenPersistenceFails(t *testing.T) {
	router, mock := newWebhookRouter(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provider_events")).
		WillReturnError(errors.New("connection reset"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/palmpay",
		strings.NewReader(`{"orderNo":"PP-2","orderStatus":1}`))
	router.ServeHTTP(w, req)

	// The provider must never see an error; its retry policy covers us.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
}

func TestChainWebhookAcksJSON(t *testing.T) {
	router, mock := newWebhookRouter(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provider_events")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chain-deposit",
		strings.NewReader(`{"txHash":"0x1","direction":"in","status":"confirmed"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
