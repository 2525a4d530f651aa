package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditrail/internal/balancelock"
	"github.com/smallbiznis/creditrail/internal/clock"
	"github.com/smallbiznis/creditrail/internal/config"
	creditsdomain "github.com/smallbiznis/creditrail/internal/credits/domain"
	creditsrepository "github.com/smallbiznis/creditrail/internal/credits/repository"
	creditsservice "github.com/smallbiznis/creditrail/internal/credits/service"
	"github.com/smallbiznis/creditrail/internal/events"
	productdomain "github.com/smallbiznis/creditrail/internal/product/domain"
	productrepository "github.com/smallbiznis/creditrail/internal/product/repository"
	productservice "github.com/smallbiznis/creditrail/internal/product/service"
	webhookdomain "github.com/smallbiznis/creditrail/internal/webhook/domain"
	webhookrepository "github.com/smallbiznis/creditrail/internal/webhook/repository"
	webhookservice "github.com/smallbiznis/creditrail/internal/webhook/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type apiFixture struct {
	engine     *gin.Engine
	orgID      snowflake.ID
	customerID string
	productID  string
}

func newAPIFixture(t *testing.T, dsn string) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&productdomain.Product{},
		&creditsdomain.CreditBalance{},
		&creditsdomain.CreditTransaction{},
		&webhookdomain.Webhook{},
		&webhookdomain.WebhookLog{},
		&events.OutboxEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewSystemClock()
	cfg := config.Config{Webhook: config.WebhookConfig{Timeout: 5 * time.Second, UserAgent: "creditrail-webhooks/1.0"}}

	productSvc := productservice.New(productservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: productrepository.Provide(),
	})
	creditsSvc := creditsservice.New(creditsservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Guard:       balancelock.NewGuard(config.Config{}),
		Outbox:      events.NewOutbox(events.OutboxParams{DB: db, Log: log, GenID: node, Clock: clk}),
		Repo:        creditsrepository.Provide(),
		ProductRepo: productrepository.Provide(),
	})
	webhookSvc := webhookservice.New(webhookservice.Params{
		DB: db, Log: log, Cfg: cfg, GenID: node, Clock: clk, Repo: webhookrepository.Provide(),
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	orgID := node.Generate()
	srv := NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		DB:         db,
		GenID:      node,
		CreditsSvc: creditsSvc,
		ProductSvc: productSvc,
		WebhookSvc: webhookSvc,
	})

	product, err := srv.productSvc.Create(context.Background(), orgID, productdomain.CreateRequest{
		Name:        "api-calls",
		BillingType: "metered",
	})
	require.NoError(t, err)

	return &apiFixture{
		engine:     engine,
		orgID:      orgID,
		customerID: node.Generate().String(),
		productID:  product.ID,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organization-Id", f.orgID.String())

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) transactionPath() string {
	return "/v1/customers/" + f.customerID + "/credits/" + f.productID + "/transaction"
}

func TestCreateCreditTransactionEndToEnd(t *testing.T) {
	f := newAPIFixture(t, "file:server_txn?mode=memory&cache=shared")

	rec := f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "grant", "amount": 100})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "deduct", "amount": 25, "reason": "api usage"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload struct {
		Data struct {
			Type         string `json:"type"`
			Amount       int64  `json:"amount"`
			BalanceAfter int64  `json:"balance_after"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "deduct", payload.Data.Type)
	assert.Equal(t, int64(25), payload.Data.Amount)
	assert.Equal(t, int64(75), payload.Data.BalanceAfter)

	rec = f.do(t, http.MethodGet, "/v1/customers/"+f.customerID+"/credits/"+f.productID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var balance struct {
		Data struct {
			Balance  int64 `json:"balance"`
			Consumed int64 `json:"consumed"`
			Granted  int64 `json:"granted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, int64(75), balance.Data.Balance)
	assert.Equal(t, int64(25), balance.Data.Consumed)
	assert.Equal(t, int64(100), balance.Data.Granted)
}

func TestInsufficientCreditsReturnsPaymentRequired(t *testing.T) {
	f := newAPIFixture(t, "file:server_402?mode=memory&cache=shared")

	rec := f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "grant", "amount": 5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "deduct", "amount": 10})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var payload struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "insufficient_credits", payload.Error.Type)
}

func TestTransactionValidation(t *testing.T) {
	f := newAPIFixture(t, "file:server_validation?mode=memory&cache=shared")

	rec := f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "transfer", "amount": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "grant", "amount": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissingOrganizationHeaderRejected(t *testing.T) {
	f := newAPIFixture(t, "file:server_noorg?mode=memory&cache=shared")

	req := httptest.NewRequest(http.MethodGet, "/v1/products", nil)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownBalanceReturnsNotFound(t *testing.T) {
	f := newAPIFixture(t, "file:server_nobalance?mode=memory&cache=shared")

	rec := f.do(t, http.MethodGet, "/v1/customers/"+f.customerID+"/credits/"+f.productID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deducting before any grant created the balance is 404, not 402.
	rec = f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "deduct", "amount": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCreditTransactions(t *testing.T) {
	f := newAPIFixture(t, "file:server_list?mode=memory&cache=shared")

	rec := f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "grant", "amount": 50})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, f.transactionPath(), gin.H{"type": "deduct", "amount": 5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/customers/"+f.customerID+"/credits/"+f.productID+"/transactions?page_size=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload struct {
		Data struct {
			Transactions []struct {
				Type string `json:"type"`
			} `json:"transactions"`
			PageInfo struct {
				HasMore bool `json:"has_more"`
			} `json:"page_info"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Data.Transactions, 2)
	assert.Equal(t, "deduct", payload.Data.Transactions[0].Type)
	assert.False(t, payload.Data.PageInfo.HasMore)
}

func TestWebhookLifecycle(t *testing.T) {
	f := newAPIFixture(t, "file:server_webhooks?mode=memory&cache=shared")

	rec := f.do(t, http.MethodPost, "/v1/webhooks", gin.H{
		"url":    "https://example.com/hooks",
		"events": []string{"credit.deducted"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			ID     string `json:"id"`
			Secret string `json:"secret"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Data.Secret)

	// The secret is write-only after creation.
	rec = f.do(t, http.MethodGet, "/v1/webhooks/"+created.Data.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched struct {
		Data struct {
			Secret string `json:"secret"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Empty(t, fetched.Data.Secret)

	rec = f.do(t, http.MethodPost, "/v1/webhooks/"+created.Data.ID+"/rotate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rotated struct {
		Data struct {
			Secret string `json:"secret"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEmpty(t, rotated.Data.Secret)
	assert.NotEqual(t, created.Data.Secret, rotated.Data.Secret)

	rec = f.do(t, http.MethodDelete, "/v1/webhooks/"+created.Data.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/webhooks/"+created.Data.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
