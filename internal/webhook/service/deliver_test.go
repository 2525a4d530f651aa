package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditrail/internal/clock"
	"github.com/smallbiznis/creditrail/internal/config"
	webhookdomain "github.com/smallbiznis/creditrail/internal/webhook/domain"
	"github.com/smallbiznis/creditrail/internal/webhook/repository"
	"github.com/smallbiznis/creditrail/internal/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, dsn string) (webhookdomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&webhookdomain.Webhook{}, &webhookdomain.WebhookLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   config.Config{Webhook: config.WebhookConfig{Timeout: 5 * time.Second, UserAgent: "creditrail-webhooks/1.0"}},
		GenID: node,
		Clock: clock.NewSystemClock(),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func countLogs(t *testing.T, db *gorm.DB) []webhookdomain.WebhookLog {
	t.Helper()
	var logs []webhookdomain.WebhookLog
	require.NoError(t, db.Find(&logs).Error)
	return logs
}

func TestDispatchSignsAndLogsSuccess(t *testing.T) {
	var gotBody []byte
	var gotSig string
	var gotEvent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(signature.Header)
		gotEvent = r.Header.Get("X-Creditrail-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, db := newTestService(t, "file:webhook_dispatch_ok?mode=memory&cache=shared")
	orgID := snowflake.ID(42)

	created, err := svc.Create(context.Background(), orgID, webhookdomain.CreateRequest{
		URL:    server.URL,
		Events: []string{"credit.deducted"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.Secret)

	err = svc.Dispatch(context.Background(), orgID, "credit.deducted", map[string]any{
		"customer_id": "cus_1",
		"amount":      3,
	})
	require.NoError(t, err)

	// The delivered body verifies against the endpoint secret.
	require.NotEmpty(t, gotSig)
	assert.Equal(t, "credit.deducted", gotEvent)
	assert.NoError(t, signature.Verify(gotBody, created.Secret, gotSig, time.Now()))

	logs := countLogs(t, db)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].StatusCode)
	assert.Equal(t, http.StatusOK, *logs[0].StatusCode)
	assert.Nil(t, logs[0].ErrorMessage)
	assert.Equal(t, "credit.deducted", logs[0].EventType)

	// The log keeps the envelope byte-for-byte as it was signed and sent,
	// so the delivery can be replayed later.
	assert.Equal(t, gotBody, []byte(logs[0].Payload))
	assert.NoError(t, signature.Verify(logs[0].Payload, created.Secret, gotSig, time.Now()))
}

func TestDispatchLogsAndReturnsErrorOnFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc, db := newTestService(t, "file:webhook_dispatch_500?mode=memory&cache=shared")
	orgID := snowflake.ID(42)

	_, err := svc.Create(context.Background(), orgID, webhookdomain.CreateRequest{URL: server.URL})
	require.NoError(t, err)

	err = svc.Dispatch(context.Background(), orgID, "credit.granted", map[string]any{"amount": 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, webhookdomain.ErrDeliveryFailed)

	logs := countLogs(t, db)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].StatusCode)
	assert.Equal(t, http.StatusInternalServerError, *logs[0].StatusCode)
	require.NotNil(t, logs[0].ErrorMessage)
}

func TestDispatchLogsConnectionFailure(t *testing.T) {
	svc, db := newTestService(t, "file:webhook_dispatch_conn?mode=memory&cache=shared")
	orgID := snowflake.ID(42)

	// Reserved TEST-NET address, nothing listens there.
	_, err := svc.Create(context.Background(), orgID, webhookdomain.CreateRequest{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	err = svc.Dispatch(context.Background(), orgID, "credit.refunded", map[string]any{"amount": 1})
	require.Error(t, err)

	logs := countLogs(t, db)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].StatusCode)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.NotEmpty(t, *logs[0].ErrorMessage)

	// The envelope is captured even when the request never reached the host.
	var envelope webhookdomain.Envelope
	require.NoError(t, json.Unmarshal(logs[0].Payload, &envelope))
	assert.Equal(t, "credit.refunded", envelope.Type)
}

func TestDispatchSkipsUnsubscribedAndDisabled(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, db := newTestService(t, "file:webhook_dispatch_filter?mode=memory&cache=shared")
	orgID := snowflake.ID(42)

	subscribed, err := svc.Create(context.Background(), orgID, webhookdomain.CreateRequest{
		URL:    server.URL,
		Events: []string{"credit.granted"},
	})
	require.NoError(t, err)

	disabled, err := svc.Create(context.Background(), orgID, webhookdomain.CreateRequest{URL: server.URL})
	require.NoError(t, err)
	isDisabled := true
	_, err = svc.Update(context.Background(), orgID, disabled.ID, webhookdomain.UpdateRequest{IsDisabled: &isDisabled})
	require.NoError(t, err)

	require.NoError(t, svc.Dispatch(context.Background(), orgID, "credit.deducted", map[string]any{"amount": 1}))
	assert.Equal(t, 0, hits)

	require.NoError(t, svc.Dispatch(context.Background(), orgID, "credit.granted", map[string]any{"amount": 1}))
	assert.Equal(t, 1, hits)

	logs := countLogs(t, db)
	require.Len(t, logs, 1)
	assert.Equal(t, subscribed.ID, logs[0].WebhookID.String())
}

func TestDeliveryDurationUsesInjectedClock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db, err := gorm.Open(sqlite.Open("file:webhook_fakeclock?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&webhookdomain.Webhook{}, &webhookdomain.WebhookLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	frozen := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   config.Config{Webhook: config.WebhookConfig{Timeout: 5 * time.Second, UserAgent: "creditrail-webhooks/1.0"}},
		GenID: node,
		Clock: clock.NewFakeClock(frozen),
		Repo:  repository.Provide(),
	})

	orgID := snowflake.ID(42)
	_, err = svc.Create(context.Background(), orgID, webhookdomain.CreateRequest{URL: server.URL})
	require.NoError(t, err)
	require.NoError(t, svc.Dispatch(context.Background(), orgID, "credit.granted", map[string]any{"amount": 1}))

	// A clock that never advances records a zero duration, not the gap
	// between the frozen time and the wall clock.
	logs := countLogs(t, db)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(0), logs[0].DurationMs)
	assert.True(t, frozen.Equal(logs[0].CreatedAt))
}

func TestRotateSecretInvalidatesOldSignatures(t *testing.T) {
	svc, _ := newTestService(t, "file:webhook_rotate?mode=memory&cache=shared")
	orgID := snowflake.ID(42)

	created, err := svc.Create(context.Background(), orgID, webhookdomain.CreateRequest{URL: "https://example.com/hooks"})
	require.NoError(t, err)

	rotated, err := svc.RotateSecret(context.Background(), orgID, created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.Secret)
	assert.NotEqual(t, created.Secret, rotated.Secret)

	payload := []byte("payload")
	now := time.Now()
	header := signature.Sign(payload, created.Secret, now)
	assert.Error(t, signature.Verify(payload, rotated.Secret, header, now))
}
