package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditrail/internal/clock"
	"github.com/smallbiznis/creditrail/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type dispatcherStub struct {
	calls []string
	err   error
}

func (d *dispatcherStub) Dispatch(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) error {
	d.calls = append(d.calls, eventType)
	return d.err
}

func newRelayFixture(t *testing.T, dsn string, dispatcher Dispatcher, clk clock.Clock) (*Relay, *Outbox, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&OutboxEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	outbox := NewOutbox(OutboxParams{DB: db, Log: log, GenID: node, Clock: clk})
	relay := NewRelay(RelayParams{
		DB:    db,
		Log:   log,
		Clock: clk,
		Config: config.Config{Relay: config.RelayConfig{
			Enabled:     true,
			Interval:    time.Second,
			BatchSize:   10,
			MaxAttempts: 3,
		}},
		Dispatcher: dispatcher,
	})
	return relay, outbox, db
}

func TestRelayDispatchesPendingEvents(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	dispatcher := &dispatcherStub{}
	relay, outbox, db := newRelayFixture(t, "file:relay_ok?mode=memory&cache=shared", dispatcher, clk)

	orgID := snowflake.ID(7)
	require.NoError(t, outbox.Publish(context.Background(), orgID, TypeCreditGranted, map[string]any{"amount": 10}))
	require.NoError(t, outbox.Publish(context.Background(), orgID, TypeCreditDeducted, map[string]any{"amount": 3}))

	dispatched, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)
	assert.ElementsMatch(t, []string{TypeCreditGranted, TypeCreditDeducted}, dispatcher.calls)

	var rows []OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	for _, row := range rows {
		assert.Equal(t, StatusDelivered, row.Status)
		assert.Equal(t, 1, row.Attempts)
	}

	// Delivered events are not picked up again.
	dispatched, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
}

func TestRelayBacksOffAndEventuallyFails(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	dispatcher := &dispatcherStub{err: errors.New("endpoint down")}
	relay, outbox, db := newRelayFixture(t, "file:relay_fail?mode=memory&cache=shared", dispatcher, clk)

	require.NoError(t, outbox.Publish(context.Background(), snowflake.ID(7), TypeCreditRefunded, map[string]any{"amount": 1}))

	// First attempt fails and schedules a retry.
	dispatched, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)

	var row OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, StatusPending, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.LastError)

	// Not due yet, so the next run leaves it alone.
	dispatched, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
	assert.Len(t, dispatcher.calls, 1)

	// Walk the clock through the remaining attempts until max is reached.
	clk.Advance(RetryDelay(1))
	_, err = relay.RunOnce(context.Background())
	require.NoError(t, err)

	clk.Advance(RetryDelay(2))
	_, err = relay.RunOnce(context.Background())
	require.NoError(t, err)

	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, StatusFailed, row.Status)
	assert.Equal(t, 3, row.Attempts)
	assert.Len(t, dispatcher.calls, 3)
}
