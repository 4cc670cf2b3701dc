package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit_ledger/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestDispatcherDelivers(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, time.Second)

	d.After(Event{UserID: 1, Type: domain.TxAdminGrant, Amount: 10})
	d.Wait()

	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].OccurredAt.IsZero())
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	d := NewDispatcher(&recorder{err: errors.New("smtp down")}, time.Second)
	assert.NotPanics(t, func() {
		d.After(Event{UserID: 1})
		d.Wait()
	})
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.After(Event{UserID: 1})
		d.Wait()
	})
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "wallet:notifications")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(rdb, "wallet:notifications")
	require.NoError(t, n.Notify(ctx, Event{UserID: 9, Type: domain.TxCredit, Amount: 100, Balance: 600}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, uint(9), got.UserID)
	assert.Equal(t, domain.TxCredit, got.Type)
}
