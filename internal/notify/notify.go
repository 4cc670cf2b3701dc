// Package notify tells users about balance changes after the change committed.
// Delivery is best effort and never feeds back into the financial transaction.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"credit_ledger/internal/domain"
	"credit_ledger/internal/money"
)

// Event is one balance change worth telling the user about.
type Event struct {
	UserID     uint                   `json:"user_id"`
	Type       domain.TransactionType `json:"type"`
	Amount     money.Credits          `json:"amount"`
	Balance    money.Credits          `json:"balance"`
	EntryID    uint                   `json:"entry_id"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Notifier delivers one event.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// RedisNotifier publishes events for the email service to pick up.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

// NewRedisNotifier publishes on channel.
func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

// Notify publishes ev as JSON.
func (n *RedisNotifier) Notify(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, b).Err()
}

// LogNotifier only logs. Used when no queue is configured.
type LogNotifier struct{}

// Notify logs ev.
func (LogNotifier) Notify(_ context.Context, ev Event) error {
	logrus.WithFields(logrus.Fields{
		"user_id": ev.UserID,
		"type":    ev.Type,
		"amount":  ev.Amount,
		"balance": ev.Balance,
	}).Info("Balance notification")
	return nil
}

// Dispatcher sends events in the background once the caller has committed.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher bounds each delivery by timeout.
func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	return &Dispatcher{notifier: n, timeout: timeout}
}

// After queues ev for delivery and returns immediately. Failures are logged.
func (d *Dispatcher) After(ev Event) {
	if d == nil || d.notifier == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, ev); err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id":  ev.UserID,
				"entry_id": ev.EntryID,
				"error":    err.Error(),
			}).Warn("Notification failed")
		}
	}()
}

// Wait blocks until queued notifications finished. Called on shutdown.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
