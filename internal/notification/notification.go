package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/metrics"
)

const (
	KindDepositReceived         = "deposit_received"
	KindDepositRequestCreated   = "deposit_request_created"
	KindDepositRequestApproved  = "deposit_request_approved"
	KindDepositRequestRejected  = "deposit_request_rejected"
	KindDepositRequestCancelled = "deposit_request_cancelled"
	KindHoldConfirmed           = "hold_confirmed"
	KindHoldReleased            = "hold_released"
	KindHoldExpired             = "hold_expired"

	// Channel is the Redis pub/sub channel notifications are published on.
	Channel = "notifications:v1"

	defaultSendTimeout = 5 * time.Second
)

// Message describes a notification payload.
type Message struct {
	Kind        string            `json:"kind"`
	Destination string            `json:"destination"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// RedisNotifier publishes notifications as JSON on a Redis channel for the
// push/email workers to consume.
type RedisNotifier struct {
	cache   *redis.Client
	channel string
}

// NewRedisNotifier constructs a publisher on the default channel.
func NewRedisNotifier(cache *redis.Client) *RedisNotifier {
	return &RedisNotifier{cache: cache, channel: Channel}
}

// Send publishes the message.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return n.cache.Publish(ctx, n.channel, payload).Err()
}

// Async delivers through the wrapped notifier on a background goroutine so a
// slow or failing downstream never affects a committed ledger operation.
// Delivery errors are logged and dropped.
type Async struct {
	next    Notifier
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsync wraps next with fire-and-forget delivery.
func NewAsync(next Notifier, logger *slog.Logger) *Async {
	return &Async{next: next, logger: logger, timeout: defaultSendTimeout}
}

// Send schedules delivery and always returns nil.
func (a *Async) Send(ctx context.Context, message Message) error {
	if a == nil || a.next == nil {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.next.Send(sendCtx, message); err != nil {
			metrics.NotificationFailuresTotal.Inc()
			if a.logger != nil {
				a.logger.Warn("notification delivery failed",
					slog.String("kind", message.Kind),
					slog.String("destination", message.Destination),
					slog.String("request_id", logging.RequestID(ctx)),
					slog.Any("error", err))
			}
		}
	}()
	return nil
}

// Wait blocks until scheduled deliveries have finished.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Fanout sends to every notifier and returns the first error.
type Fanout []Notifier

// Send delivers message to each notifier in order.
func (f Fanout) Send(ctx context.Context, message Message) error {
	var first error
	for _, n := range f {
		if err := n.Send(ctx, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}
