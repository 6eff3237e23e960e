package events

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
	"github.com/ecomerse-microservice/orders-microservice/internal/reliability"
)

// Payment event types carried in the stream entry's "type" field.
const (
	TypeSucceeded = "payment.succeeded"
	TypeCancelled = "payment.cancelled"
	TypeRefunded  = "payment.refunded"
	TypeFailed    = "payment.failed"
)

const (
	readBatchSize       = 64
	maxReadFailures     = 5
	readResetTimeout    = 30 * time.Second
	readFailureCooldown = time.Second
)

// Reconciler is the consumer's view of payment reconciliation.
type Reconciler interface {
	HandleSucceeded(ctx context.Context, ev orders.PaymentSucceeded) error
	HandleCancelled(ctx context.Context, ev orders.PaymentCancelled) error
	HandleRefunded(ctx context.Context, ev orders.PaymentRefunded) error
	HandleFailed(ctx context.Context, ev orders.PaymentFailed) error
}

// StreamClient is the minimal client surface used by the Consumer.
type StreamClient interface {
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

// Consumer reads payment outcome events from a Redis stream and dispatches
// them to the reconciler. Read failures are retried with backoff at the
// transport level and trip a circuit breaker when persistent; dispatch
// failures are logged and never block the stream, since events are
// fire-and-forget notifications.
type Consumer struct {
	client     StreamClient
	stream     string
	reconciler Reconciler
	retry      reliability.RetryPolicy
	breaker    *reliability.CircuitBreaker
	log        *slog.Logger

	block    time.Duration
	cooldown time.Duration
	lastID   string
}

// NewConsumer constructs a Consumer starting at new entries. log may be nil.
func NewConsumer(client StreamClient, stream string, reconciler Reconciler, retry reliability.RetryPolicy, log *slog.Logger) *Consumer {
	if stream == "" {
		stream = "payment_events"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		client:     client,
		stream:     stream,
		reconciler: reconciler,
		retry:      retry,
		breaker: reliability.NewCircuitBreaker(reliability.CircuitBreakerConfig{
			MaxFailures:  maxReadFailures,
			ResetTimeout: readResetTimeout,
		}),
		log:      log,
		block:    5 * time.Second,
		cooldown: readFailureCooldown,
		lastID:   "$",
	}
}

// Run consumes the stream until the context ends.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		var streams []redis.XStream
		err := c.retry.Do(ctx, func() error {
			return c.breaker.Execute(func() error {
				res, err := c.client.XRead(ctx, &redis.XReadArgs{
					Streams: []string{c.stream, c.lastID},
					Count:   readBatchSize,
					Block:   c.block,
				}).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						return nil
					}
					return err
				}
				streams = res
				return nil
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.ErrorContext(ctx, "payment stream read failed", "stream", c.stream, "error", err)
			if sleepErr := reliability.SleepWithContext(ctx, c.cooldown); sleepErr != nil {
				return nil
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.lastID = msg.ID
				if err := c.dispatch(ctx, msg); err != nil {
					c.log.ErrorContext(ctx, "payment event dispatch failed",
						"stream", c.stream, "entry_id", msg.ID, "error", err)
				}
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg redis.XMessage) error {
	eventType := field(msg, "type")
	orderID := field(msg, "order_id")
	if orderID == "" {
		c.log.WarnContext(ctx, "payment event without order id skipped", "entry_id", msg.ID)
		return nil
	}

	switch eventType {
	case TypeSucceeded:
		return c.reconciler.HandleSucceeded(ctx, orders.PaymentSucceeded{
			OrderID:    orderID,
			PaymentID:  field(msg, "payment_id"),
			Amount:     floatField(msg, "amount"),
			PaidAt:     timeField(msg, "paid_at"),
			ChargeID:   field(msg, "charge_id"),
			ReceiptURL: field(msg, "receipt_url"),
		})
	case TypeCancelled:
		return c.reconciler.HandleCancelled(ctx, orders.PaymentCancelled{
			OrderID:     orderID,
			PaymentID:   field(msg, "payment_id"),
			CancelledAt: timeField(msg, "cancelled_at"),
			Reason:      field(msg, "reason"),
		})
	case TypeRefunded:
		return c.reconciler.HandleRefunded(ctx, orders.PaymentRefunded{
			OrderID:    orderID,
			PaymentID:  field(msg, "payment_id"),
			RefundID:   field(msg, "refund_id"),
			Amount:     floatField(msg, "amount"),
			RefundedAt: timeField(msg, "refunded_at"),
			Reason:     field(msg, "reason"),
		})
	case TypeFailed:
		return c.reconciler.HandleFailed(ctx, orders.PaymentFailed{
			OrderID:       orderID,
			PaymentID:     field(msg, "payment_id"),
			FailureReason: field(msg, "failure_reason"),
		})
	default:
		c.log.WarnContext(ctx, "unknown payment event type skipped",
			"entry_id", msg.ID, "type", eventType)
		return nil
	}
}

func field(msg redis.XMessage, key string) string {
	raw, ok := msg.Values[key]
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return s
}

func floatField(msg redis.XMessage, key string) float64 {
	v, err := strconv.ParseFloat(field(msg, key), 64)
	if err != nil {
		return 0
	}
	return v
}

func timeField(msg redis.XMessage, key string) time.Time {
	t, err := time.Parse(time.RFC3339, field(msg, key))
	if err != nil {
		return time.Time{}
	}
	return t
}
