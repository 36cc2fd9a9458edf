package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/events"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RequestProcessor is the part of leave.LeaveService the consumer drives.
type RequestProcessor interface {
	MarkProcessed(ctx context.Context, actor user.Actor, requestID string) (leave.LeaveRequestResponse, error)
}

// ReconciliationConsumer marks approved requests processed when payroll
// reports them reconciled.
type ReconciliationConsumer struct {
	reader    messageReader
	processor RequestProcessor
	logger    *slog.Logger

	// A message that fails with a retryable error is retried in place, with
	// the delay doubling from retryBase up to retryMax, so its offset is never
	// committed past.
	retryBase time.Duration
	retryMax  time.Duration
}

const (
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryMax  = 30 * time.Second
)

func NewReconciliationConsumer(brokers []string, topic, groupID string, processor RequestProcessor, logger *slog.Logger) *ReconciliationConsumer {
	return newReconciliationConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	}), processor, logger)
}

func newReconciliationConsumer(reader messageReader, processor RequestProcessor, logger *slog.Logger) *ReconciliationConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconciliationConsumer{
		reader:    reader,
		processor: processor,
		logger:    logger.With("component", "kafka.consumer.reconciliation"),
		retryBase: defaultRetryBase,
		retryMax:  defaultRetryMax,
	}
}

// Run consumes until ctx is cancelled.
func (c *ReconciliationConsumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "reconciliation consumer started")

	fetchDelay := c.retryBase
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("reconciliation consumer stopped")
				return nil
			}
			c.logger.ErrorContext(ctx, "fetch reconciliation message failed", "error", err, "retry_in", fetchDelay.String())
			if !sleep(ctx, fetchDelay) {
				c.logger.Info("reconciliation consumer stopped")
				return nil
			}
			fetchDelay = c.nextDelay(fetchDelay)
			continue
		}
		fetchDelay = c.retryBase

		if !c.process(ctx, msg) {
			c.logger.Info("reconciliation consumer stopped")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "commit reconciliation message failed", "error", err)
		}
	}
}

// process handles msg until it may be committed. It returns false only when
// ctx ends first, leaving msg uncommitted.
func (c *ReconciliationConsumer) process(ctx context.Context, msg kafka.Message) bool {
	delay := c.retryBase
	for attempt := 1; ; attempt++ {
		if c.handleMessage(ctx, msg) {
			return true
		}
		c.logger.WarnContext(ctx, "retrying reconciliation message",
			"offset", msg.Offset,
			"attempt", attempt,
			"retry_in", delay.String(),
		)
		if !sleep(ctx, delay) {
			return false
		}
		delay = c.nextDelay(delay)
	}
}

func (c *ReconciliationConsumer) nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > c.retryMax {
		return c.retryMax
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// handleMessage reports whether msg is done with and may be committed.
func (c *ReconciliationConsumer) handleMessage(ctx context.Context, msg kafka.Message) bool {
	var event events.ReconciliationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil || event.RequestID == "" {
		c.logger.ErrorContext(ctx, "decode reconciliation event failed", "offset", msg.Offset, "error", err)
		return true
	}

	processedBy := event.ProcessedBy
	if processedBy == "" {
		processedBy = "payroll"
	}

	_, err := c.processor.MarkProcessed(ctx, user.System(processedBy), event.RequestID)
	switch {
	case err == nil:
		c.logger.InfoContext(ctx, "leave request processed from reconciliation event", "request_id", event.RequestID)
		return true
	case errors.Is(err, leave.ErrInvalidTransition):
		// Redelivered event, or the request left approved some other way.
		c.logger.WarnContext(ctx, "reconciliation event skipped", "request_id", event.RequestID, "error", err)
		return true
	case errors.Is(err, leave.ErrNotFound):
		c.logger.WarnContext(ctx, "reconciliation event for unknown request", "request_id", event.RequestID)
		return true
	default:
		c.logger.ErrorContext(ctx, "mark leave request processed failed", "request_id", event.RequestID, "error", err)
		return false
	}
}

func (c *ReconciliationConsumer) Close() error {
	return c.reader.Close()
}
