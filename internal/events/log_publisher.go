package events

import (
	"context"
	"log/slog"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
)

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event leave.Event) error {
	payload := NewLeaveRequestEvent(event)
	p.logger.InfoContext(ctx, "Leave event",
		"event_type", payload.EventType,
		"request_id", payload.RequestID,
		"employee_id", payload.EmployeeID,
		"status", payload.Status,
		"total_days", payload.TotalDays,
		"actor_id", payload.ActorID,
	)
	return nil
}

var _ leave.EventPublisher = (*LogPublisher)(nil)
