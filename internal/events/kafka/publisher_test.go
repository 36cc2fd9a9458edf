package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleEvent() leave.Event {
	return leave.Event{
		Type: leave.EventRequestApproved,
		Request: leave.LeaveRequest{
			ID:         "0191f3c2-0000-7000-8000-000000000001",
			EmployeeID: "emp-1",
			LeaveType:  "pto",
			Period:     2025,
			StartDate:  time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC),
			TotalDays:  decimal.NewFromInt(5),
			Status:     leave.StatusApproved,
		},
		ActorID:    "mgr-1",
		OccurredAt: time.Date(2025, 2, 20, 9, 30, 0, 0, time.UTC),
	}
}

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "0191f3c2-0000-7000-8000-000000000001", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "leave.request.approved", string(msg.Headers[0].Value))

	var payload events.LeaveRequestEvent
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "approved", payload.Status)
	assert.Equal(t, "2025-03-03", payload.StartDate)
	assert.Equal(t, "2025-03-07", payload.EndDate)
	assert.Equal(t, "5", payload.TotalDays)
	assert.Equal(t, "mgr-1", payload.ActorID)
}

func TestPublisher_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := &Publisher{writer: w}

	err := p.Publish(context.Background(), sampleEvent())
	assert.EqualError(t, err, "broker unavailable")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
