package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/events"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends leave events keyed by request id, so every change of one
// request lands on the same partition in order.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, event leave.Event) error {
	data, err := json.Marshal(events.NewLeaveRequestEvent(event))
	if err != nil {
		return fmt.Errorf("encode leave event: %w", err)
	}

	return p.writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(event.Request.ID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.Type)},
			},
			Time: event.OccurredAt,
		},
	)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ leave.EventPublisher = (*Publisher)(nil)
