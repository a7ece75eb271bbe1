package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kirinyoku/tixledger/internal/domain"
)

type Producer struct {
	writer *kafka.Writer
}

// NewProducer initializes a producer that keys messages by event id, so all
// changes of one event land on one partition in commit order.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes one outbox message. The message type and id travel as
// headers so consumers can deduplicate redeliveries.
func (p *Producer) Publish(ctx context.Context, m domain.OutboxMessage) error {
	const op = "kafka.Producer.Publish"

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.Key),
		Value: m.Payload,
		Time:  m.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(m.Type)},
			{Key: "id", Value: []byte(m.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
