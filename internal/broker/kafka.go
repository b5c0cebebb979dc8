package broker

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Kafka writes every event to one topic, keyed by branch id so a branch's events
// stay ordered within a partition.
type Kafka struct {
	w *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (k *Kafka) Publish(ctx context.Context, m Message) error {
	if err := k.w.WriteMessages(ctx, kafkaMessage(m)); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func kafkaMessage(m Message) kafka.Message {
	return kafka.Message{
		Key:   []byte(m.BranchID.String()),
		Value: m.Body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(m.Type)},
			{Key: "routing_key", Value: []byte(m.RoutingKey())},
		},
	}
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
