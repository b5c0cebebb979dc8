// Package broker forwards order events from the in-process bus to an external
// message broker (RabbitMQ topic exchange or Kafka topic).
package broker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/config"
	"github.com/branchline/api/internal/events"
)

// Message is one serialized event ready for a broker.
type Message struct {
	Type     events.Type
	BranchID uuid.UUID
	Body     []byte
}

// RoutingKey is branch.<branch id>.<event type>, e.g. branch.<id>.order.created.
func (m Message) RoutingKey() string {
	return fmt.Sprintf("branch.%s.%s", m.BranchID, m.Type)
}

// Publisher delivers messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Close() error
}

// New returns the publisher selected by EVENT_BROKER, or nil for "none".
func New(cfg *config.Config, log *zap.Logger) (Publisher, error) {
	switch cfg.EventBroker {
	case config.BrokerRabbitMQ:
		r, err := NewRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQExchange, log)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.BrokerKafka:
		return NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.BrokerNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown event broker %q", cfg.EventBroker)
}
