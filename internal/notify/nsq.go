package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
)

// Publisher is the part of *nsq.Producer the notifier needs.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// NSQNotifier publishes notifications to a topic consumed by the mailer.
type NSQNotifier struct {
	publisher Publisher
	topic     string
}

// NewNSQProducer connects to nsqd and verifies it with a ping.
func NewNSQProducer(address string) (*nsq.Producer, error) {
	producer, err := nsq.NewProducer(address, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ producer: %w", err)
	}

	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("failed to ping NSQ daemon: %w", err)
	}

	return producer, nil
}

func NewNSQNotifier(publisher Publisher, topic string) *NSQNotifier {
	return &NSQNotifier{publisher: publisher, topic: topic}
}

func (n *NSQNotifier) NotifyPayment(ctx context.Context, msg Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.publisher.Publish(n.topic, body); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
