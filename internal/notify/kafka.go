package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each notification's payload as a JSON message keyed by
// Notification.Key.
type Kafka struct {
	w     messageWriter
	topic string
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		w: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		topic: topic,
	}
}

func (k *Kafka) Name() string {
	return "kafka"
}

func (k *Kafka) Notify(ctx context.Context, batch []Notification) error {
	if len(batch) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(batch))
	for _, n := range batch {
		value, err := json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(n.Key), Value: value})
	}
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write to %s: %w", k.topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
