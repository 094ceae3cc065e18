package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON events to Kafka. The topic is chosen per message
// so one writer serves every stream.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := kafka.Message{Topic: topic, Value: data}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// RealtimeChannel pushes notifications onto a topic keyed by account, so a
// websocket gateway can fan them out to connected sessions in order.
type RealtimeChannel struct {
	publisher interfaces.EventPublisher
	topic     string
}

func NewRealtimeChannel(publisher interfaces.EventPublisher, topic string) *RealtimeChannel {
	return &RealtimeChannel{publisher: publisher, topic: topic}
}

func (c *RealtimeChannel) Publish(ctx context.Context, accountID string, n models.Notification) error {
	return c.publisher.Publish(ctx, c.topic, accountID, n)
}

var (
	_ interfaces.EventPublisher  = (*Publisher)(nil)
	_ interfaces.RealtimeChannel = (*RealtimeChannel)(nil)
)
