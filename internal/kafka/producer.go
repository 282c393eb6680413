package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	kafkago "github.com/segmentio/kafka-go"
)

// Producer forwards notification records to the delivery collaborator's topic.
type Producer struct {
	writer *kafkago.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
	return &Producer{writer: w, topic: topic}
}

// PublishNotifications writes the batch in one request. Records are keyed by
// recipient so one user's notices stay ordered.
func (p *Producer) PublishNotifications(ctx context.Context, ns ...*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(ns))
	for _, n := range ns {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(n.UserID),
			Value: b,
			Time:  n.CreatedAt,
		})
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) Topic() string { return p.topic }

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
