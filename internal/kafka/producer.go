package kafka

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer  *kafka.Writer
	Logger  *logger.Logger
	Timeout time.Duration
}

// NewProducer returns a producer whose topic is chosen per message.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log, Timeout: 5 * time.Second}
}

// Publish writes one message. Messages with the same key land on the same
// partition, so events of one booking stay ordered.
func (p *Producer) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s bytes=%d", key, len(value)))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
