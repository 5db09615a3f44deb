package kafkaclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of *kafka.Writer the producer uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON values to one topic. Messages with the same key land
// on the same partition.
type Producer struct {
	writer KafkaWriter
	topic  string
	logger *slog.Logger
}

func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic, logger)
}

func newProducer(w KafkaWriter, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Producer{writer: w, topic: topic, logger: logger}
}

// Publish encodes v as JSON and writes it under key.
func (p *Producer) Publish(ctx context.Context, key string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	msg := kafka.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}
	p.logger.Debug("message published", "topic", p.topic, "key", key, "bytes", len(data))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
