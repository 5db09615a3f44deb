package kafkaclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaReader defines the interface for a Kafka message reader.
// This allows for easy mocking in unit tests.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer manages the Kafka consumer and its message loop.
type KafkaConsumer struct {
	reader KafkaReader
	logger *slog.Logger
	// a channel to signal a graceful shutdown.
	doneChan chan struct{}
	stopOnce sync.Once
	// a wait group to ensure all goroutines have exited before the program terminates.
	wg sync.WaitGroup
	// a channel to hold the Kafka messages, which are then consumed by the Iterator.
	messageChan chan kafka.Message
	// errBackoff is the pause after a failed read.
	errBackoff time.Duration
}

// NewKafkaConsumer creates a consumer group reader with manual commits.
func NewKafkaConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
		// Disable auto-commit to manually control offset committing.
		CommitInterval: 0,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
	})
	return newConsumer(reader, logger)
}

func newConsumer(reader KafkaReader, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &KafkaConsumer{
		reader:      reader,
		logger:      logger,
		doneChan:    make(chan struct{}),
		messageChan: make(chan kafka.Message),
		errBackoff:  time.Second,
	}
}

func (kc *KafkaConsumer) Messages() <-chan kafka.Message {
	return kc.messageChan
}

func (kc *KafkaConsumer) CommitOffset(ctx context.Context, msg kafka.Message) error {
	kc.logger.Debug("committing offset", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	return kc.reader.CommitMessages(ctx, msg)
}

// StartConsuming begins the Kafka message consumption loop in a separate goroutine.
// The Messages channel is closed when the loop exits.
func (kc *KafkaConsumer) StartConsuming(ctx context.Context) {
	kc.wg.Add(1)
	go func() {
		defer kc.wg.Done()
		defer close(kc.messageChan)

		kc.logger.Info("starting kafka consumer loop")

		for {
			select {
			case <-ctx.Done():
				kc.logger.Info("context canceled, stopping consumer loop")
				return
			case <-kc.doneChan:
				kc.logger.Info("shutdown signal received, stopping consumer loop")
				return
			default:
			}

			msg, err := kc.reader.ReadMessage(ctx)
			if err != nil {
				// kafka-go reports a closed reader as io.EOF.
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					kc.logger.Info("reader closed, stopping consumer loop", "error", err)
					return
				}
				kc.logger.Warn("error reading message", "error", err)
				select {
				case <-time.After(kc.errBackoff):
				case <-ctx.Done():
					return
				case <-kc.doneChan:
					return
				}
				continue
			}

			select {
			case kc.messageChan <- msg:
				kc.logger.Debug("message received", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			case <-ctx.Done():
				kc.logger.Info("context canceled, stopping consumer before sending message")
				return
			case <-kc.doneChan:
				kc.logger.Info("shutdown signal received, stopping consumer before sending message")
				return
			}
		}
	}()
}

// Stop gracefully shuts down the Kafka consumer. It is safe to call more than once.
func (kc *KafkaConsumer) Stop() {
	kc.stopOnce.Do(func() {
		kc.logger.Info("stopping kafka consumer")
		close(kc.doneChan)
		kc.wg.Wait()
		if err := kc.reader.Close(); err != nil {
			kc.logger.Warn("failed to close kafka reader", "error", err)
		}
		kc.logger.Info("kafka consumer stopped")
	})
}

// Iterator provides a channel-based interface to consume messages.
type Iterator struct {
	messages chan kafka.Message
	consumer *KafkaConsumer
}

// NewIterator returns a new Iterator for the consumer.
func (kc *KafkaConsumer) NewIterator() *Iterator {
	return &Iterator{
		messages: kc.messageChan,
		consumer: kc,
	}
}

// Messages returns the channel of Kafka messages.
func (it *Iterator) Messages() <-chan kafka.Message {
	return it.messages
}

// CommitOffset manually commits the offset of a message.
func (it *Iterator) CommitOffset(ctx context.Context, msg kafka.Message) error {
	return it.consumer.CommitOffset(ctx, msg)
}
