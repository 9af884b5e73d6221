package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"innkeep/pkg/logger"
)

// Consumer reads a topic in a consumer group and hands each message to the
// handler. Handler failures are retried a few times with backoff; a message
// that keeps failing is committed anyway and logged so one poison event
// cannot stall waitlist processing.
type Consumer struct {
	reader     *kafka.Reader
	topic      string
	groupID    string
	maxRetries int
	handler    MessageHandler
	log        *logger.Logger
	closed     bool
	mu         sync.RWMutex
}

func NewConsumer(brokers []string, topic, groupID string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	if len(brokers) == 0 || topic == "" || groupID == "" || handler == nil {
		return nil, errors.New("brokers, topic, group ID and handler are all required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		Logger:         kafka.LoggerFunc(func(msg string, args ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error("kafka consumer error", "message", msg, "args", args)
		}),
	})

	return &Consumer{
		reader:     reader,
		topic:      topic,
		groupID:    groupID,
		maxRetries: 3,
		handler:    handler,
		log:        log,
	}, nil
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.mu.RUnlock()

	for {
		kafkaMsg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.log.Error("Failed to fetch message", "topic", c.topic, "error", err)
			continue
		}

		msg := fromKafkaMessage(kafkaMsg)

		if err := c.handleWithRetry(ctx, msg); err != nil {
			c.log.Error("Message handling failed after retries, skipping",
				"topic", c.topic,
				"key", msg.Key,
				"event_type", msg.EventType(),
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, kafkaMsg); err != nil {
			c.log.Error("Failed to commit message", "topic", c.topic, "error", err)
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg Message) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		if err = c.handler(ctx, msg); err == nil {
			return nil
		}
	}
	return err
}

func fromKafkaMessage(kafkaMsg kafka.Message) Message {
	msg := Message{
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Headers:   make(map[string]string, len(kafkaMsg.Headers)),
		Timestamp: kafkaMsg.Time,
	}
	for _, h := range kafkaMsg.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.reader.Close()
}
