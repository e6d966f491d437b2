package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message payload.
type Handler func(ctx context.Context, value []byte) error

type Consumer struct {
	reader MessageReader
	logger *logger.Logger
	// MaxAttempts bounds handler retries per message before it is skipped.
	MaxAttempts   int
	RetryInterval time.Duration
	// Permanent, when set, marks handler errors that retrying cannot fix.
	Permanent func(error) bool
}

// NewConsumer creates a consumer group reader for topic.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
	return NewConsumerWithReader(reader, log)
}

func NewConsumerWithReader(reader MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{
		reader:        reader,
		logger:        log,
		MaxAttempts:   5,
		RetryInterval: 200 * time.Millisecond,
	}
}

// Start consumes until ctx is cancelled. A message is committed once its
// handler succeeds or its retries run out, so one bad message cannot stall
// the partition.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	c.logger.Info("KAFKA", "Kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("KAFKA", "Kafka consumer stopped")
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error fetching message: %v", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.RetryInterval):
			}
			continue
		}

		c.logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("partition=%d offset=%d key=%s", msg.Partition, msg.Offset, string(msg.Key)))

		if err := c.handle(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Skipping message at %s/%d offset %d: %v", msg.Topic, msg.Partition, msg.Offset, err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d: %v", msg.Offset, err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler Handler) error {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.RetryInterval
	policy.MaxElapsedTime = 0

	return backoff.RetryNotify(
		func() error {
			err := handler(ctx, msg.Value)
			if err != nil && c.Permanent != nil && c.Permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx),
		func(err error, wait time.Duration) {
			c.logger.Warn("KAFKA", fmt.Sprintf("Handler failed for offset %d, retrying in %s: %v", msg.Offset, wait, err))
		},
	)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
