package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketflow/internal/shared/config"
	"ticketflow/pkg/logger"

	"github.com/IBM/sarama"
)

// Consumer drains the notification topic into a Mailer
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler *Handler
	log     *logger.Logger
}

func NewConsumer(cfg config.KafkaConfig, mailer Mailer, log *logger.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second
	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		group:   group,
		topics:  []string{cfg.NotificationTopic},
		handler: NewHandler(mailer, cfg.MaxRetries, cfg.RetryBackoff, log),
		log:     log,
	}, nil
}

// Run consumes until ctx is cancelled, rejoining the group after each rebalance
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Error("notification consumer error", "error", err.Error())
		}
	}()

	c.log.Info("notification consumer started", "topics", c.topics)
	for {
		if err := c.group.Consume(ctx, c.topics, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Error("notification consume failed", "error", err.Error())
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

// Handler is the sarama.ConsumerGroupHandler that delivers each message with
// exponential backoff between attempts.
type Handler struct {
	mailer     Mailer
	maxRetries int
	backoff    time.Duration
	log        *logger.Logger
}

func NewHandler(mailer Mailer, maxRetries int, backoff time.Duration, log *logger.Logger) *Handler {
	return &Handler{mailer: mailer, maxRetries: maxRetries, backoff: backoff, log: log}
}

func (h *Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *Handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.Process(session.Context(), message.Value); err != nil {
				h.log.Error("notification dropped",
					"topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "error", err.Error())
			}
			// A message that exhausted its retries is not redelivered.
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Process decodes and sends one message
func (h *Handler) Process(ctx context.Context, value []byte) error {
	msg, err := DecodeMessage(value)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err = h.mailer.Send(ctx, msg.To, msg.Subject, msg.Body)
		if err == nil {
			return nil
		}
		if attempt >= h.maxRetries {
			return fmt.Errorf("notification %s failed after %d attempts: %w", msg.ID, attempt+1, err)
		}

		delay := h.backoff * time.Duration(1<<attempt)
		h.log.Warn("notification send failed, retrying",
			"message_id", msg.ID.String(), "attempt", attempt+1, "delay", delay.String(), "error", err.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
