package notifications

import (
	"context"
	"fmt"
	"time"

	"ticketflow/internal/shared/config"
	"ticketflow/pkg/logger"

	"github.com/IBM/sarama"
)

// Publisher queues notifications on Kafka for the email consumer
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

func NewPublisher(cfg config.KafkaConfig, log *logger.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = cfg.MaxRetries
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.NotificationTopic, log), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, log: log}
}

// Send enqueues the email. Messages for one recipient share a partition so
// they arrive in order.
func (p *Publisher) Send(ctx context.Context, to, subject, body string) error {
	msg := NewMessage(to, subject, body)
	value, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(to),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(msg.ID.String())},
		},
		Timestamp: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.log.DebugContext(ctx, "notification queued",
		"message_id", msg.ID.String(), "topic", p.topic, "partition", partition, "offset", offset)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
