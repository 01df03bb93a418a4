package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/sirupsen/logrus"
)

// KafkaQueue enqueues notification emails for the email worker
type KafkaQueue struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger
}

// NewKafkaQueue connects a sync producer to the configured brokers
func NewKafkaQueue(cfg config.KafkaConfig, logger *logrus.Logger) (*KafkaQueue, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	// same recipient, same partition
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaQueueWithProducer(producer, cfg.EmailTopic, logger), nil
}

// NewKafkaQueueWithProducer wraps an existing producer
func NewKafkaQueueWithProducer(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *KafkaQueue {
	return &KafkaQueue{producer: producer, topic: topic, logger: logger}
}

// Dispatch publishes the message to the email topic
func (q *KafkaQueue) Dispatch(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}

	record := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(msg.To),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(msg.ID)},
			{Key: []byte("event_type"), Value: []byte(msg.EventType)},
		},
		Timestamp: msg.CreatedAt,
	}

	partition, offset, err := q.producer.SendMessage(record)
	if err != nil {
		return fmt.Errorf("failed to enqueue email: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"topic":      q.topic,
		"partition":  partition,
		"offset":     offset,
		"event_type": msg.EventType,
	}).Debug("Email enqueued")
	return nil
}

// Close closes the producer
func (q *KafkaQueue) Close() error {
	return q.producer.Close()
}
