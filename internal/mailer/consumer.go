package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/experiencehub/booking-engine/internal/metrics"
	"github.com/sirupsen/logrus"
)

const maxSendAttempts = 3

// QueueConsumer reads the email topic and delivers each message
type QueueConsumer struct {
	group  sarama.ConsumerGroup
	topic  string
	sender Dispatcher
	logger *logrus.Logger
}

// NewQueueConsumer joins the configured consumer group
func NewQueueConsumer(cfg config.KafkaConfig, sender Dispatcher, logger *logrus.Logger) (*QueueConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second
	saramaConfig.Consumer.Group.Session.Timeout = 10 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	return &QueueConsumer{group: group, topic: cfg.EmailTopic, sender: sender, logger: logger}, nil
}

// Run consumes until ctx is cancelled
func (c *QueueConsumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("Email consumer error")
		}
	}()

	handler := &emailHandler{sender: c.sender, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("email consumer stopped: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group
func (c *QueueConsumer) Close() error {
	return c.group.Close()
}

type emailHandler struct {
	sender Dispatcher
	logger *logrus.Logger
}

func (h *emailHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Email consumer session started")
	return nil
}

func (h *emailHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Email consumer session ended")
	return nil
}

func (h *emailHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			// poison messages are logged and skipped so the partition keeps moving
			if err := h.process(session.Context(), message.Value); err != nil {
				h.logger.WithError(err).WithFields(logrus.Fields{
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("Failed to deliver queued email")
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// process decodes one record and sends it, retrying with linear backoff
func (h *emailHandler) process(ctx context.Context, value []byte) error {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		metrics.IncEmailSent("invalid")
		return fmt.Errorf("failed to unmarshal email message: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if lastErr = h.sender.Dispatch(ctx, msg); lastErr == nil {
			metrics.IncEmailSent("sent")
			return nil
		}
		h.logger.WithError(lastErr).WithField("attempt", attempt).Warn("Email send failed, retrying")
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	metrics.IncEmailSent("failed")
	return lastErr
}
