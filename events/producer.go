// Package events publishes enriched items to Kafka and consumes cycle
// trigger requests.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"hnenricher/common"
	"hnenricher/types"
)

// Producer publishes enriched items, keyed by item id.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewProducer connects a synchronous producer.
func NewProducer(brokers []string, topic string, logger *slog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: brokers are required")
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("events: producer: %w", err)
	}
	return NewProducerWithClient(p, topic, logger)
}

// NewProducerWithClient wraps an existing producer.
func NewProducerWithClient(p sarama.SyncProducer, topic string, logger *slog.Logger) (*Producer, error) {
	if p == nil {
		return nil, errors.New("events: producer must not be nil")
	}
	if topic == "" {
		return nil, errors.New("events: topic is required")
	}
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Producer{producer: p, topic: topic, logger: logger.With("component", "producer", "topic", topic)}, nil
}

// PublishEnriched sends one message per item.
func (p *Producer) PublishEnriched(_ context.Context, items []types.EnrichedItem) error {
	if len(items) == 0 {
		return nil
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("events: marshal %s: %w", it.ID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(it.ID),
			Value: sarama.ByteEncoder(b),
		})
	}
	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("events: publish %d items: %w", len(msgs), err)
	}
	p.logger.Debug("published enriched items", "count", len(msgs))
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
