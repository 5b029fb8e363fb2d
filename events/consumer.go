package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"hnenricher/common"
)

// MessageHandler processes one consumed message and reports whether its
// offset should be marked. An unmarked message is redelivered.
type MessageHandler interface {
	HandleMessage(ctx context.Context, message []byte) (shouldMark bool, err error)
}

// Consumer reads a topic as part of a consumer group.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	topic   string
	groupID string
	ready   chan struct{}
	logger  *slog.Logger
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler MessageHandler
	Logger  *slog.Logger
}

// NewConsumer connects a consumer group.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: brokers are required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("events: handler must not be nil")
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("events: consumer group %s: %w", cfg.GroupID, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Consumer{
		group:   group,
		handler: cfg.Handler,
		topic:   cfg.Topic,
		groupID: cfg.GroupID,
		ready:   make(chan struct{}),
		logger:  logger.With("component", "consumer", "topic", cfg.Topic),
	}, nil
}

// Start consumes in the background until ctx is cancelled. It returns once
// the first session is set up, or when ctx ends first.
func (c *Consumer) Start(ctx context.Context) error {
	h := &groupHandler{handler: c.handler, ready: c.ready, logger: c.logger}

	go func() {
		for {
			if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Error("consume", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
			h.ready = make(chan struct{})
		}
	}()

	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error", "err", err)
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("consumer started", "group", c.groupID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	handler MessageHandler
	ready   chan struct{}
	logger  *slog.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	select {
	case <-h.ready:
	default:
		close(h.ready)
	}
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			h.logger.Debug("message received", "partition", msg.Partition, "offset", msg.Offset)

			mark, err := h.handler.HandleMessage(session.Context(), msg.Value)
			if err != nil {
				h.logger.Warn("handling message", "offset", msg.Offset, "err", err)
			}
			if mark {
				session.MarkMessage(msg, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// TypedMessageHandler decodes JSON messages into T before processing.
type TypedMessageHandler[T any] struct {
	// Validate reports whether a decoded message should be processed.
	Validate func(msg *T) bool
	Process  func(ctx context.Context, msg *T) error
	// AlwaysMark marks undecodable and invalid messages so they are not redelivered.
	AlwaysMark bool
}

func (h *TypedMessageHandler[T]) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	var msg T
	if err := json.Unmarshal(message, &msg); err != nil {
		return h.AlwaysMark, fmt.Errorf("events: decode: %w", err)
	}
	if h.Validate != nil && !h.Validate(&msg) {
		return h.AlwaysMark, nil
	}
	if err := h.Process(ctx, &msg); err != nil {
		return false, err
	}
	return true, nil
}
