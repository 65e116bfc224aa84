// Package kafka consumes "game completed" events and feeds them into the
// asynchronous ingestion path.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	service "github.com/okian/mathboard/internal/app"
	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
	"github.com/okian/mathboard/pkg/metrics"
)

const (
	defaultMinBackoff = 10 * time.Millisecond
	defaultMaxBackoff = time.Second
)

// Submitter accepts results for asynchronous application.
type Submitter interface {
	Enqueue(ctx context.Context, r model.GameResult) (service.Receipt, error)
}

// Config selects the brokers, topic and consumer group.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer runs a sarama consumer group until Stop.
type Consumer struct {
	cfg     Config
	group   sarama.ConsumerGroup
	handler *handler
	logger  logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer connects a consumer group. Offsets start at the newest message
// for a new group.
func NewConsumer(cfg Config, sub Submitter, log logger.Logger) (*Consumer, error) {
	if log == nil {
		log = logger.Nop()
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_0_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}
	return &Consumer{
		cfg:     cfg,
		group:   group,
		handler: newHandler(sub, log),
		logger:  log,
	}, nil
}

// Start consumes in the background until ctx is done or Stop is called.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info(ctx, "starting kafka consumer",
		logger.Any("brokers", c.cfg.Brokers),
		logger.String("topic", c.cfg.Topic),
		logger.String("group_id", c.cfg.GroupID))

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			// Consume returns on every rebalance and must be called again.
			if err := c.group.Consume(ctx, []string{c.cfg.Topic}, c.handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error(ctx, "consume failed", logger.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				metrics.RecordErrorByComponent("kafka", "consumer_group")
				c.logger.Error(ctx, "consumer group error", logger.Error(err))
			}
		}
	}()
}

// Stop cancels consumption, waits for in-flight messages and closes the group.
func (c *Consumer) Stop() error {
	c.logger.Info(context.Background(), "stopping kafka consumer")
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.group.Close()
}

// handler implements sarama.ConsumerGroupHandler.
type handler struct {
	sub        Submitter
	logger     logger.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func newHandler(sub Submitter, log logger.Logger) *handler {
	return &handler{sub: sub, logger: log, minBackoff: defaultMinBackoff, maxBackoff: defaultMaxBackoff}
}

func (h *handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim hands every message to the submitter and marks it once it is
// queued, dropped as a duplicate or rejected as malformed.
func (h *handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(ctx, msg); err != nil {
				// Unmarked: the message is redelivered after the next rebalance.
				h.logger.Warn(ctx, "partition released with message unmarked",
					logger.String("topic", msg.Topic),
					logger.Int("partition", int(msg.Partition)),
					logger.Int64("offset", msg.Offset),
					logger.Error(err))
				return nil
			}
			session.MarkMessage(msg, "")
		}
	}
}

// handle returns an error only when the session ends before the message
// could be queued. Backpressure and transient failures are retried with
// backoff so one bad stretch does not stall the partition.
func (h *handler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	r, err := decode(msg)
	if err != nil {
		metrics.RecordKafkaMessage("invalid")
		h.logger.Warn(ctx, "dropping malformed message",
			logger.String("topic", msg.Topic),
			logger.Int("partition", int(msg.Partition)),
			logger.Int64("offset", msg.Offset),
			logger.Error(err))
		return nil
	}

	backoff := h.minBackoff
	for attempt := 1; ; attempt++ {
		rec, err := h.sub.Enqueue(ctx, r)
		switch {
		case err == nil && rec.Duplicate:
			metrics.RecordKafkaMessage("duplicate")
			return nil
		case err == nil:
			metrics.RecordKafkaMessage("enqueued")
			return nil
		case errors.Is(err, model.ErrInvalidResult):
			metrics.RecordKafkaMessage("invalid")
			h.logger.Warn(ctx, "dropping invalid result", logger.String("result_id", r.ResultID), logger.Error(err))
			return nil
		case !errors.Is(err, model.ErrBackpressure):
			metrics.RecordKafkaMessage("retried")
			h.logger.Warn(ctx, "enqueue failed, retrying",
				logger.String("topic", msg.Topic),
				logger.Int("partition", int(msg.Partition)),
				logger.Int64("offset", msg.Offset),
				logger.String("result_id", r.ResultID),
				logger.Int("attempt", attempt),
				logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, h.maxBackoff)
	}
}

// decode parses a JSON GameResult. Messages without a result_id get one
// derived from their position in the log, so a redelivery is still caught
// as a duplicate.
func decode(msg *sarama.ConsumerMessage) (model.GameResult, error) {
	var r model.GameResult
	if err := json.Unmarshal(msg.Value, &r); err != nil {
		return model.GameResult{}, fmt.Errorf("%w: %w", model.ErrInvalidResult, err)
	}
	if r.ResultID == "" {
		r.ResultID = fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return r, nil
}
