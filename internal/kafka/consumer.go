package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/sirupsen/logrus"
)

// RequestProcessor handles a batch of distinct fetch requests
type RequestProcessor func([]models.FetchRequest) error

// Consumer reads fetch requests from Kafka and hands them on in batches.
// Requests for the same site and utility collapse within a batch.
type Consumer struct {
	id         string
	config     config.KafkaConfig
	group      sarama.ConsumerGroup
	processor  RequestProcessor
	logger     logrus.FieldLogger
	buffer     []models.FetchRequest
	buffered   map[string]bool
	bufferLock sync.Mutex
	lastFlush  time.Time
}

// NewConsumer joins the configured consumer group
func NewConsumer(id string, cfg config.KafkaConfig, processor RequestProcessor, logger logrus.FieldLogger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = id
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.MaxWaitTime = 250 * time.Millisecond

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}
	return newConsumer(id, cfg, group, processor, logger), nil
}

func newConsumer(id string, cfg config.KafkaConfig, group sarama.ConsumerGroup, processor RequestProcessor, logger logrus.FieldLogger) *Consumer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Consumer{
		id:        id,
		config:    cfg,
		group:     group,
		processor: processor,
		logger:    logger.WithField("consumer", id),
		buffer:    make([]models.FetchRequest, 0, cfg.BatchSize),
		buffered:  make(map[string]bool),
		lastFlush: time.Now(),
	}
}

// Consume blocks until ctx is canceled or the group fails. Pending requests
// are flushed before it returns.
func (c *Consumer) Consume(ctx context.Context) error {
	errorChan := make(chan error, 1)
	go func() {
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer group error")
			select {
			case errorChan <- err:
			default:
			}
		}
	}()

	handler := &consumerGroupHandler{consumer: c, ctx: ctx}

	timeout := c.config.BatchTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	flushTicker := time.NewTicker(timeout)
	defer flushTicker.Stop()

	go func() {
		for {
			select {
			case <-flushTicker.C:
				c.flushBuffer()
			case <-ctx.Done():
				return
			}
		}
	}()
	defer c.flushBuffer()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errorChan:
			return err
		default:
			if err := c.group.Consume(ctx, []string{c.config.RequestTopic}, handler); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				return err
			}
		}
	}
}

// Close leaves the consumer group
func (c *Consumer) Close() error {
	return c.group.Close()
}

// addRequest buffers req unless an identical selection is already pending
func (c *Consumer) addRequest(req models.FetchRequest) {
	c.bufferLock.Lock()
	defer c.bufferLock.Unlock()

	key := req.Key()
	if c.buffered[key] {
		return
	}
	c.buffered[key] = true
	c.buffer = append(c.buffer, req)

	if len(c.buffer) >= c.config.BatchSize {
		c.flushBufferLocked()
	}
}

func (c *Consumer) flushBuffer() {
	c.bufferLock.Lock()
	defer c.bufferLock.Unlock()

	c.flushBufferLocked()
}

func (c *Consumer) flushBufferLocked() {
	if len(c.buffer) == 0 {
		return
	}

	batch := make([]models.FetchRequest, len(c.buffer))
	copy(batch, c.buffer)

	c.buffer = c.buffer[:0]
	c.buffered = make(map[string]bool)
	c.lastFlush = time.Now()

	if err := c.processor(batch); err != nil {
		c.logger.WithError(err).WithField("requests", len(batch)).Error("processing fetch requests failed")
	}
}

// decodeRequest validates a message payload
func decodeRequest(value []byte) (models.FetchRequest, error) {
	var req models.FetchRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return req, err
	}
	if req.Site == "" {
		return req, errors.New("fetch request without site")
	}
	utility, err := models.ParseUtilityType(string(req.Utility))
	if err != nil {
		return req, err
	}
	req.Utility = utility
	return req, nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ctx      context.Context
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}

		req, err := decodeRequest(message.Value)
		if err != nil {
			h.consumer.logger.WithError(err).WithFields(logrus.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Warn("dropping malformed fetch request")
			session.MarkMessage(message, "")
			continue
		}

		h.consumer.addRequest(req)
		session.MarkMessage(message, "")
	}
	return nil
}
