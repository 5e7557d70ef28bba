package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
)

// MatchHandler rates one submitted match
type MatchHandler interface {
	SubmitMatch(ctx context.Context, sub domain.MatchSubmission) (*domain.MatchOutcome, error)
}

// Consumer consumes match results from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	processor     *processor
	deadLetters   sarama.SyncProducer
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer and the producer for its dead-letter topic
func NewConsumer(cfg *config.KafkaConfig, handler MatchHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Return.Successes = true

	var deadLetters sarama.SyncProducer
	if cfg.DeadLetterTopic != "" {
		producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
		if err != nil {
			return nil, fmt.Errorf("creating dead-letter producer: %w", err)
		}
		deadLetters = producer
	}

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		if deadLetters != nil {
			deadLetters.Close()
		}
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		processor:     newProcessor(handler, deadLetters, cfg, logger),
		deadLetters:   deadLetters,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start joins the consumer group and blocks until the first session is set up
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
		"dead_letter_topic", c.config.DeadLetterTopic,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			// Consume returns on every rebalance
			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}
			if c.ctx.Err() != nil {
				return
			}
			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()

	err := c.consumerGroup.Close()
	if c.deadLetters != nil {
		err = errors.Join(err, c.deadLetters.Close())
	}
	return err
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim batches messages from a partition and hands each batch to the
// processor. Offsets are marked once a batch is done; a redelivered match is
// skipped as a duplicate by id.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]*sarama.ConsumerMessage, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		h.consumer.processor.process(ctx, batch)
		session.MarkMessage(batch[len(batch)-1], "")
		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			flush()
			return nil

		case <-batchTimer.C:
			flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, message)
			if len(batch) >= cfg.BatchSize {
				flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// BatchStats counts what happened to one batch
type BatchStats struct {
	Submitted    int
	Duplicates   int
	DeadLettered int
	Dropped      int
}

// processor rates the matches of one batch in offset order
type processor struct {
	handler     MatchHandler
	deadLetters sarama.SyncProducer
	topic       string
	attempts    int
	delay       time.Duration
	logger      *slog.Logger
}

func newProcessor(handler MatchHandler, deadLetters sarama.SyncProducer, cfg *config.KafkaConfig, logger *slog.Logger) *processor {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &processor{
		handler:     handler,
		deadLetters: deadLetters,
		topic:       cfg.DeadLetterTopic,
		attempts:    attempts,
		delay:       cfg.RetryDelay,
		logger:      logger,
	}
}

func (p *processor) process(ctx context.Context, batch []*sarama.ConsumerMessage) BatchStats {
	var stats BatchStats
	for _, msg := range batch {
		err := p.handle(ctx, msg)
		switch {
		case err == nil:
			stats.Submitted++
			continue
		case errors.Is(err, domain.ErrMatchExists):
			stats.Duplicates++
			p.logger.Debug("skipping duplicate match", "offset", msg.Offset, "partition", msg.Partition)
			continue
		}

		p.logger.Warn("match message rejected",
			"error", err,
			"offset", msg.Offset,
			"partition", msg.Partition,
		)
		if dlqErr := p.deadLetter(msg, err); dlqErr != nil {
			stats.Dropped++
			p.logger.Error("failed to dead-letter match message", "error", dlqErr, "offset", msg.Offset)
		} else if p.deadLetters != nil {
			stats.DeadLettered++
		} else {
			stats.Dropped++
		}
	}

	p.logger.Debug("processed batch",
		"batch_size", len(batch),
		"submitted", stats.Submitted,
		"duplicates", stats.Duplicates,
		"dead_lettered", stats.DeadLettered,
		"dropped", stats.Dropped,
	)
	return stats
}

// handle decodes and submits one message, retrying failures that can go away
func (p *processor) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	sub, err := DecodeSubmission(msg.Value)
	if err != nil {
		return err
	}
	if sub.ID == "" {
		sub.ID = messageID(msg)
	}

	for attempt := 1; ; attempt++ {
		_, err = p.handler.SubmitMatch(ctx, sub)
		if err == nil || !retryable(err) || attempt >= p.attempts {
			return err
		}
		p.logger.Warn("retrying match", "match_id", sub.ID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(p.delay):
		}
	}
}

// messageID names a match that arrived without an id. The key wins; otherwise
// the log position, which a redelivery repeats.
func messageID(msg *sarama.ConsumerMessage) string {
	if len(msg.Key) > 0 {
		return string(msg.Key)
	}
	return fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
}

func (p *processor) deadLetter(msg *sarama.ConsumerMessage, reason error) error {
	if p.deadLetters == nil {
		return nil
	}
	out := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(msg.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("error"), Value: []byte(reason.Error())},
			{Key: []byte("error_kind"), Value: []byte(domain.KindOf(reason))},
			{Key: []byte("source_offset"), Value: []byte(fmt.Sprint(msg.Offset))},
		},
	}
	if len(msg.Key) > 0 {
		out.Key = sarama.ByteEncoder(msg.Key)
	}
	_, _, err := p.deadLetters.SendMessage(out)
	return err
}

// retryable reports failures a later attempt may get past: storage errors
// and ratings moved by a concurrent match. Rejected input never will.
func retryable(err error) bool {
	return domain.KindOf(err) == domain.KindInternal || errors.Is(err, domain.ErrRatingConflict)
}

// DecodeSubmission parses one topic message and applies the cheap shape
// checks. Scores and participants are validated by the league service.
func DecodeSubmission(value []byte) (domain.MatchSubmission, error) {
	var sub domain.MatchSubmission
	if err := json.Unmarshal(value, &sub); err != nil {
		return sub, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if !sub.Type.Valid() {
		return sub, fmt.Errorf("%w: match type %q", domain.ErrInvalidRequest, sub.Type)
	}
	if len(sub.Sets) == 0 {
		return sub, fmt.Errorf("%w: no sets reported", domain.ErrInvalidScore)
	}
	if sub.TeamAID == "" && len(sub.SideA) == 0 {
		return sub, fmt.Errorf("%w: no participants", domain.ErrInvalidRequest)
	}
	return sub, nil
}
