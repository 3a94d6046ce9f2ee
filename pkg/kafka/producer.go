package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thep200/repo-harvester/cfg"
	"github.com/thep200/repo-harvester/pkg/log"
)

var ErrNoBrokers = errors.New("no kafka brokers configured")

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles Kafka message publishing
type Producer struct {
	Config *cfg.Config
	Logger log.Logger
	writer messageWriter
	now    func() time.Time
}

// Message is one keyed value, encoded as JSON on the wire.
type Message struct {
	Key   string
	Value interface{}
}

// NewProducer creates a Producer writing to the configured topic.
func NewProducer(config *cfg.Config, logger log.Logger) (*Producer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Kafka.Brokers...),
		Topic:                  config.Kafka.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return newProducer(config, logger, writer), nil
}

func newProducer(config *cfg.Config, logger log.Logger, writer messageWriter) *Producer {
	return &Producer{
		Config: config,
		Logger: logger,
		writer: writer,
		now:    time.Now,
	}
}

// PublishBatch sends msgs in one write. Keys pick the Kafka partition, so one key always
// lands on the same partition.
func (p *Producer) PublishBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	now := p.now()
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		jsonBytes, err := json.Marshal(m.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal message %q: %w", m.Key, err)
		}
		out = append(out, kafka.Message{
			Key:   []byte(m.Key),
			Value: jsonBytes,
			Time:  now,
		})
	}

	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("failed to write %d messages to kafka: %w", len(out), err)
	}

	p.Logger.Debug(ctx, "Published %d messages to %s", len(out), p.Config.Kafka.Topic)
	return nil
}

// Close closes the Kafka writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
