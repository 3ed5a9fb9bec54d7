package consumer

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/gosight/gosight/engagement/internal/config"
)

const defaultTopic = "gosight.engagement.heartbeats"

// MessageProcessor handles decoded heartbeat messages
type MessageProcessor interface {
	Process(ctx context.Context, event map[string]interface{}) error
	Flush()
}

// KafkaConsumer consumes heartbeats from Kafka
type KafkaConsumer struct {
	reader    *kafka.Reader
	processor MessageProcessor
}

// NewKafkaConsumer creates a consumer on the heartbeats topic
func NewKafkaConsumer(cfg config.KafkaConfig, processor MessageProcessor) (*KafkaConsumer, error) {
	topic := cfg.Topics["heartbeats"]
	if topic == "" {
		topic = defaultTopic
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 1000,
		StartOffset:    kafka.LastOffset,
	})

	return &KafkaConsumer{
		reader:    reader,
		processor: processor,
	}, nil
}

// Start consumes until ctx is done
func (c *KafkaConsumer) Start(ctx context.Context) {
	log.Info().
		Str("topic", c.reader.Config().Topic).
		Str("group", c.reader.Config().GroupID).
		Msg("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Kafka consumer stopped")
				return
			}
			log.Error().Err(err).Msg("Failed to fetch message")
			continue
		}

		handle(ctx, c.processor, msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Failed to commit message")
		}
	}
}

// handle decodes and processes one message. Bad messages are logged and
// still committed so the partition does not get stuck.
func handle(ctx context.Context, p MessageProcessor, value []byte) {
	var event map[string]interface{}
	if err := json.Unmarshal(value, &event); err != nil {
		log.Error().
			Err(err).
			Str("value", string(value)).
			Msg("Failed to parse message")
		return
	}

	if err := p.Process(ctx, event); err != nil {
		log.Error().
			Err(err).
			Interface("event", event).
			Msg("Failed to process heartbeat")
	}
}

// Close flushes the processor and closes the reader
func (c *KafkaConsumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	c.processor.Flush()
	return c.reader.Close()
}
