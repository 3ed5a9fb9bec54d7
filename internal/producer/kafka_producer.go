package producer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gosight/gosight/engagement/internal/beacon"
	"github.com/gosight/gosight/engagement/internal/config"
)

var ErrNoHeartbeatTopic = errors.New("no heartbeats topic configured")

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	topic := cfg.Topics["heartbeats"]
	if topic == "" {
		return nil, ErrNoHeartbeatTopic
	}

	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		},
	}, nil
}

// PublishHeartbeat writes hb keyed by project so a page view's heartbeats and
// end record stay in order on one partition. The writer is async: delivery
// errors are not reported.
func (p *KafkaProducer) PublishHeartbeat(ctx context.Context, hb *beacon.Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(hb.ProjectID),
		Value: data,
	})
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
