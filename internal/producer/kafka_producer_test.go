package producer

import (
	"errors"
	"testing"

	"github.com/gosight/gosight/engagement/internal/config"
)

func TestNewKafkaProducerNeedsHeartbeatTopic(t *testing.T) {
	_, err := NewKafkaProducer(config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topics:  map[string]string{"events": "gosight.events.raw"},
	})
	if !errors.Is(err, ErrNoHeartbeatTopic) {
		t.Errorf("err = %v, want ErrNoHeartbeatTopic", err)
	}
}

func TestNewKafkaProducerWriter(t *testing.T) {
	p, err := NewKafkaProducer(config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topics: map[string]string{
			"heartbeats": "gosight.engagement.heartbeats",
			"events":     "gosight.events.raw",
		},
	})
	if err != nil {
		t.Fatalf("NewKafkaProducer: %v", err)
	}
	defer p.Close()

	w := p.writer
	if w == nil || w.Topic != "gosight.engagement.heartbeats" {
		t.Fatalf("writer = %+v", w)
	}
	if !w.Async {
		t.Error("heartbeat writer should be async")
	}
}
