// Package events publishes training-burst summaries to Kafka for downstream
// dashboards and experiment tracking.
package events

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/embeddinglab/wordvec-lab/internal/session"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
	"github.com/embeddinglab/wordvec-lab/pkg/kafka"
)

// Publisher forwards burst events to the training-events topic.
type Publisher struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

func NewPublisher(cfg config.KafkaConfig) *Publisher {
	return &Publisher{
		producer: kafka.NewProducer(cfg, cfg.Topics.TrainingEvents),
		logger:   slog.Default().With("component", "burst-publisher"),
	}
}

// PublishBurst implements the session burst sink. The instance count keys the
// message so per-partition ordering follows training order. Failures are
// logged and dropped; training never blocks on the broker.
func (p *Publisher) PublishBurst(event session.BurstEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.producer.Publish(ctx, kafka.Event{
		Key:   strconv.Itoa(event.InstanceCount),
		Value: event,
	})
	if err != nil {
		p.logger.Error("failed to publish burst event",
			"instance_count", event.InstanceCount,
			"error", err,
		)
	}
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
