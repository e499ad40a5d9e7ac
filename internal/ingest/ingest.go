// Package ingest streams corpus sentences into the session from Kafka,
// letting external producers grow the working corpus while a session runs.
// Appended sentences take effect at the next initialization.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/embeddinglab/wordvec-lab/internal/session"
	"github.com/embeddinglab/wordvec-lab/pkg/apperrors"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
	"github.com/embeddinglab/wordvec-lab/pkg/kafka"
)

// SentenceMessage is the wire format on the corpus-ingest topic.
type SentenceMessage struct {
	Sentence string `json:"sentence"`
}

// Consumer appends incoming sentences to the session corpus.
type Consumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, sess *session.Session) *Consumer {
	c := &Consumer{
		logger: slog.Default().With("component", "corpus-ingest"),
	}
	c.consumer = kafka.NewConsumer(cfg, cfg.Topics.CorpusIngest, func(ctx context.Context, key, value []byte) error {
		msg, err := kafka.DecodeJSON[SentenceMessage](value)
		if err != nil {
			return err
		}
		if _, err := sess.AppendSentence(msg.Sentence); err != nil {
			// Blank sentences are the producer's problem; commit and move on.
			if errors.Is(err, apperrors.ErrInvalidInput) {
				c.logger.Warn("discarding blank sentence", "key", string(key))
				return nil
			}
			return fmt.Errorf("appending sentence: %w", err)
		}
		return nil
	})
	return c
}

// Start runs the consume loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
