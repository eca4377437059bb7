package triage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/ortelius/pdvd-enricher/util"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultChunkSize caps the finding keys carried by one event.
const DefaultChunkSize = 500

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RetriageProducer publishes re-triage requests. It satisfies the Retriager contract of the
// exploit score updater so flagged findings can be re-triaged asynchronously.
type RetriageProducer struct {
	Writer    MessageWriter
	Source    string
	ChunkSize int
	Retries   uint64
	logger    *zap.Logger
	now       func() time.Time
}

// NewRetriageProducer initializes a new Kafka writer for re-triage events
func NewRetriageProducer(brokers []string, topic, source string, transport kafka.RoundTripper, logger *zap.Logger) *RetriageProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	if transport != nil {
		w.Transport = transport
	}
	return NewRetriageProducerWithWriter(w, source, logger)
}

// NewRetriageProducerWithWriter wraps an existing writer.
func NewRetriageProducerWithWriter(w MessageWriter, source string, logger *zap.Logger) *RetriageProducer {
	return &RetriageProducer{
		Writer:    w,
		Source:    source,
		ChunkSize: DefaultChunkSize,
		Retries:   3,
		logger:    util.OrNop(logger),
		now:       time.Now,
	}
}

// Retriage publishes the keys in chunks, one event per chunk.
func (p *RetriageProducer) Retriage(ctx context.Context, findingKeys []string) error {
	size := p.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	for start := 0; start < len(findingKeys); start += size {
		end := start + size
		if end > len(findingKeys) {
			end = len(findingKeys)
		}
		if err := p.publish(ctx, findingKeys[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *RetriageProducer) publish(ctx context.Context, keys []string) error {
	event := RetriageRequestedEvent{
		EventType:     EventTypeRetriageRequested,
		EventID:       uuid.New().String(),
		EventTime:     p.now().UTC(),
		SchemaVersion: SchemaVersion,
		Source:        p.Source,
		FindingKeys:   keys,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(event.EventID), Value: payload}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.Retries), ctx)
	err = backoff.RetryNotify(func() error {
		return p.Writer.WriteMessages(ctx, msg)
	}, bo, func(err error, wait time.Duration) {
		p.logger.Warn("Retrying re-triage event publish", zap.String("event_id", event.EventID), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return err
	}
	p.logger.Info("Published re-triage request", zap.String("event_id", event.EventID), zap.Int("findings", len(keys)))
	return nil
}

// Close cleans up the Kafka writer
func (p *RetriageProducer) Close() error {
	return p.Writer.Close()
}
