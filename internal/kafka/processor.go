// Package kafka runs the consumer loop that dispatches re-triage events.
package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ortelius/pdvd-enricher/config"
	"github.com/ortelius/pdvd-enricher/events/modules/triage"
	"github.com/ortelius/pdvd-enricher/util"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// NewDialer returns a SASL/TLS dialer when API credentials are configured and a plain dialer
// for local development otherwise.
func NewDialer(cfg config.Kafka) *kafka.Dialer {
	if cfg.APIKey != "" && cfg.APISecret != "" {
		return &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
			SASLMechanism: plain.Mechanism{
				Username: cfg.APIKey,
				Password: cfg.APISecret,
			},
			TLS: &tls.Config{}, // Confluent Cloud requires TLS
		}
	}
	return &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
}

// NewTransport mirrors NewDialer for writers.
func NewTransport(cfg config.Kafka) *kafka.Transport {
	t := &kafka.Transport{DialTimeout: 10 * time.Second}
	if cfg.APIKey != "" && cfg.APISecret != "" {
		t.SASL = plain.Mechanism{Username: cfg.APIKey, Password: cfg.APISecret}
		t.TLS = &tls.Config{}
	}
	return t
}

// RunEventProcessor checks the broker, then consumes re-triage events in the background until
// ctx is done.
func RunEventProcessor(ctx context.Context, cfg config.Kafka, retriager triage.Retriager, logger *zap.Logger) error {
	logger = util.OrNop(logger)
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}
	dialer := NewDialer(cfg)

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 2), ctx)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		logger.Info("Kafka connection attempt", zap.Int("attempt", attempt), zap.String("broker", cfg.Brokers[0]))
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}, bo)
	if err != nil {
		return err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.TopicRetriage,
		MaxBytes: 10e6,
		Dialer:   dialer,
	})

	go func() {
		defer reader.Close()
		logger.Info("Kafka Event Processor started. Listening for re-triage events...", zap.String("topic", cfg.TopicRetriage))

		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := reader.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("Error reading Kafka message", zap.Error(err))
					continue
				}
				if err := triage.HandleRetriageRequested(ctx, msg.Value, retriager, logger); err != nil {
					logger.Error("Failed to process re-triage event", zap.Int64("offset", msg.Offset), zap.Error(err))
				}
			}
		}
	}()

	return nil
}
