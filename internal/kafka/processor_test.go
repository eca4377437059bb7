package kafka

import (
	"context"
	"testing"

	"github.com/ortelius/pdvd-enricher/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDialer(t *testing.T) {
	plainDialer := NewDialer(config.Kafka{})
	assert.Nil(t, plainDialer.SASLMechanism)
	assert.Nil(t, plainDialer.TLS)

	secure := NewDialer(config.Kafka{APIKey: "key", APISecret: "secret"})
	require.NotNil(t, secure.SASLMechanism)
	assert.Equal(t, "PLAIN", secure.SASLMechanism.Name())
	assert.NotNil(t, secure.TLS)
}

func TestNewTransport(t *testing.T) {
	assert.Nil(t, NewTransport(config.Kafka{}).SASL)
	assert.NotNil(t, NewTransport(config.Kafka{APIKey: "key", APISecret: "secret"}).SASL)
}

func TestRunEventProcessorRequiresBrokers(t *testing.T) {
	assert.Error(t, RunEventProcessor(context.Background(), config.Kafka{}, nil, nil))
}
