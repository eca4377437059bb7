package services

import (
	"testing"

	"github.com/ortelius/pdvd-enricher/config"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWithoutClient(t *testing.T) {
	s := Build(config.Default(), store.NewMemoryStore(), nil, Options{}, nil)
	assert.Nil(t, s.Collector)
	assert.Nil(t, s.Alerts)
	assert.Nil(t, s.Producer)
	require.NotNil(t, s.Triage)
	require.NotNil(t, s.Scores)
	require.NotNil(t, s.Projector)
	assert.NoError(t, s.Close())
}

func TestBuildAsyncCreatesProducer(t *testing.T) {
	s := Build(config.Default(), store.NewMemoryStore(), nil, Options{Async: true}, nil)
	require.NotNil(t, s.Producer)
	assert.Equal(t, EventSource, s.Producer.Source)
}

func TestBuildAutoTriageDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.AutoTriageEnabled = false
	s := Build(cfg, store.NewMemoryStore(), nil, Options{Async: true}, nil)
	assert.Nil(t, s.Producer)
}
