package triage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	failures int
	messages []kafka.Message
	calls    int
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type recordingRetriager struct {
	keys [][]string
	err  error
}

func (r *recordingRetriager) Retriage(_ context.Context, keys []string) error {
	r.keys = append(r.keys, keys)
	return r.err
}

func decode(t *testing.T, msg kafka.Message) RetriageRequestedEvent {
	t.Helper()
	var event RetriageRequestedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	return event
}

func TestRetriageChunksEvents(t *testing.T) {
	w := &fakeWriter{}
	p := NewRetriageProducerWithWriter(w, "epss", nil)
	p.ChunkSize = 2
	p.now = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, p.Retriage(context.Background(), []string{"a", "b", "c"}))
	require.Len(t, w.messages, 2)

	first := decode(t, w.messages[0])
	assert.Equal(t, EventTypeRetriageRequested, first.EventType)
	assert.Equal(t, SchemaVersion, first.SchemaVersion)
	assert.Equal(t, "epss", first.Source)
	assert.Equal(t, []string{"a", "b"}, first.FindingKeys)
	assert.Equal(t, first.EventID, string(w.messages[0].Key))
	assert.NotEmpty(t, first.EventID)
	assert.Equal(t, []string{"c"}, decode(t, w.messages[1]).FindingKeys)
	assert.NotEqual(t, first.EventID, decode(t, w.messages[1]).EventID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestRetriageNothingToPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewRetriageProducerWithWriter(w, "epss", nil)
	require.NoError(t, p.Retriage(context.Background(), nil))
	assert.Zero(t, w.calls)
}

func TestRetriageRetriesPublish(t *testing.T) {
	w := &fakeWriter{failures: 1}
	p := NewRetriageProducerWithWriter(w, "epss", nil)
	require.NoError(t, p.Retriage(context.Background(), []string{"a"}))
	assert.Equal(t, 2, w.calls)
	assert.Len(t, w.messages, 1)
}

func TestRetriageGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 5}
	p := NewRetriageProducerWithWriter(w, "epss", nil)
	p.Retries = 0
	assert.Error(t, p.Retriage(context.Background(), []string{"a"}))
	assert.Equal(t, 1, w.calls)
}

func TestHandleRetriageRequested(t *testing.T) {
	r := &recordingRetriager{}
	payload, err := json.Marshal(RetriageRequestedEvent{
		EventType:   EventTypeRetriageRequested,
		EventID:     "e1",
		Source:      "epss",
		FindingKeys: []string{"f1", "f2"},
	})
	require.NoError(t, err)

	require.NoError(t, HandleRetriageRequested(context.Background(), payload, r, nil))
	assert.Equal(t, [][]string{{"f1", "f2"}}, r.keys)

	r.err = errors.New("store down")
	assert.ErrorContains(t, HandleRetriageRequested(context.Background(), payload, r, nil), "store down")
}

func TestHandleRetriageRequestedRejectsBadEvents(t *testing.T) {
	r := &recordingRetriager{}
	ctx := context.Background()

	assert.Error(t, HandleRetriageRequested(ctx, []byte("{"), r, nil))

	wrongType, _ := json.Marshal(RetriageRequestedEvent{EventType: "release.sbom.created", FindingKeys: []string{"f1"}})
	assert.Error(t, HandleRetriageRequested(ctx, wrongType, r, nil))

	empty, _ := json.Marshal(RetriageRequestedEvent{EventType: EventTypeRetriageRequested})
	assert.Error(t, HandleRetriageRequested(ctx, empty, r, nil))
	assert.Empty(t, r.keys)
}
