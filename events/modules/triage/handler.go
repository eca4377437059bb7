package triage

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Retriager re-evaluates findings.
type Retriager interface {
	Retriage(ctx context.Context, findingKeys []string) error
}

// HandleRetriageRequested processes one re-triage event from Kafka.
func HandleRetriageRequested(ctx context.Context, msg []byte, retriager Retriager, logger *zap.Logger) error {
	var event RetriageRequestedEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return fmt.Errorf("failed to unmarshal RetriageRequestedEvent: %w", err)
	}

	if event.EventType != EventTypeRetriageRequested {
		return fmt.Errorf("unexpected event type %q", event.EventType)
	}
	if len(event.FindingKeys) == 0 {
		return fmt.Errorf("invalid event %s: no finding keys", event.EventID)
	}

	if logger != nil {
		logger.Info("Processing re-triage request",
			zap.String("event_id", event.EventID),
			zap.String("source", event.Source),
			zap.Int("findings", len(event.FindingKeys)))
	}

	if err := retriager.Retriage(ctx, event.FindingKeys); err != nil {
		return fmt.Errorf("re-triage for event %s: %w", event.EventID, err)
	}
	return nil
}
