// Package triage defines the Kafka events that request re-triage of findings.
package triage

import "time"

// Event identity
const (
	EventTypeRetriageRequested = "finding.retriage.requested"
	SchemaVersion              = "v1"
)

// RetriageRequestedEvent asks the consumer to re-evaluate the triage decision of findings.
type RetriageRequestedEvent struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	// Source names the component that flagged the findings, e.g. "epss".
	Source      string   `json:"source"`
	FindingKeys []string `json:"finding_keys"`
}
