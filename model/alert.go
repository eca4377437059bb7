// Package model - Alert defines the mirrored third-party security alert and its per-repository sync cursor.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Taxonomy is one of the three alert kinds mirrored from the remote platform.
type Taxonomy string

// Taxonomy values
const (
	Dependabot     Taxonomy = "dependabot"
	CodeQL         Taxonomy = "codeql"
	SecretScanning Taxonomy = "secret_scanning"
)

// Taxonomies lists every taxonomy in sync order.
var Taxonomies = []Taxonomy{Dependabot, CodeQL, SecretScanning}

// AlertState is the normalized remote state of an alert.
type AlertState string

// AlertState values
const (
	AlertOpen      AlertState = "open"
	AlertFixed     AlertState = "fixed"
	AlertDismissed AlertState = "dismissed"
)

// Alert is one mirrored remote alert. (RepositoryKey, Taxonomy, Number) is unique.
type Alert struct {
	Key           string     `json:"_key,omitempty"`
	ObjType       string     `json:"objtype,omitempty"`
	RepositoryKey string     `json:"repository_key"`
	Taxonomy      Taxonomy   `json:"taxonomy"`
	Number        int        `json:"number"`
	State         AlertState `json:"state"`
	RemoteState   string     `json:"remote_state,omitempty"`
	Severity      string     `json:"severity"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	HTMLURL       string     `json:"html_url,omitempty"`

	// dependency alerts
	PackageName       string  `json:"package_name,omitempty"`
	PackageEcosystem  string  `json:"package_ecosystem,omitempty"`
	VulnerableVersion string  `json:"vulnerable_version_range,omitempty"`
	InstalledVersion  string  `json:"installed_version,omitempty"`
	PatchedVersion    string  `json:"patched_version,omitempty"`
	ManifestPath      string  `json:"manifest_path,omitempty"`
	CVEID             string  `json:"cve_id,omitempty"`
	GHSAID            string  `json:"ghsa_id,omitempty"`
	CVSSScore         float64 `json:"cvss_score,omitempty"`
	CVSSVector        string  `json:"cvss_vector,omitempty"`

	// static-analysis alerts
	RuleID          string `json:"rule_id,omitempty"`
	RuleDescription string `json:"rule_description,omitempty"`
	ToolName        string `json:"tool_name,omitempty"`
	CWE             string `json:"cwe,omitempty"`
	FilePath        string `json:"file_path,omitempty"`
	StartLine       int    `json:"start_line,omitempty"`
	EndLine         int    `json:"end_line,omitempty"`

	// secret alerts
	SecretType            string `json:"secret_type,omitempty"`
	SecretTypeDisplayName string `json:"secret_type_display_name,omitempty"`
	Resolution            string `json:"resolution,omitempty"`

	RemoteCreatedAt *time.Time `json:"remote_created_at,omitempty"`
	RemoteUpdatedAt *time.Time `json:"remote_updated_at,omitempty"`
	DismissedAt     *time.Time `json:"dismissed_at,omitempty"`
	DismissedReason string     `json:"dismissed_reason,omitempty"`
	FixedAt         *time.Time `json:"fixed_at,omitempty"`

	FindingKey string          `json:"finding_key,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	SyncedAt   time.Time       `json:"synced_at"`
}

// AlertKey derives the document key of an alert from its dedup triple.
func AlertKey(repositoryKey string, taxonomy Taxonomy, number int) string {
	return fmt.Sprintf("%s-%s-%d", repositoryKey, taxonomy, number)
}

// SameContent reports whether a and b mirror the same remote data. Keys, the finding link and
// SyncedAt are ignored.
func (a Alert) SameContent(b Alert) bool {
	x, errA := a.content()
	y, errB := b.content()
	return errA == nil && errB == nil && bytes.Equal(x, y)
}

func (a Alert) content() ([]byte, error) {
	a.Key, a.ObjType, a.FindingKey = "", "", ""
	a.SyncedAt = time.Time{}
	for _, t := range []**time.Time{&a.RemoteCreatedAt, &a.RemoteUpdatedAt, &a.DismissedAt, &a.FixedAt} {
		if *t != nil {
			utc := (*t).UTC()
			*t = &utc
		}
	}
	return json.Marshal(a)
}

// AlertSyncCursor tracks the alert sync bookkeeping of one repository.
type AlertSyncCursor struct {
	Key                string     `json:"_key,omitempty"`
	ObjType            string     `json:"objtype,omitempty"`
	RepositoryKey      string     `json:"repository_key"`
	DependabotLastSync *time.Time `json:"dependabot_last_sync,omitempty"`
	CodeQLLastSync     *time.Time `json:"codeql_last_sync,omitempty"`
	SecretLastSync     *time.Time `json:"secret_scanning_last_sync,omitempty"`
	DependabotCount    int        `json:"dependabot_alerts_fetched"`
	CodeQLCount        int        `json:"codeql_alerts_fetched"`
	SecretCount        int        `json:"secret_scanning_alerts_fetched"`
	LastSyncError      string     `json:"last_sync_error,omitempty"`
	LastSyncErrorAt    *time.Time `json:"last_sync_error_at,omitempty"`
	FullSyncCompleted  bool       `json:"full_sync_completed"`
}

// NewAlertSyncCursor creates an empty cursor for a repository.
func NewAlertSyncCursor(repositoryKey string) *AlertSyncCursor {
	return &AlertSyncCursor{
		Key:           repositoryKey,
		ObjType:       "AlertSyncCursor",
		RepositoryKey: repositoryKey,
	}
}

// LastSuccessfulSync returns the oldest per-taxonomy sync time, or nil when any taxonomy never synced.
func (c *AlertSyncCursor) LastSuccessfulSync() *time.Time {
	var oldest *time.Time
	for _, t := range []*time.Time{c.DependabotLastSync, c.CodeQLLastSync, c.SecretLastSync} {
		if t == nil {
			return nil
		}
		if oldest == nil || t.Before(*oldest) {
			oldest = t
		}
	}
	return oldest
}

// MarkSucceeded records a completed sync of all three taxonomies.
func (c *AlertSyncCursor) MarkSucceeded(counts AlertCounts, at time.Time) {
	c.DependabotLastSync = &at
	c.CodeQLLastSync = &at
	c.SecretLastSync = &at
	c.DependabotCount = counts.Dependabot
	c.CodeQLCount = counts.CodeQL
	c.SecretCount = counts.SecretScanning
	c.FullSyncCompleted = true
	c.LastSyncError = ""
	c.LastSyncErrorAt = nil
}
