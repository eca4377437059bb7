// Package model - Finding defines the projected finding together with its engagement/test containers.
package model

import "time"

// Severity vocabulary used on findings.
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
	SeverityInfo     = "Info"
)

// TriageDecision is the terminal outcome of auto-triage.
type TriageDecision string

// TriageDecision values
const (
	DecisionPending    TriageDecision = "PENDING"
	DecisionDismiss    TriageDecision = "DISMISS"
	DecisionEscalate   TriageDecision = "ESCALATE"
	DecisionAcceptRisk TriageDecision = "ACCEPT_RISK"
)

// Valid reports whether d is one of the known decisions.
func (d TriageDecision) Valid() bool {
	switch d {
	case DecisionPending, DecisionDismiss, DecisionEscalate, DecisionAcceptRisk:
		return true
	}
	return false
}

// Engagement groups the alert tests of one repository under its product.
type Engagement struct {
	Key        string    `json:"_key,omitempty"`
	ObjType    string    `json:"objtype,omitempty"`
	Name       string    `json:"name"`
	ProductKey string    `json:"product_key"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Test is the per-taxonomy container of findings inside an engagement.
type Test struct {
	Key           string    `json:"_key,omitempty"`
	ObjType       string    `json:"objtype,omitempty"`
	Title         string    `json:"title"`
	TestType      string    `json:"test_type"`
	EngagementKey string    `json:"engagement_key"`
	CreatedAt     time.Time `json:"created_at"`
}

// Finding is the projection of one source alert.
type Finding struct {
	Key              string   `json:"_key,omitempty"`
	ObjType          string   `json:"objtype,omitempty"`
	TestKey          string   `json:"test_key"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Severity         string   `json:"severity"`
	NumericalScore   string   `json:"numerical_severity,omitempty"`
	UniqueIDFromTool string   `json:"unique_id_from_tool"`
	VulnIDFromTool   string   `json:"vuln_id_from_tool,omitempty"`
	CVE              string   `json:"cve,omitempty"`
	CWE              *int     `json:"cwe,omitempty"`
	CVSSv3           string   `json:"cvssv3,omitempty"`
	CVSSv3Score      *float64 `json:"cvssv3_score,omitempty"`
	ComponentName    string   `json:"component_name,omitempty"`
	ComponentVersion string   `json:"component_version,omitempty"`
	ComponentPURL    string   `json:"component_purl,omitempty"`
	FilePath         string   `json:"file_path,omitempty"`
	Line             *int     `json:"line,omitempty"`
	Mitigation       string   `json:"mitigation,omitempty"`
	References       string   `json:"references,omitempty"`
	Date             string   `json:"date"`

	Active        bool       `json:"active"`
	Verified      bool       `json:"verified"`
	IsMitigated   bool       `json:"is_mitigated"`
	Mitigated     *time.Time `json:"mitigated,omitempty"`
	MitigatedBy   string     `json:"mitigated_by,omitempty"`
	RiskAccepted  bool       `json:"risk_accepted"`
	FalsePositive bool       `json:"false_p"`
	OutOfScope    bool       `json:"out_of_scope"`

	EPSSScore      *float64 `json:"epss_score,omitempty"`
	EPSSPercentile *float64 `json:"epss_percentile,omitempty"`

	AutoTriageDecision TriageDecision `json:"auto_triage_decision"`
	AutoTriageReason   string         `json:"auto_triage_reason,omitempty"`
	AutoTriagedAt      *time.Time     `json:"auto_triaged_at,omitempty"`
}

// NewFinding creates an empty finding bound to a test container.
func NewFinding(key, testKey, uniqueID string) *Finding {
	return &Finding{
		Key:                key,
		ObjType:            "Finding",
		TestKey:            testKey,
		UniqueIDFromTool:   uniqueID,
		Verified:           true,
		AutoTriageDecision: DecisionPending,
	}
}
