package github

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/util"
)

var cweTag = regexp.MustCompile(`(?i)cwe[-/](\d+)`)

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func tsPtr(ts gh.Timestamp) *time.Time {
	return timePtr(ts.Time)
}

func rawJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// CodeQLSeverity maps static-analysis severities onto the alert vocabulary. Unrecognized
// values default to "medium".
func CodeQLSeverity(severity string) string {
	switch s := strings.ToLower(strings.TrimSpace(severity)); s {
	case "critical", "high", "medium", "low":
		return s
	case "warning":
		return "low"
	case "note":
		return "info"
	case "error":
		return "medium"
	}
	return "medium"
}

func normalizeDependabotState(state string) model.AlertState {
	switch strings.ToUpper(state) {
	case "FIXED":
		return model.AlertFixed
	case "DISMISSED", "AUTO_DISMISSED":
		return model.AlertDismissed
	}
	return model.AlertOpen
}

func normalizeCodeQLState(state string) model.AlertState {
	switch strings.ToLower(state) {
	case "fixed", "closed":
		return model.AlertFixed
	case "dismissed":
		return model.AlertDismissed
	}
	return model.AlertOpen
}

// Secret alerts are "open" or "resolved"; a revoked secret counts as fixed, every other
// resolution (false positive, wont fix, used in tests, ...) as dismissed.
func normalizeSecretState(state, resolution string) model.AlertState {
	if strings.ToLower(state) != "resolved" {
		return model.AlertOpen
	}
	if strings.ToLower(resolution) == "revoked" {
		return model.AlertFixed
	}
	return model.AlertDismissed
}

func normalizeDependabot(n *vulnerabilityAlertNode, repoURL string) model.Alert {
	adv := n.SecurityAdvisory
	vuln := n.SecurityVulnerability

	severity := vuln.Severity
	if severity == "" {
		severity = adv.Severity
	}

	a := model.Alert{
		ObjType:           "Alert",
		Taxonomy:          model.Dependabot,
		Number:            n.Number,
		State:             normalizeDependabotState(n.State),
		RemoteState:       strings.ToLower(n.State),
		Severity:          strings.ToLower(severity),
		Title:             adv.Summary,
		Description:       adv.Description,
		PackageName:       vuln.Package.Name,
		PackageEcosystem:  strings.ToLower(vuln.Package.Ecosystem),
		VulnerableVersion: vuln.VulnerableVersionRange,
		InstalledVersion:  util.VersionFromRequirement(n.VulnerableRequirements),
		ManifestPath:      n.VulnerableManifestPath,
		GHSAID:            adv.GhsaID,
		CVSSScore:         adv.CVSS.Score,
		CVSSVector:        adv.CVSS.VectorString,
		RemoteCreatedAt:   timePtr(n.CreatedAt.Time),
		DismissedReason:   n.DismissReason,
		Raw:               rawJSON(n),
	}
	if vuln.FirstPatchedVersion != nil {
		a.PatchedVersion = vuln.FirstPatchedVersion.Identifier
	}
	for _, id := range adv.Identifiers {
		if strings.EqualFold(id.Type, "CVE") && a.CVEID == "" {
			a.CVEID = strings.ToUpper(id.Value)
		}
	}
	var cwes []string
	for _, c := range adv.Cwes.Nodes {
		cwes = append(cwes, c.CweID)
	}
	a.CWE = strings.Join(cwes, ", ")
	if n.FixedAt != nil {
		a.FixedAt = timePtr(n.FixedAt.Time)
	}
	if n.DismissedAt != nil {
		a.DismissedAt = timePtr(n.DismissedAt.Time)
	} else if n.AutoDismissedAt != nil {
		a.DismissedAt = timePtr(n.AutoDismissedAt.Time)
	}
	if repoURL != "" {
		a.HTMLURL = fmt.Sprintf("%s/security/dependabot/%d", strings.TrimRight(repoURL, "/"), n.Number)
	} else if adv.Permalink != "" {
		a.HTMLURL = adv.Permalink
	}
	return a
}

// cweFromTags turns CodeQL rule tags such as "external/cwe/cwe-079" into "CWE-79, ...".
func cweFromTags(tags []string) string {
	var out []string
	for _, tag := range tags {
		m := cweTag.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			out = append(out, fmt.Sprintf("CWE-%d", n))
		}
	}
	return strings.Join(out, ", ")
}

// NormalizeCodeQL converts a code-scanning alert into the mirror vocabulary.
func NormalizeCodeQL(in *gh.Alert) model.Alert {
	rule := in.GetRule()
	severity := rule.GetSecuritySeverityLevel()
	if severity == "" {
		severity = rule.GetSeverity()
	}
	if severity == "" {
		severity = in.GetRuleSeverity()
	}

	title := rule.GetDescription()
	if title == "" {
		title = in.GetRuleDescription()
	}
	if title == "" {
		title = rule.GetName()
	}
	description := rule.GetFullDescription()
	if description == "" {
		description = in.GetMostRecentInstance().GetMessage().GetText()
	}
	ruleID := rule.GetID()
	if ruleID == "" {
		ruleID = in.GetRuleID()
	}

	loc := in.GetMostRecentInstance().GetLocation()
	state := normalizeCodeQLState(in.GetState())
	a := model.Alert{
		ObjType:         "Alert",
		Taxonomy:        model.CodeQL,
		Number:          in.GetNumber(),
		State:           state,
		RemoteState:     strings.ToLower(in.GetState()),
		Severity:        CodeQLSeverity(severity),
		Title:           title,
		Description:     description,
		HTMLURL:         in.GetHTMLURL(),
		RuleID:          ruleID,
		RuleDescription: rule.GetDescription(),
		ToolName:        in.GetTool().GetName(),
		CWE:             cweFromTags(rule.Tags),
		FilePath:        loc.GetPath(),
		StartLine:       loc.GetStartLine(),
		EndLine:         loc.GetEndLine(),
		RemoteCreatedAt: tsPtr(in.GetCreatedAt()),
		RemoteUpdatedAt: tsPtr(in.GetUpdatedAt()),
		DismissedAt:     tsPtr(in.GetDismissedAt()),
		DismissedReason: in.GetDismissedReason(),
		FixedAt:         tsPtr(in.GetFixedAt()),
		Raw:             rawJSON(in),
	}
	if a.FixedAt == nil && state == model.AlertFixed {
		a.FixedAt = tsPtr(in.GetClosedAt())
	}
	return a
}

// NormalizeSecret converts a secret-scanning alert into the mirror vocabulary. The secret
// value itself is never retained.
func NormalizeSecret(in *gh.SecretScanningAlert) model.Alert {
	redacted := *in
	redacted.Secret = nil

	display := in.GetSecretTypeDisplayName()
	if display == "" {
		display = in.GetSecretType()
	}
	state := normalizeSecretState(in.GetState(), in.GetResolution())
	a := model.Alert{
		ObjType:               "Alert",
		Taxonomy:              model.SecretScanning,
		Number:                in.GetNumber(),
		State:                 state,
		RemoteState:           strings.ToLower(in.GetState()),
		Severity:              "critical",
		Title:                 display + " detected",
		HTMLURL:               in.GetHTMLURL(),
		SecretType:            in.GetSecretType(),
		SecretTypeDisplayName: display,
		Resolution:            in.GetResolution(),
		RemoteCreatedAt:       tsPtr(in.GetCreatedAt()),
		RemoteUpdatedAt:       tsPtr(in.GetUpdatedAt()),
		Raw:                   rawJSON(&redacted),
	}
	switch state {
	case model.AlertFixed:
		a.FixedAt = tsPtr(in.GetResolvedAt())
	case model.AlertDismissed:
		a.DismissedAt = tsPtr(in.GetResolvedAt())
		a.DismissedReason = in.GetResolution()
	}
	return a
}

// CodeQLAlerts fetches and normalizes every code-scanning alert of a repository.
func (c *RESTClient) CodeQLAlerts(ctx context.Context, owner, name string) ([]model.Alert, error) {
	raw, err := c.listCodeScanningAlerts(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	alerts := make([]model.Alert, 0, len(raw))
	for _, in := range raw {
		alerts = append(alerts, NormalizeCodeQL(in))
	}
	return alerts, nil
}

// SecretScanningAlerts fetches and normalizes every secret-scanning alert of a repository.
func (c *RESTClient) SecretScanningAlerts(ctx context.Context, owner, name string) ([]model.Alert, error) {
	raw, err := c.listSecretScanningAlerts(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	alerts := make([]model.Alert, 0, len(raw))
	for _, in := range raw {
		alerts = append(alerts, NormalizeSecret(in))
	}
	return alerts, nil
}
