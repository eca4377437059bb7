// Package findings implements the resolvers for projected findings.
package findings

import (
	"context"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/util"
)

// Query narrows ResolveFindings.
type Query struct {
	ProductKey string
	ActiveOnly bool
	Severity   string
	Decision   string
	Limit      int
}

// ResolveFinding fetches a single finding by key.
func ResolveFinding(ctx context.Context, st store.Store, key string) (map[string]interface{}, error) {
	f, found, err := st.GetFinding(ctx, key)
	if err != nil || !found {
		return nil, err
	}
	return toMap(f), nil
}

// ResolveFindings lists findings. Severity and decision are matched after the store lookup,
// so the limit is applied here as well.
func ResolveFindings(ctx context.Context, st store.Store, q Query) ([]map[string]interface{}, error) {
	filter := store.FindingFilter{ProductKey: q.ProductKey, ActiveOnly: q.ActiveOnly}
	if q.Severity == "" && q.Decision == "" {
		filter.Limit = q.Limit
	}
	list, err := st.ListFindings(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := []map[string]interface{}{}
	for _, f := range list {
		if q.Severity != "" && f.Severity != q.Severity {
			continue
		}
		if q.Decision != "" && decisionOf(f) != model.TriageDecision(q.Decision) {
			continue
		}
		result = append(result, toMap(f))
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, nil
}

func decisionOf(f *model.Finding) model.TriageDecision {
	if f.AutoTriageDecision == "" {
		return model.DecisionPending
	}
	return f.AutoTriageDecision
}

func deref[T any](v *T) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func toMap(f *model.Finding) map[string]interface{} {
	var triagedAt interface{}
	if f.AutoTriagedAt != nil {
		triagedAt = f.AutoTriagedAt.UTC().Format(time.RFC3339)
	}
	var rating interface{}
	if f.CVSSv3Score != nil {
		rating = util.GetSeverityRating(*f.CVSSv3Score)
	}
	return map[string]interface{}{
		"key":                  f.Key,
		"title":                f.Title,
		"description":          f.Description,
		"severity":             f.Severity,
		"unique_id_from_tool":  f.UniqueIDFromTool,
		"vuln_id_from_tool":    f.VulnIDFromTool,
		"cve":                  f.CVE,
		"cwe":                  deref(f.CWE),
		"cvssv3":               f.CVSSv3,
		"cvssv3_score":         deref(f.CVSSv3Score),
		"cvssv3_rating":        rating,
		"component_name":       f.ComponentName,
		"component_version":    f.ComponentVersion,
		"component_purl":       f.ComponentPURL,
		"file_path":            f.FilePath,
		"line":                 deref(f.Line),
		"mitigation":           f.Mitigation,
		"date":                 f.Date,
		"active":               f.Active,
		"is_mitigated":         f.IsMitigated,
		"risk_accepted":        f.RiskAccepted,
		"epss_score":           deref(f.EPSSScore),
		"epss_percentile":      deref(f.EPSSPercentile),
		"auto_triage_decision": string(decisionOf(f)),
		"auto_triage_reason":   f.AutoTriageReason,
		"auto_triaged_at":      triagedAt,
	}
}
