// Package repositories implements the resolvers for tracked repositories.
package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
)

var tierRank = map[model.Tier]int{
	model.Tier1:    1,
	model.Tier2:    2,
	model.Tier3:    3,
	model.Tier4:    4,
	model.Archived: 5,
}

// ResolveRepository looks a repository up by key, or by full name when no key is given.
func ResolveRepository(ctx context.Context, st store.Store, key, fullName string) (map[string]interface{}, error) {
	var (
		repo  *model.Repository
		found bool
		err   error
	)
	switch {
	case key != "":
		repo, found, err = st.GetRepository(ctx, key)
	case fullName != "":
		repo, found, err = st.FindRepositoryByName(ctx, fullName)
	default:
		return nil, nil
	}
	if err != nil || !found {
		return nil, err
	}
	return toMap(repo), nil
}

// ResolveRepositories lists repositories ordered by tier then name, optionally restricted to
// one tier.
func ResolveRepositories(ctx context.Context, st store.Store, tier string, limit int) ([]map[string]interface{}, error) {
	repos, err := st.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(repos, func(i, j int) bool {
		if tierRank[repos[i].Tier] != tierRank[repos[j].Tier] {
			return tierRank[repos[i].Tier] < tierRank[repos[j].Tier]
		}
		return repos[i].FullName < repos[j].FullName
	})

	result := []map[string]interface{}{}
	for _, repo := range repos {
		if tier != "" && string(repo.Tier) != tier {
			continue
		}
		result = append(result, toMap(repo))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// signalList flattens the signal struct into name/value pairs using its stored field names.
func signalList(s model.Signals) []map[string]interface{} {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var flags map[string]bool
	if err := json.Unmarshal(raw, &flags); err != nil {
		return nil
	}
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		list = append(list, map[string]interface{}{"name": name, "value": flags[name]})
	}
	return list
}

func toMap(r *model.Repository) map[string]interface{} {
	var days interface{}
	if r.DaysSinceLastCommit != nil {
		days = *r.DaysSinceLastCommit
	}
	return map[string]interface{}{
		"key":                     r.Key,
		"name":                    r.Name,
		"full_name":               r.FullName,
		"url":                     r.URL,
		"product_key":             r.ProductKey,
		"tier":                    string(r.Tier),
		"business_criticality":    r.BusinessCriticality,
		"tier_confidence":         r.TierConfidence,
		"tier_reasons":            r.TierReasons,
		"signals":                 signalList(r.Signals),
		"last_commit_date":        formatTime(r.LastCommitDate),
		"days_since_last_commit":  days,
		"active_contributors_90d": r.ActiveContributors90d,
		"readme_summary":          r.ReadmeSummary,
		"primary_language":        r.PrimaryLanguage,
		"primary_framework":       r.PrimaryFramework,
		"ownership_confidence":    r.OwnershipConfidence,
		"alert_counts": map[string]interface{}{
			"dependabot_alerts":      r.AlertCounts.Dependabot,
			"codeql_alerts":          r.AlertCounts.CodeQL,
			"secret_scanning_alerts": r.AlertCounts.SecretScanning,
		},
		"last_alert_sync": formatTime(r.LastAlertSync),
		"finding_counts": map[string]interface{}{
			"critical": r.FindingCounts.Critical,
			"high":     r.FindingCounts.High,
			"medium":   r.FindingCounts.Medium,
			"low":      r.FindingCounts.Low,
			"info":     r.FindingCounts.Info,
		},
		"last_synced_at": formatTime(r.LastSyncedAt),
	}
}
