package collector

import (
	"fmt"

	"github.com/ortelius/pdvd-enricher/model"
)

// ArchiveAfterDays is the commit inactivity after which a repository is archived.
const ArchiveAfterDays = 180

// Classification is the outcome of tier classification.
type Classification struct {
	Tier                model.Tier `json:"tier" yaml:"tier"`
	BusinessCriticality string     `json:"business_criticality" yaml:"business_criticality"`
	Confidence          int        `json:"confidence" yaml:"confidence"`
	Reasons             []string   `json:"reasons" yaml:"reasons"`
}

// categoryWeights weighs the production, development, security and organization signal counts.
type categoryWeights struct {
	production, development, security, organization int
}

var tierWeights = map[model.Tier]categoryWeights{
	model.Tier1: {15, 5, 5, 3},
	model.Tier2: {10, 10, 5, 3},
	model.Tier3: {5, 12, 5, 5},
	model.Tier4: {3, 5, 3, 10},
}

// Classify maps a signal set and the commit inactivity onto a tier. Branches are evaluated
// in order and the first match wins.
func Classify(s model.Signals, daysSinceLastCommit *int) Classification {
	if daysSinceLastCommit != nil && *daysSinceLastCommit > ArchiveAfterDays {
		return Classification{
			Tier:                model.Archived,
			BusinessCriticality: model.Archived.BusinessCriticality(),
			Confidence:          100,
			Reasons:             []string{fmt.Sprintf("No commits in %d days", *daysSinceLastCommit)},
		}
	}

	tier, reason := model.Tier4, "Does not meet criteria for higher tiers"
	switch {
	case s.Containerized() && s.HasEnvironments && s.HasMonitoringConfig && s.RecentCommits30d:
		tier, reason = model.Tier1, "Containerized production system with monitoring and active maintenance"
	case s.HasKubernetesConfig && s.HasReleases && s.HasBranchProtection && s.HasMonitoringConfig:
		tier, reason = model.Tier1, "Kubernetes-based production system with release management"
	case s.HasCICD && s.HasReleases && s.HasBranchProtection && s.MultipleContributors:
		tier, reason = model.Tier2, "Well-maintained codebase with release process and team collaboration"
	case s.Containerized() && (s.HasMonitoringConfig || s.HasCICD) && s.RecentCommits30d:
		tier, reason = model.Tier2, "Containerized system with production indicators"
	case s.HasTests && s.RecentCommits30d && s.HasDocumentation:
		tier, reason = model.Tier3, "Active development with testing and documentation"
	case s.HasCICD && s.RecentCommits30d:
		tier, reason = model.Tier3, "Active development with automated testing"
	case s.RecentCommits30d && s.MultipleContributors:
		tier, reason = model.Tier3, "Actively maintained by team"
	}

	return Classification{
		Tier:                tier,
		BusinessCriticality: tier.BusinessCriticality(),
		Confidence:          Confidence(s, tier),
		Reasons:             []string{reason},
	}
}

func count(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// Confidence weighs the four signal categories by the assigned tier, capped at 100.
func Confidence(s model.Signals, tier model.Tier) int {
	w, ok := tierWeights[tier]
	if !ok {
		return 100
	}
	production := count(s.HasDockerfile, s.HasKubernetesConfig, s.HasEnvironments,
		s.HasReleases, s.HasMonitoringConfig, s.HasBranchProtection)
	development := count(s.HasCICD, s.HasTests, s.RecentCommits30d, s.ActivePRs30d,
		s.MultipleContributors, s.ConsistentCommitPattern)
	security := count(s.HasSecurityScanning, s.HasSecretScanning, s.HasDependencyScanning, s.HasSASTConfig)
	organization := count(s.HasDocumentation, s.HasAPISpecs, s.HasCodeowners, s.HasSecurityMD)

	score := production*w.production + development*w.development +
		security*w.security + organization*w.organization
	if score > 100 {
		return 100
	}
	return score
}

// ExplainTier describes a tier for operators.
func ExplainTier(t model.Tier) string {
	switch t {
	case model.Tier1:
		return "Critical Production: Containerized, monitored, actively maintained system in production"
	case model.Tier2:
		return "High Priority: Well-maintained codebase with release process and team collaboration"
	case model.Tier3:
		return "Medium Priority: Active development with testing and documentation"
	case model.Tier4:
		return "Low Priority: Limited production indicators or development activity"
	case model.Archived:
		return "Archived: No recent activity, repository marked for archival"
	}
	return "Unknown tier"
}
