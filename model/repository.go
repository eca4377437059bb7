// Package model - Repository defines the tracked source repository record together with its signal set.
package model

import "time"

// Tier is the business-criticality bucket assigned to a repository.
type Tier string

// Tier values
const (
	Tier1    Tier = "tier1"
	Tier2    Tier = "tier2"
	Tier3    Tier = "tier3"
	Tier4    Tier = "tier4"
	Archived Tier = "archived"
)

// BusinessCriticality maps a tier onto the criticality vocabulary stored on products.
func (t Tier) BusinessCriticality() string {
	switch t {
	case Tier1:
		return "very high"
	case Tier2:
		return "high"
	case Tier3:
		return "medium"
	case Tier4:
		return "low"
	case Archived:
		return "none"
	}
	return ""
}

// TierFromCriticality is the inverse of BusinessCriticality. Unknown values map to the empty tier.
func TierFromCriticality(criticality string) Tier {
	switch criticality {
	case "very high":
		return Tier1
	case "high":
		return Tier2
	case "medium":
		return Tier3
	case "low":
		return Tier4
	case "none":
		return Archived
	}
	return ""
}

// Signals holds every boolean fact derived about a repository.
type Signals struct {
	// deployment
	HasDockerfile        bool `json:"has_dockerfile"`
	HasKubernetesConfig  bool `json:"has_kubernetes_config"`
	HasCICD              bool `json:"has_ci_cd"`
	HasTerraform         bool `json:"has_terraform"`
	HasDeploymentScripts bool `json:"has_deployment_scripts"`
	HasProcfile          bool `json:"has_procfile"`

	// production
	HasEnvironments       bool `json:"has_environments"`
	HasReleases           bool `json:"has_releases"`
	HasBranchProtection   bool `json:"has_branch_protection"`
	HasMonitoringConfig   bool `json:"has_monitoring_config"`
	HasSSLConfig          bool `json:"has_ssl_config"`
	HasDatabaseMigrations bool `json:"has_database_migrations"`

	// activity
	RecentCommits30d        bool `json:"recent_commits_30d"`
	RecentCommits90d        bool `json:"recent_commits_90d"`
	RecentCommits180d       bool `json:"recent_commits_180d"`
	ActivePRs30d            bool `json:"active_prs_30d"`
	MultipleContributors    bool `json:"multiple_contributors"`
	HasDependabotActivity   bool `json:"has_dependabot_activity"`
	RecentReleases90d       bool `json:"recent_releases_90d"`
	ConsistentCommitPattern bool `json:"consistent_commit_pattern"`

	// organization
	HasTests             bool `json:"has_tests"`
	HasDocumentation     bool `json:"has_documentation"`
	HasAPISpecs          bool `json:"has_api_specs"`
	HasCodeowners        bool `json:"has_codeowners"`
	HasSecurityMD        bool `json:"has_security_md"`
	IsMonorepo           bool `json:"is_monorepo"`
	HasReadme            bool `json:"has_readme"`
	HasLicense           bool `json:"has_license"`
	HasChangelog         bool `json:"has_changelog"`
	HasContributingGuide bool `json:"has_contributing_guide"`

	// security
	HasSecurityScanning    bool `json:"has_security_scanning"`
	HasSecretScanning      bool `json:"has_secret_scanning"`
	HasDependencyScanning  bool `json:"has_dependency_scanning"`
	HasGitleaksConfig      bool `json:"has_gitleaks_config"`
	HasSASTConfig          bool `json:"has_sast_config"`
	HasVulnerabilityAlerts bool `json:"has_vulnerability_alerts"`
}

// Containerized reports whether the repository ships a container image or cluster manifests.
func (s Signals) Containerized() bool {
	return s.HasDockerfile || s.HasKubernetesConfig
}

// ProductionSignal reports the production indicators used by triage rules.
func (s Signals) ProductionSignal() bool {
	return s.HasKubernetesConfig || s.HasEnvironments || s.HasReleases
}

// ActiveDevelopment reports recent commits, pull requests and a team.
func (s Signals) ActiveDevelopment() bool {
	return s.RecentCommits30d && s.ActivePRs30d && s.MultipleContributors
}

// Count returns how many signals are set.
func (s Signals) Count() int {
	n := 0
	for _, b := range s.All() {
		if b {
			n++
		}
	}
	return n
}

// All lists every signal by its stored name.
func (s Signals) All() map[string]bool {
	return map[string]bool{
		"has_dockerfile":            s.HasDockerfile,
		"has_kubernetes_config":     s.HasKubernetesConfig,
		"has_ci_cd":                 s.HasCICD,
		"has_terraform":             s.HasTerraform,
		"has_deployment_scripts":    s.HasDeploymentScripts,
		"has_procfile":              s.HasProcfile,
		"has_environments":          s.HasEnvironments,
		"has_releases":              s.HasReleases,
		"has_branch_protection":     s.HasBranchProtection,
		"has_monitoring_config":     s.HasMonitoringConfig,
		"has_ssl_config":            s.HasSSLConfig,
		"has_database_migrations":   s.HasDatabaseMigrations,
		"recent_commits_30d":        s.RecentCommits30d,
		"recent_commits_90d":        s.RecentCommits90d,
		"recent_commits_180d":       s.RecentCommits180d,
		"active_prs_30d":            s.ActivePRs30d,
		"multiple_contributors":     s.MultipleContributors,
		"has_dependabot_activity":   s.HasDependabotActivity,
		"recent_releases_90d":       s.RecentReleases90d,
		"consistent_commit_pattern": s.ConsistentCommitPattern,
		"has_tests":                 s.HasTests,
		"has_documentation":         s.HasDocumentation,
		"has_api_specs":             s.HasAPISpecs,
		"has_codeowners":            s.HasCodeowners,
		"has_security_md":           s.HasSecurityMD,
		"is_monorepo":               s.IsMonorepo,
		"has_readme":                s.HasReadme,
		"has_license":               s.HasLicense,
		"has_changelog":             s.HasChangelog,
		"has_contributing_guide":    s.HasContributingGuide,
		"has_security_scanning":     s.HasSecurityScanning,
		"has_secret_scanning":       s.HasSecretScanning,
		"has_dependency_scanning":   s.HasDependencyScanning,
		"has_gitleaks_config":       s.HasGitleaksConfig,
		"has_sast_config":           s.HasSASTConfig,
		"has_vulnerability_alerts":  s.HasVulnerabilityAlerts,
	}
}

// AlertCounts are the per-taxonomy alert totals cached on a repository.
type AlertCounts struct {
	Dependabot     int `json:"dependabot_alerts"`
	CodeQL         int `json:"codeql_alerts"`
	SecretScanning int `json:"secret_scanning_alerts"`
}

// Total sums the three taxonomies.
func (c AlertCounts) Total() int {
	return c.Dependabot + c.CodeQL + c.SecretScanning
}

// FindingCounts is the cached snapshot of findings by severity.
type FindingCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Repository is a tracked code repository.
type Repository struct {
	Key                   string        `json:"_key,omitempty"`
	ObjType               string        `json:"objtype,omitempty"`
	RemoteID              int64         `json:"remote_id"`
	Name                  string        `json:"name"`
	FullName              string        `json:"full_name"`
	URL                   string        `json:"url,omitempty"`
	ProductKey            string        `json:"product_key,omitempty"`
	Tier                  Tier          `json:"tier"`
	BusinessCriticality   string        `json:"business_criticality"`
	TierConfidence        int           `json:"tier_confidence"`
	TierReasons           []string      `json:"tier_reasons,omitempty"`
	Signals               Signals       `json:"signals"`
	LastCommitDate        *time.Time    `json:"last_commit_date,omitempty"`
	DaysSinceLastCommit   *int          `json:"days_since_last_commit,omitempty"`
	ActiveContributors90d int           `json:"active_contributors_90d"`
	ReadmeSummary         string        `json:"readme_summary,omitempty"`
	ReadmeLength          int           `json:"readme_length"`
	PrimaryLanguage       string        `json:"primary_language,omitempty"`
	PrimaryFramework      string        `json:"primary_framework,omitempty"`
	CodeownersContent     string        `json:"codeowners_content,omitempty"`
	OwnershipConfidence   int           `json:"ownership_confidence"`
	AlertCounts           AlertCounts   `json:"alert_counts"`
	LastAlertSync         *time.Time    `json:"last_alert_sync,omitempty"`
	FindingCounts         FindingCounts `json:"finding_counts"`
	RemoteUpdatedAt       *time.Time    `json:"remote_updated_at,omitempty"`
	LastSyncedAt          *time.Time    `json:"last_synced_at,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
}

// NewRepository creates a repository record for a remote identifier.
func NewRepository(remoteID int64, fullName string) *Repository {
	return &Repository{
		Key:       RepositoryKey(remoteID),
		ObjType:   "Repository",
		RemoteID:  remoteID,
		FullName:  fullName,
		Tier:      Tier4,
		CreatedAt: time.Now().UTC(),
	}
}
