// Package findings projects mirrored GitHub alerts into findings grouped under the owning
// product's engagement and per-taxonomy tests.
package findings

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/util"
	"go.uber.org/zap"
)

// ErrNoProduct is returned when a repository has no owning product to project into.
var ErrNoProduct = errors.New("repository has no product")

const dateLayout = "2006-01-02"

var cwePattern = regexp.MustCompile(`(?i)CWE-?(\d+)`)

var testTypes = map[model.Taxonomy]string{
	model.Dependabot:     "GitHub Dependabot",
	model.CodeQL:         "GitHub CodeQL",
	model.SecretScanning: "GitHub Secret Scanning",
}

var severities = map[string]string{
	"critical": model.SeverityCritical,
	"high":     model.SeverityHigh,
	"error":    model.SeverityHigh,
	"moderate": model.SeverityMedium,
	"medium":   model.SeverityMedium,
	"low":      model.SeverityLow,
	"warning":  model.SeverityLow,
	"note":     model.SeverityInfo,
	"info":     model.SeverityInfo,
}

// Severity maps an alert severity onto the finding vocabulary. Unknown values are Info.
func Severity(s string) string {
	if v, ok := severities[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v
	}
	return model.SeverityInfo
}

// ParseCWE returns the number of the first CWE reference in s, or nil.
func ParseCWE(s string) *int {
	m := cwePattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// UniqueID is the dedup key of the finding projected from an alert.
func UniqueID(repo *model.Repository, a *model.Alert) string {
	return fmt.Sprintf("github:%s:%d:%d", a.Taxonomy, repo.RemoteID, a.Number)
}

// Stats summarizes a repository projection.
type Stats struct {
	Total   int `json:"total" yaml:"total"`
	Created int `json:"created" yaml:"created"`
	Updated int `json:"updated" yaml:"updated"`
	Errors  int `json:"errors" yaml:"errors"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Total += other.Total
	s.Created += other.Created
	s.Updated += other.Updated
	s.Errors += other.Errors
}

// Projector turns mirrored alerts into findings.
type Projector struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewProjector creates a projector writing into st.
func NewProjector(st store.Store, logger *zap.Logger, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{store: st, logger: util.OrNop(logger), now: now}
}

func (p *Projector) containers(ctx context.Context, repo *model.Repository, taxonomy model.Taxonomy) (*model.Test, error) {
	if repo.ProductKey == "" {
		return nil, fmt.Errorf("%s: %w", repo.FullName, ErrNoProduct)
	}
	_, found, err := p.store.GetProduct(ctx, repo.ProductKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", repo.FullName, ErrNoProduct)
	}

	now := p.now().UTC()
	engagement, err := p.store.EnsureEngagement(ctx, &model.Engagement{
		Key:        model.ContainerKey("github", repo.Key),
		ObjType:    "Engagement",
		Name:       "GitHub Security Alerts - " + repo.Name,
		ProductKey: repo.ProductKey,
		Status:     "In Progress",
		CreatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring engagement for %s: %w", repo.FullName, err)
	}
	testType := testTypes[taxonomy]
	test, err := p.store.EnsureTest(ctx, &model.Test{
		Key:           model.ContainerKey(engagement.Key, string(taxonomy)),
		ObjType:       "Test",
		Title:         testType + " - " + repo.Name,
		TestType:      testType,
		EngagementKey: engagement.Key,
		CreatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring %s test for %s: %w", taxonomy, repo.FullName, err)
	}
	return test, nil
}

// Project creates or refreshes the finding of one alert and links the alert to it. Projecting
// an unchanged alert again leaves the finding untouched.
func (p *Projector) Project(ctx context.Context, repo *model.Repository, a *model.Alert) (*model.Finding, bool, error) {
	test, err := p.containers(ctx, repo, a.Taxonomy)
	if err != nil {
		return nil, false, err
	}

	uid := UniqueID(repo, a)
	existing, found, err := p.store.FindFindingByUniqueID(ctx, uid)
	if err != nil {
		return nil, false, err
	}
	var f *model.Finding
	if found {
		cp := *existing
		f = &cp
	} else {
		f = model.NewFinding(model.FindingKey(uid), test.Key, uid)
	}
	f.TestKey = test.Key

	switch a.Taxonomy {
	case model.Dependabot:
		mapDependabot(f, a)
	case model.CodeQL:
		mapCodeQL(f, a)
	case model.SecretScanning:
		mapSecret(f, a)
	default:
		return nil, false, fmt.Errorf("unknown taxonomy %q", a.Taxonomy)
	}
	p.applyState(f, a)
	if f.Date == "" {
		if a.RemoteCreatedAt != nil {
			f.Date = a.RemoteCreatedAt.UTC().Format(dateLayout)
		} else {
			f.Date = p.now().UTC().Format(dateLayout)
		}
	}

	if found && a.FindingKey == f.Key && reflect.DeepEqual(existing, f) {
		return f, false, nil
	}
	if err := p.store.SaveProjection(ctx, f, a.Key); err != nil {
		return nil, false, fmt.Errorf("saving finding for alert %s: %w", a.Key, err)
	}
	return f, !found, nil
}

// applyState maps the alert state onto the finding state tuple.
func (p *Projector) applyState(f *model.Finding, a *model.Alert) {
	switch a.State {
	case model.AlertFixed:
		f.Active = false
		f.IsMitigated = true
		f.RiskAccepted = false
		switch {
		case a.FixedAt != nil:
			t := a.FixedAt.UTC()
			f.Mitigated = &t
		case f.Mitigated == nil:
			t := p.now().UTC()
			f.Mitigated = &t
		}
	case model.AlertDismissed:
		f.Active = false
		f.IsMitigated = false
		f.Mitigated = nil
		f.RiskAccepted = true
	default:
		f.Active = true
		f.IsMitigated = false
		f.Mitigated = nil
		f.MitigatedBy = ""
		f.RiskAccepted = false
		f.FalsePositive = false
		f.OutOfScope = false
	}
}

func mapDependabot(f *model.Finding, a *model.Alert) {
	f.Title = fmt.Sprintf("%s (%s): %s", a.PackageName, a.PackageEcosystem, a.Title)
	f.Severity = Severity(a.Severity)
	f.CVE = a.CVEID
	f.VulnIDFromTool = a.CVEID
	if f.VulnIDFromTool == "" {
		f.VulnIDFromTool = a.GHSAID
	}
	f.CWE = ParseCWE(a.CWE)
	f.CVSSv3 = a.CVSSVector
	f.CVSSv3Score = util.ResolveCVSSScore(a.CVSSVector, a.CVSSScore)
	f.ComponentName = a.PackageName
	f.ComponentVersion = a.InstalledVersion
	f.ComponentPURL = util.BuildPURL(a.PackageEcosystem, a.PackageName, a.InstalledVersion)
	f.FilePath = a.ManifestPath
	f.References = a.HTMLURL

	var b strings.Builder
	b.WriteString(a.Description)
	fmt.Fprintf(&b, "\n\n**Package:** %s (%s)", a.PackageName, a.PackageEcosystem)
	if a.VulnerableVersion != "" {
		fmt.Fprintf(&b, "\n**Vulnerable versions:** %s", a.VulnerableVersion)
	}
	if a.PatchedVersion != "" {
		fmt.Fprintf(&b, "\n**Patched version:** %s", a.PatchedVersion)
	}
	if a.GHSAID != "" {
		fmt.Fprintf(&b, "\n**Advisory:** %s", a.GHSAID)
	}
	f.Description = strings.TrimSpace(b.String())

	f.Mitigation = ""
	if a.PatchedVersion != "" {
		f.Mitigation = fmt.Sprintf("Upgrade %s to version %s or later.", a.PackageName, a.PatchedVersion)
		if kind := util.UpgradeKind(a.PackageEcosystem, a.InstalledVersion, a.PatchedVersion); kind != "" {
			f.Mitigation += fmt.Sprintf(" This is a %s version upgrade.", kind)
		}
	}
}

func mapCodeQL(f *model.Finding, a *model.Alert) {
	f.Title = a.Title
	f.Severity = Severity(a.Severity)
	f.CWE = ParseCWE(a.CWE)
	f.VulnIDFromTool = a.RuleID
	f.FilePath = a.FilePath
	f.Line = nil
	if a.StartLine > 0 {
		line := a.StartLine
		f.Line = &line
	}
	f.References = a.HTMLURL

	var b strings.Builder
	b.WriteString(a.Description)
	if a.FilePath != "" {
		fmt.Fprintf(&b, "\n\n**Location:** %s:%d-%d", a.FilePath, a.StartLine, a.EndLine)
	}
	if a.RuleID != "" {
		fmt.Fprintf(&b, "\n**Rule:** %s", a.RuleID)
	}
	if a.ToolName != "" {
		fmt.Fprintf(&b, "\n**Tool:** %s", a.ToolName)
	}
	f.Description = strings.TrimSpace(b.String())
	f.Mitigation = "Review the flagged code path and apply the fix recommended by the rule."
}

func mapSecret(f *model.Finding, a *model.Alert) {
	f.Title = fmt.Sprintf("%s: %s", a.SecretType, a.Title)
	f.Severity = model.SeverityCritical
	f.VulnIDFromTool = a.SecretType
	f.References = a.HTMLURL
	f.Description = fmt.Sprintf("A %s was committed to the repository.", a.SecretTypeDisplayName)
	f.Mitigation = "Revoke the exposed credential, rotate it, and remove it from the repository history."
}

// ProjectRepository projects every mirrored alert of a repository and refreshes the
// repository's finding counters. Per-alert failures are counted.
func (p *Projector) ProjectRepository(ctx context.Context, repo *model.Repository) (Stats, error) {
	var stats Stats
	if repo.ProductKey == "" {
		return stats, fmt.Errorf("%s: %w", repo.FullName, ErrNoProduct)
	}
	alerts, err := p.store.ListAlerts(ctx, repo.Key)
	if err != nil {
		return stats, fmt.Errorf("listing alerts of %s: %w", repo.FullName, err)
	}

	for _, a := range alerts {
		stats.Total++
		_, created, err := p.Project(ctx, repo, a)
		switch {
		case errors.Is(err, ErrNoProduct):
			return stats, err
		case err != nil:
			stats.Errors++
			p.logger.Warn("Failed to project alert",
				zap.String("repository", repo.FullName),
				zap.String("alert", a.Key),
				zap.Error(err))
		case created:
			stats.Created++
		default:
			stats.Updated++
		}
	}

	if err := p.refreshCounts(ctx, repo); err != nil {
		return stats, err
	}
	p.logger.Info("Projected alerts",
		zap.String("repository", repo.FullName),
		zap.Int("total", stats.Total),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", stats.Errors))
	return stats, nil
}

// refreshCounts caches the active findings of a repository by severity.
func (p *Projector) refreshCounts(ctx context.Context, repo *model.Repository) error {
	alerts, err := p.store.ListAlerts(ctx, repo.Key)
	if err != nil {
		return err
	}
	var keys []string
	for _, a := range alerts {
		if a.FindingKey != "" {
			keys = append(keys, a.FindingKey)
		}
	}
	var counts model.FindingCounts
	if len(keys) > 0 {
		found, err := p.store.ListFindings(ctx, store.FindingFilter{Keys: keys, ActiveOnly: true})
		if err != nil {
			return err
		}
		for _, f := range found {
			switch f.Severity {
			case model.SeverityCritical:
				counts.Critical++
			case model.SeverityHigh:
				counts.High++
			case model.SeverityMedium:
				counts.Medium++
			case model.SeverityLow:
				counts.Low++
			default:
				counts.Info++
			}
		}
	}
	return p.store.SaveFindingCounts(ctx, repo.Key, counts)
}
