package findings

import (
	"context"
	"testing"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Projector, *store.MemoryStore, *model.Repository) {
	t.Helper()
	st := store.NewMemoryStore()
	repo := model.NewRepository(42, "acme/api")
	repo.Name = "api"
	pt := model.NewProductType("acme")
	product := model.NewProduct("acme/api", pt.Key)
	repo.ProductKey = product.Key
	require.NoError(t, st.SaveRepository(context.Background(), repo, product, pt))
	return NewProjector(st, nil, func() time.Time { return fixedNow }), st, repo
}

func dependabotAlert(repo *model.Repository, number int) *model.Alert {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	a := &model.Alert{
		RepositoryKey:     repo.Key,
		Taxonomy:          model.Dependabot,
		Number:            number,
		State:             model.AlertOpen,
		Severity:          "moderate",
		Title:             "Prototype pollution",
		Description:       "lodash is vulnerable.",
		HTMLURL:           "https://github.com/acme/api/security/dependabot/1",
		PackageName:       "lodash",
		PackageEcosystem:  "npm",
		VulnerableVersion: "< 4.17.12",
		InstalledVersion:  "4.17.11",
		PatchedVersion:    "4.17.12",
		ManifestPath:      "package-lock.json",
		CVEID:             "CVE-2019-10744",
		GHSAID:            "GHSA-jf85-cpcp-j695",
		CWE:               "CWE-1321",
		RemoteCreatedAt:   &created,
	}
	a.Key = model.AlertKey(repo.Key, a.Taxonomy, a.Number)
	return a
}

func mirror(t *testing.T, st *store.MemoryStore, a *model.Alert) {
	t.Helper()
	_, err := st.UpsertAlert(context.Background(), a)
	require.NoError(t, err)
}

func TestSeverity(t *testing.T) {
	tests := map[string]string{
		"critical": "Critical", "HIGH": "High", "error": "High", "moderate": "Medium",
		"medium": "Medium", "low": "Low", "warning": "Low", "note": "Info", "info": "Info", "bogus": "Info", "": "Info",
	}
	for in, want := range tests {
		assert.Equal(t, want, Severity(in), in)
	}
}

func TestParseCWE(t *testing.T) {
	assert.Equal(t, 79, *ParseCWE("CWE-79, CWE-80"))
	assert.Equal(t, 89, *ParseCWE("cwe89"))
	assert.Nil(t, ParseCWE("none"))
	assert.Nil(t, ParseCWE(""))
}

func TestProjectDependabot(t *testing.T) {
	p, st, repo := setup(t)
	ctx := context.Background()
	a := dependabotAlert(repo, 1)
	mirror(t, st, a)

	f, created, err := p.Project(ctx, repo, a)
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, "github:dependabot:42:1", f.UniqueIDFromTool)
	assert.Equal(t, model.FindingKey("github:dependabot:42:1"), f.Key)
	assert.Equal(t, "lodash (npm): Prototype pollution", f.Title)
	assert.Equal(t, "Medium", f.Severity)
	assert.Equal(t, "CVE-2019-10744", f.CVE)
	assert.Equal(t, "CVE-2019-10744", f.VulnIDFromTool)
	assert.Equal(t, 1321, *f.CWE)
	assert.Equal(t, "pkg:npm/lodash@4.17.11", f.ComponentPURL)
	assert.Equal(t, "Upgrade lodash to version 4.17.12 or later. This is a patch version upgrade.", f.Mitigation)
	assert.Contains(t, f.Description, "**Patched version:** 4.17.12")
	assert.Equal(t, "2025-01-02", f.Date)
	assert.True(t, f.Active)
	assert.Equal(t, model.DecisionPending, f.AutoTriageDecision)

	test, found, err := st.GetTest(ctx, f.TestKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "GitHub Dependabot", test.TestType)
	engagement, _, _ := st.GetEngagement(ctx, test.EngagementKey)
	assert.Equal(t, "GitHub Security Alerts - api", engagement.Name)
	assert.Equal(t, repo.ProductKey, engagement.ProductKey)

	stored, _, _ := st.GetAlert(ctx, repo.Key, model.Dependabot, 1)
	assert.Equal(t, f.Key, stored.FindingKey)
}

func TestProjectIsIdempotent(t *testing.T) {
	p, st, repo := setup(t)
	ctx := context.Background()
	a := dependabotAlert(repo, 1)
	mirror(t, st, a)

	first, created, err := p.Project(ctx, repo, a)
	require.NoError(t, err)
	require.True(t, created)

	stored, _, _ := st.GetAlert(ctx, repo.Key, model.Dependabot, 1)
	second, created, err := p.Project(ctx, repo, stored)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	all, _ := st.ListFindings(ctx, store.FindingFilter{})
	assert.Len(t, all, 1)
}

func TestProjectKeepsExternalFields(t *testing.T) {
	p, st, repo := setup(t)
	ctx := context.Background()
	a := dependabotAlert(repo, 1)
	mirror(t, st, a)

	f, _, err := p.Project(ctx, repo, a)
	require.NoError(t, err)
	require.NoError(t, st.UpdateExploitScore(ctx, f.Key, 0.4, 0.9))
	require.NoError(t, st.UpdateTriage(ctx, f.Key, model.DecisionEscalate, "why", fixedNow))

	a.Title = "Prototype pollution in lodash"
	f, created, err := p.Project(ctx, repo, a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "lodash (npm): Prototype pollution in lodash", f.Title)
	assert.Equal(t, 0.4, *f.EPSSScore)
	assert.Equal(t, model.DecisionEscalate, f.AutoTriageDecision)
}

func TestProjectStateTransitions(t *testing.T) {
	p, st, repo := setup(t)
	ctx := context.Background()
	a := dependabotAlert(repo, 1)
	mirror(t, st, a)
	_, _, err := p.Project(ctx, repo, a)
	require.NoError(t, err)

	fixedAt := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	a.State = model.AlertFixed
	a.FixedAt = &fixedAt
	f, _, err := p.Project(ctx, repo, a)
	require.NoError(t, err)
	assert.False(t, f.Active)
	assert.True(t, f.IsMitigated)
	assert.Equal(t, fixedAt, *f.Mitigated)
	assert.False(t, f.RiskAccepted)

	a.State = model.AlertDismissed
	a.FixedAt = nil
	f, _, err = p.Project(ctx, repo, a)
	require.NoError(t, err)
	assert.False(t, f.Active)
	assert.True(t, f.RiskAccepted)
	assert.False(t, f.IsMitigated)

	a.State = model.AlertOpen
	f, _, err = p.Project(ctx, repo, a)
	require.NoError(t, err)
	assert.True(t, f.Active)
	assert.False(t, f.RiskAccepted)
	assert.False(t, f.IsMitigated)
	assert.Nil(t, f.Mitigated)
}

func TestProjectFixedWithoutTimestampUsesNow(t *testing.T) {
	p, st, repo := setup(t)
	a := dependabotAlert(repo, 3)
	a.State = model.AlertFixed
	mirror(t, st, a)

	f, _, err := p.Project(context.Background(), repo, a)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, *f.Mitigated)
}

func TestProjectDistinctNumbersDoNotCollide(t *testing.T) {
	p, st, repo := setup(t)
	ctx := context.Background()
	a1, a2 := dependabotAlert(repo, 1), dependabotAlert(repo, 2)
	mirror(t, st, a1)
	mirror(t, st, a2)

	f1, _, err := p.Project(ctx, repo, a1)
	require.NoError(t, err)
	f2, _, err := p.Project(ctx, repo, a2)
	require.NoError(t, err)
	assert.NotEqual(t, f1.Key, f2.Key)
}

func TestProjectCodeQLAndSecret(t *testing.T) {
	p, st, repo := setup(t)
	ctx := context.Background()
	code := &model.Alert{
		RepositoryKey: repo.Key, Taxonomy: model.CodeQL, Number: 5, State: model.AlertOpen,
		Severity: "error", Title: "SQL injection", Description: "Query built from user input.",
		RuleID: "go/sql-injection", CWE: "CWE-89", FilePath: "db/query.go", StartLine: 10, EndLine: 12,
	}
	code.Key = model.AlertKey(repo.Key, code.Taxonomy, code.Number)
	secret := &model.Alert{
		RepositoryKey: repo.Key, Taxonomy: model.SecretScanning, Number: 6, State: model.AlertOpen,
		Severity: "low", Title: "GitHub Personal Access Token detected",
		SecretType: "github_personal_access_token", SecretTypeDisplayName: "GitHub Personal Access Token",
	}
	secret.Key = model.AlertKey(repo.Key, secret.Taxonomy, secret.Number)
	mirror(t, st, code)
	mirror(t, st, secret)

	f, _, err := p.Project(ctx, repo, code)
	require.NoError(t, err)
	assert.Equal(t, "High", f.Severity)
	assert.Equal(t, 89, *f.CWE)
	assert.Equal(t, 10, *f.Line)
	assert.Contains(t, f.Description, "**Location:** db/query.go:10-12")
	assert.Contains(t, f.Description, "**Rule:** go/sql-injection")

	f, _, err = p.Project(ctx, repo, secret)
	require.NoError(t, err)
	assert.Equal(t, "Critical", f.Severity)
	assert.Equal(t, "github_personal_access_token: GitHub Personal Access Token detected", f.Title)
	assert.Equal(t, fixedNow.Format("2006-01-02"), f.Date)
}

func TestProjectWithoutProduct(t *testing.T) {
	p, _, _ := setup(t)
	orphan := model.NewRepository(7, "acme/orphan")
	a := dependabotAlert(orphan, 1)

	_, _, err := p.Project(context.Background(), orphan, a)
	assert.ErrorIs(t, err, ErrNoProduct)

	_, err = p.ProjectRepository(context.Background(), orphan)
	assert.ErrorIs(t, err, ErrNoProduct)
}

func TestProjectRepository(t *testing.T) {
	p, st, repo := setup(t)
	ctx := context.Background()
	open := dependabotAlert(repo, 1)
	fixed := dependabotAlert(repo, 2)
	fixed.State = model.AlertFixed
	critical := dependabotAlert(repo, 3)
	critical.Severity = "critical"
	for _, a := range []*model.Alert{open, fixed, critical} {
		mirror(t, st, a)
	}

	stats, err := p.ProjectRepository(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Created: 3}, stats)

	stats, err = p.ProjectRepository(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Updated: 3}, stats)

	stored, _, _ := st.GetRepository(ctx, repo.Key)
	assert.Equal(t, model.FindingCounts{Critical: 1, Medium: 1}, stored.FindingCounts)
}
