package triage

import (
	"context"
	"testing"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	st     *store.MemoryStore
	clock  *clock
	engine *Engine
	test   *model.Test
}

// newFixture tracks one repository whose product has the given criticality.
func newFixture(t *testing.T, criticality string, signals model.Signals) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()

	pt := model.NewProductType("acme")
	product := model.NewProduct("acme/api", pt.Key)
	product.BusinessCriticality = criticality
	repo := model.NewRepository(7, "acme/api")
	repo.ProductKey = product.Key
	repo.Signals = signals
	require.NoError(t, st.SaveRepository(ctx, repo, product, pt))

	eng, err := st.EnsureEngagement(ctx, &model.Engagement{Key: "eng", Name: "GitHub Security Alerts - api", ProductKey: product.Key})
	require.NoError(t, err)
	test, err := st.EnsureTest(ctx, &model.Test{Key: "test", Title: "Dependabot Scan - api", EngagementKey: eng.Key})
	require.NoError(t, err)

	c := &clock{now: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
	return &fixture{st: st, clock: c, engine: NewEngine(st, nil, c.Now, nil), test: test}
}

func (fx *fixture) finding(t *testing.T, key, severity string, epss *float64, active bool) {
	t.Helper()
	f := model.NewFinding(key, fx.test.Key, "uid-"+key)
	f.Severity = severity
	f.EPSSScore = epss
	f.Active = active
	require.NoError(t, fx.st.SaveProjection(context.Background(), f, ""))
}

func (fx *fixture) get(t *testing.T, key string) *model.Finding {
	t.Helper()
	f, found, err := fx.st.GetFinding(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	return f
}

func TestApplyEscalatesCriticalProductionFinding(t *testing.T) {
	fx := newFixture(t, "very high", model.Signals{HasKubernetesConfig: true})
	fx.finding(t, "f1", model.SeverityCritical, score(0.75), true)

	stats, err := fx.engine.Apply(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Escalated: 1}, stats)

	f := fx.get(t, "f1")
	assert.Equal(t, model.DecisionEscalate, f.AutoTriageDecision)
	assert.Equal(t, "Critical/High severity with very high EPSS score (≥70%) in Tier 1 production repository - immediate action required (Rule: critical_high_epss_tier1, Confidence: 95%)", f.AutoTriageReason)
	require.NotNil(t, f.AutoTriagedAt)
	assert.Equal(t, fx.clock.now, *f.AutoTriagedAt)
}

func TestApplyIsIdempotent(t *testing.T) {
	fx := newFixture(t, "low", model.Signals{})
	fx.finding(t, "f1", model.SeverityMedium, score(0.01), true)
	ctx := context.Background()

	_, err := fx.engine.Apply(ctx, Options{})
	require.NoError(t, err)
	first := fx.get(t, "f1")
	assert.Equal(t, model.DecisionDismiss, first.AutoTriageDecision)

	fx.clock.now = fx.clock.now.Add(24 * time.Hour)
	stats, err := fx.engine.Apply(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Unchanged: 1}, stats)

	second := fx.get(t, "f1")
	assert.Equal(t, first.AutoTriageDecision, second.AutoTriageDecision)
	assert.Equal(t, *first.AutoTriagedAt, *second.AutoTriagedAt)
}

func TestApplyPendingIsNotWritten(t *testing.T) {
	fx := newFixture(t, "medium", model.Signals{})
	fx.finding(t, "f1", model.SeverityMedium, nil, true)

	stats, err := fx.engine.Apply(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Nil(t, fx.get(t, "f1").AutoTriagedAt)
}

func TestApplyDryRun(t *testing.T) {
	fx := newFixture(t, "none", model.Signals{})
	fx.finding(t, "f1", model.SeverityHigh, nil, true)

	stats, err := fx.engine.Apply(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, AcceptedRisk: 1, DryRun: true}, stats)
	assert.Equal(t, model.DecisionPending, fx.get(t, "f1").AutoTriageDecision)
}

func TestApplyScopes(t *testing.T) {
	fx := newFixture(t, "low", model.Signals{})
	fx.finding(t, "f1", model.SeverityLow, score(0.01), true)
	fx.finding(t, "f2", model.SeverityLow, score(0.01), false)
	fx.finding(t, "f3", model.SeverityLow, score(0.01), true)
	ctx := context.Background()

	stats, err := fx.engine.Apply(ctx, Options{FindingKeys: []string{"f1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.AcceptedRisk)

	stats, err = fx.engine.Apply(ctx, Options{ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, AcceptedRisk: 1, Unchanged: 1}, stats)
	assert.Equal(t, model.DecisionPending, fx.get(t, "f2").AutoTriageDecision)

	stats, err = fx.engine.Apply(ctx, Options{ProductKey: "other"})
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestApplyWithBrokenChain(t *testing.T) {
	fx := newFixture(t, "very high", model.Signals{HasReleases: true})
	orphan := model.NewFinding("orphan", "missing-test", "uid-orphan")
	orphan.Severity = model.SeverityInfo
	orphan.EPSSScore = score(0.01)
	require.NoError(t, fx.st.SaveProjection(context.Background(), orphan, ""))

	stats, err := fx.engine.Apply(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Dismissed: 1}, stats)
	assert.Contains(t, fx.get(t, "orphan").AutoTriageReason, "dismiss_info_severity_low_epss")
}

func TestRetriage(t *testing.T) {
	fx := newFixture(t, "high", model.Signals{HasEnvironments: true})
	fx.finding(t, "f1", model.SeverityMedium, score(0.3), true)
	ctx := context.Background()

	require.NoError(t, fx.engine.Retriage(ctx, nil))
	require.NoError(t, fx.st.UpdateExploitScore(ctx, "f1", 0.7, 0.99))
	require.NoError(t, fx.engine.Retriage(ctx, []string{"f1"}))

	f := fx.get(t, "f1")
	assert.Equal(t, model.DecisionEscalate, f.AutoTriageDecision)
	assert.Contains(t, f.AutoTriageReason, "high_epss_tier2_production")
}

func TestResetAndStatistics(t *testing.T) {
	fx := newFixture(t, "low", model.Signals{})
	fx.finding(t, "f1", model.SeverityMedium, score(0.01), true)
	fx.finding(t, "f2", model.SeverityMedium, nil, true)
	fx.finding(t, "f3", model.SeverityLow, score(0.03), true)
	fx.finding(t, "f4", model.SeverityMedium, score(0.01), false)
	ctx := context.Background()

	_, err := fx.engine.Apply(ctx, Options{})
	require.NoError(t, err)

	stats, err := fx.engine.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, DecisionShare{Count: 1, Percentage: 33.33}, stats.ByDecision[model.DecisionDismiss])
	assert.Equal(t, DecisionShare{Count: 1, Percentage: 33.33}, stats.ByDecision[model.DecisionAcceptRisk])
	assert.Equal(t, DecisionShare{Count: 1, Percentage: 33.33}, stats.ByDecision[model.DecisionPending])

	n, err := fx.engine.Reset(ctx, Options{FindingKeys: []string{"f1", "f3"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f := fx.get(t, "f1")
	assert.Equal(t, model.DecisionPending, f.AutoTriageDecision)
	assert.Empty(t, f.AutoTriageReason)
	assert.Nil(t, f.AutoTriagedAt)
	assert.Equal(t, model.DecisionDismiss, fx.get(t, "f4").AutoTriageDecision)

	stats, err = fx.engine.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, DecisionShare{Count: 3, Percentage: 100}, stats.ByDecision[model.DecisionPending])
}

func TestStatisticsEmpty(t *testing.T) {
	e := NewEngine(store.NewMemoryStore(), nil, nil, nil)
	stats, err := e.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.ByDecision)
}
