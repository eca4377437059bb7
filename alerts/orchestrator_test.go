package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ortelius/pdvd-enricher/findings"
	"github.com/ortelius/pdvd-enricher/github"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	dependabot map[string][]model.Alert
	codeql     map[string][]model.Alert
	secrets    map[string][]model.Alert
	failCodeQL map[string]error
	calls      []string
	rate       *github.RateTracker
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		dependabot: map[string][]model.Alert{},
		codeql:     map[string][]model.Alert{},
		secrets:    map[string][]model.Alert{},
		failCodeQL: map[string]error{},
		rate:       github.NewRateTracker("fake", nil),
	}
}

func (f *fakeSource) Rate() *github.RateTracker { return f.rate }

func (f *fakeSource) DependabotAlerts(_ context.Context, owner, name string) ([]model.Alert, error) {
	f.calls = append(f.calls, owner+"/"+name)
	return f.dependabot[owner+"/"+name], nil
}

func (f *fakeSource) CodeQLAlerts(_ context.Context, owner, name string) ([]model.Alert, error) {
	if err := f.failCodeQL[owner+"/"+name]; err != nil {
		return nil, err
	}
	return f.codeql[owner+"/"+name], nil
}

func (f *fakeSource) SecretScanningAlerts(_ context.Context, owner, name string) ([]model.Alert, error) {
	return f.secrets[owner+"/"+name], nil
}

func seedRepo(t *testing.T, st *store.MemoryStore, id int64, fullName string) *model.Repository {
	t.Helper()
	repo := model.NewRepository(id, fullName)
	repo.Name = strings.SplitN(fullName, "/", 2)[1]
	pt := model.NewProductType("acme")
	product := model.NewProduct(fullName, pt.Key)
	repo.ProductKey = product.Key
	require.NoError(t, st.SaveRepository(context.Background(), repo, product, pt))
	return repo
}

func alert(tax model.Taxonomy, n int, state model.AlertState) model.Alert {
	return model.Alert{Taxonomy: tax, Number: n, State: state, Severity: "high", Title: "t"}
}

func newOrchestrator(src *fakeSource, st *store.MemoryStore) *Orchestrator {
	now := func() time.Time { return fixedNow }
	return New(src, src, st, findings.NewProjector(st, nil, now), Config{Now: now}, nil)
}

func TestRunMirrorsAllTaxonomies(t *testing.T) {
	st := store.NewMemoryStore()
	repo := seedRepo(t, st, 1, "acme/api")
	src := newFakeSource()
	src.dependabot["acme/api"] = []model.Alert{alert(model.Dependabot, 1, model.AlertOpen), alert(model.Dependabot, 2, model.AlertFixed)}
	src.codeql["acme/api"] = []model.Alert{alert(model.CodeQL, 1, model.AlertDismissed)}
	src.secrets["acme/api"] = []model.Alert{alert(model.SecretScanning, 1, model.AlertOpen)}
	ctx := context.Background()

	stats, err := newOrchestrator(src, st).Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 4, stats.AlertsFetched)
	assert.Equal(t, 4, stats.AlertsCreated)

	mirrored, _ := st.ListAlerts(ctx, repo.Key)
	assert.Len(t, mirrored, 4)
	assert.Equal(t, "1-dependabot-1", mirrored[1].Key)
	assert.Equal(t, fixedNow, mirrored[0].SyncedAt)

	cursor, found, _ := st.GetCursor(ctx, repo.Key)
	require.True(t, found)
	assert.True(t, cursor.FullSyncCompleted)
	assert.Equal(t, 2, cursor.DependabotCount)
	assert.Equal(t, fixedNow, *cursor.LastSuccessfulSync())

	stored, _, _ := st.GetRepository(ctx, repo.Key)
	assert.Equal(t, model.AlertCounts{Dependabot: 2, CodeQL: 1, SecretScanning: 1}, stored.AlertCounts)
}

func TestRunSkipsRecentlySynced(t *testing.T) {
	st := store.NewMemoryStore()
	seedRepo(t, st, 1, "acme/api")
	src := newFakeSource()
	o := newOrchestrator(src, st)
	ctx := context.Background()

	_, err := o.Run(ctx, Options{})
	require.NoError(t, err)

	stats, err := o.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Synced)

	stats, err = o.Run(ctx, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synced)

	later := New(src, src, st, nil, Config{Now: func() time.Time { return fixedNow.Add(time.Hour) }}, nil)
	eligible, err := later.Eligible(ctx, "1", false)
	require.NoError(t, err)
	assert.True(t, eligible)
}

func TestRunUpdatesExistingAlerts(t *testing.T) {
	st := store.NewMemoryStore()
	repo := seedRepo(t, st, 1, "acme/api")
	src := newFakeSource()
	src.dependabot["acme/api"] = []model.Alert{alert(model.Dependabot, 1, model.AlertOpen)}
	o := newOrchestrator(src, st)
	ctx := context.Background()

	_, err := o.Run(ctx, Options{})
	require.NoError(t, err)

	src.dependabot["acme/api"] = []model.Alert{alert(model.Dependabot, 1, model.AlertFixed)}
	stats, err := o.Run(ctx, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AlertsUpdated)
	assert.Zero(t, stats.AlertsCreated)

	a, _, _ := st.GetAlert(ctx, repo.Key, model.Dependabot, 1)
	assert.Equal(t, model.AlertFixed, a.State)
}

func TestRunLeavesUnchangedAlertsUntouched(t *testing.T) {
	st := store.NewMemoryStore()
	repo := seedRepo(t, st, 1, "acme/api")
	src := newFakeSource()
	src.dependabot["acme/api"] = []model.Alert{alert(model.Dependabot, 1, model.AlertOpen)}
	ctx := context.Background()

	_, err := newOrchestrator(src, st).Run(ctx, Options{})
	require.NoError(t, err)

	later := fixedNow.Add(2 * time.Hour)
	o := New(src, src, st, nil, Config{Now: func() time.Time { return later }}, nil)
	stats, err := o.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Zero(t, stats.AlertsUpdated)
	assert.Zero(t, stats.AlertsCreated)

	a, found, err := st.GetAlert(ctx, repo.Key, model.Dependabot, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fixedNow, a.SyncedAt)

	cursor, _, err := st.GetCursor(ctx, repo.Key)
	require.NoError(t, err)
	assert.Equal(t, later, *cursor.DependabotLastSync)
}

func TestRunRecordsFailureAndContinues(t *testing.T) {
	st := store.NewMemoryStore()
	broken := seedRepo(t, st, 1, "acme/broken")
	healthy := seedRepo(t, st, 2, "acme/healthy")
	src := newFakeSource()
	src.failCodeQL["acme/broken"] = errors.New(strings.Repeat("x", 1500))
	ctx := context.Background()

	stats, err := newOrchestrator(src, st).Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Synced)

	cursor, found, _ := st.GetCursor(ctx, broken.Key)
	require.True(t, found)
	assert.False(t, cursor.FullSyncCompleted)
	assert.Nil(t, cursor.LastSuccessfulSync())
	assert.Len(t, []rune(cursor.LastSyncError), 1000)
	assert.Equal(t, fixedNow, *cursor.LastSyncErrorAt)

	cursor, _, _ = st.GetCursor(ctx, healthy.Key)
	assert.True(t, cursor.FullSyncCompleted)
}

func TestRunStopsOnLowQuota(t *testing.T) {
	st := store.NewMemoryStore()
	seedRepo(t, st, 1, "acme/api")
	src := newFakeSource()
	src.rate.Update(5000, 900, 1, fixedNow.Add(time.Hour))

	stats, err := newOrchestrator(src, st).Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, stats.StoppedEarly)
	assert.Zero(t, stats.Repositories)
	assert.Empty(t, src.calls)

	_, found, _ := st.GetCursor(context.Background(), "1")
	assert.False(t, found, "cursor untouched so the repository stays eligible")
}

func TestRunDryRunWritesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	repo := seedRepo(t, st, 1, "acme/api")
	src := newFakeSource()
	src.dependabot["acme/api"] = []model.Alert{alert(model.Dependabot, 1, model.AlertOpen)}
	ctx := context.Background()

	stats, err := newOrchestrator(src, st).Run(ctx, Options{DryRun: true, Project: true})
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 1, stats.AlertsCreated)

	mirrored, _ := st.ListAlerts(ctx, repo.Key)
	assert.Empty(t, mirrored)
	_, found, _ := st.GetCursor(ctx, repo.Key)
	assert.False(t, found)
	all, _ := st.ListFindings(ctx, store.FindingFilter{})
	assert.Empty(t, all)
}

func TestRunOrderLimitAndScope(t *testing.T) {
	st := store.NewMemoryStore()
	seedRepo(t, st, 1, "acme/a")
	seedRepo(t, st, 2, "acme/b")
	seedRepo(t, st, 3, "acme/c")
	ctx := context.Background()
	synced := fixedNow.Add(-2 * time.Hour)
	require.NoError(t, st.CompleteAlertSync(ctx, "1", model.AlertCounts{}, synced))

	src := newFakeSource()
	stats, err := newOrchestrator(src, st).Run(ctx, Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Synced)
	assert.Equal(t, []string{"acme/b", "acme/c"}, src.calls, "never-synced repositories go first")

	src.calls = nil
	_, err = newOrchestrator(src, st).Run(ctx, Options{RepositoryKey: "1", Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/a"}, src.calls)

	_, err = newOrchestrator(src, st).Run(ctx, Options{RepositoryKey: "404"})
	assert.Error(t, err)
}

func TestRunProjectsFindings(t *testing.T) {
	st := store.NewMemoryStore()
	seedRepo(t, st, 1, "acme/api")
	src := newFakeSource()
	src.dependabot["acme/api"] = []model.Alert{alert(model.Dependabot, 1, model.AlertOpen)}
	src.secrets["acme/api"] = []model.Alert{alert(model.SecretScanning, 1, model.AlertOpen)}

	stats, err := newOrchestrator(src, st).Run(context.Background(), Options{Project: true})
	require.NoError(t, err)
	assert.Equal(t, findings.Stats{Total: 2, Created: 2}, stats.Projection)

	all, _ := st.ListFindings(context.Background(), store.FindingFilter{})
	assert.Len(t, all, 2)
}
