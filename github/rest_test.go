package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREST(t *testing.T, mux *http.ServeMux) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewRESTClient(srv.Client(), srv.URL, nil)
	require.NoError(t, err)
	return c
}

func rateHeaders(w http.ResponseWriter, remaining int) {
	w.Header().Set("X-RateLimit-Limit", "5000")
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
}

func nextPageLink(w http.ResponseWriter, r *http.Request, page int) {
	next := *r.URL
	q := next.Query()
	q.Set("page", strconv.Itoa(page))
	next.RawQuery = q.Encode()
	w.Header().Set("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, r.Host, next.RequestURI()))
}

func TestCodeQLAlertsFollowsNextPage(t *testing.T) {
	mux := http.NewServeMux()
	pages := 0
	mux.HandleFunc("/repos/acme/api/code-scanning/alerts", func(w http.ResponseWriter, r *http.Request) {
		pages++
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Empty(t, r.URL.Query().Get("state"))
		rateHeaders(w, 4000)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			// a page shorter than per_page that still links to the next one
			nextPageLink(w, r, 2)
			fmt.Fprint(w, `[{"number":1,"state":"open","rule":{"id":"r1","severity":"warning"}},
				{"number":2,"state":"open","rule":{"id":"r2","severity":"note"}}]`)
			return
		}
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		fmt.Fprint(w, `[{"number":3,"state":"fixed","rule":{"id":"r3","severity":"error"}}]`)
	})
	c := newTestREST(t, mux)

	alerts, err := c.CodeQLAlerts(context.Background(), "acme", "api")

	require.NoError(t, err)
	assert.Len(t, alerts, 3)
	assert.Equal(t, 2, pages)
	assert.Equal(t, "low", alerts[0].Severity)
	assert.Equal(t, model.AlertFixed, alerts[2].State)
	assert.Equal(t, "medium", alerts[2].Severity)
	assert.InDelta(t, 0.8, c.Rate().RemainingFraction(), 1e-9)
}

func TestSecretScanningAlertsFollowsNextPage(t *testing.T) {
	mux := http.NewServeMux()
	pages := 0
	mux.HandleFunc("/repos/acme/api/secret-scanning/alerts", func(w http.ResponseWriter, r *http.Request) {
		pages++
		rateHeaders(w, 4990)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			nextPageLink(w, r, 2)
			fmt.Fprint(w, `[{"number":1,"state":"open","secret_type":"github_pat"}]`)
			return
		}
		fmt.Fprint(w, `[{"number":2,"state":"resolved","resolution":"revoked","secret_type":"github_pat"}]`)
	})
	c := newTestREST(t, mux)

	alerts, err := c.SecretScanningAlerts(context.Background(), "acme", "api")

	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, 2, pages)
	assert.Equal(t, model.AlertFixed, alerts[1].State)
}

func TestSecretScanningDisabledIsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api/secret-scanning/alerts", func(w http.ResponseWriter, _ *http.Request) {
		rateHeaders(w, 4999)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Secret scanning is disabled on this repository."}`)
	})
	c := newTestREST(t, mux)

	alerts, err := c.SecretScanningAlerts(context.Background(), "acme", "api")

	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestCodeQLAlertsServerErrorPropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api/code-scanning/alerts", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestREST(t, mux)

	_, err := c.CodeQLAlerts(context.Background(), "acme", "api")

	assert.Error(t, err)
}

func TestFetchRepositoryDegradesConnections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api", func(w http.ResponseWriter, _ *http.Request) {
		rateHeaders(w, 4500)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":42,"name":"api","full_name":"acme/api","owner":{"login":"acme"},
			"default_branch":"main","html_url":"https://github.com/acme/api","language":"Go",
			"updated_at":"2026-10-01T00:00:00Z",
			"security_and_analysis":{"secret_scanning":{"status":"enabled"}}}`)
	})
	mux.HandleFunc("/repos/acme/api/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"sha":"abc","tree":[{"path":"Dockerfile","type":"blob"},{"path":"k8s","type":"tree"},{"path":"k8s/deployment.yaml","type":"blob"}]}`)
	})
	mux.HandleFunc("/repos/acme/api/commits", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"sha":"c1","commit":{"author":{"name":"Ann","email":"ann@acme.io","date":"2026-10-10T00:00:00Z"},
			"committer":{"date":"2026-10-11T00:00:00Z"}},"author":{"login":"ann"}}]`)
	})
	mux.HandleFunc("/repos/acme/api/environments", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/repos/acme/api/releases", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"tag_name":"v1.0.0","created_at":"2026-09-01T00:00:00Z"}]`)
	})
	mux.HandleFunc("/repos/acme/api/branches/main", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"main","protected":true}`)
	})
	mux.HandleFunc("/repos/acme/api/pulls", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"number":5,"state":"open","updated_at":"2026-10-12T00:00:00Z","user":{"login":"bob"}}]`)
	})
	c := newTestREST(t, mux)

	data, err := c.FetchRepository(context.Background(), "acme", "api")

	require.NoError(t, err)
	assert.Equal(t, int64(42), data.RemoteID)
	assert.Equal(t, "acme/api", data.FullName())
	assert.True(t, data.SecretScanningEnabled)
	assert.ElementsMatch(t, []string{"Dockerfile", "k8s/", "k8s/deployment.yaml"}, data.Paths)
	require.Len(t, data.Commits, 1)
	assert.Equal(t, "ann@acme.io", data.Commits[0].AuthorEmail)
	assert.Equal(t, "ann", data.Commits[0].AuthorLogin)
	assert.Equal(t, time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC), data.Commits[0].CommittedAt.UTC())
	assert.Equal(t, 1, data.ReleaseCount)
	assert.Equal(t, 1, data.BranchProtectionCount)
	require.Len(t, data.PullRequests, 1)
	assert.Equal(t, "bob", data.PullRequests[0].AuthorLogin)

	assert.False(t, data.Available(ConnEnvironments))
	assert.False(t, data.Available(ConnReadme))
	assert.True(t, data.Available(ConnTree))
	assert.Empty(t, data.Codeowners)
	// vulnerability-alerts answered 404: disabled, not an error
	assert.True(t, data.Available(ConnVulnerabilityAlerts))
	assert.Equal(t, 0, data.VulnerabilityAlertCount)
}

func TestFetchRepositoryNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	c := newTestREST(t, mux)

	_, err := c.FetchRepository(context.Background(), "acme", "gone")

	assert.ErrorIs(t, err, ErrNotFound)
}
