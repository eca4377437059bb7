package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func newTestGraphQL(t *testing.T, handler func(req graphqlRequest) string) *GraphQLClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req graphqlRequest
		require.NoError(t, json.Unmarshal(body, &req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, handler(req))
	}))
	t.Cleanup(srv.Close)
	return NewGraphQLClient(srv.Client(), srv.URL, nil)
}

const rateLimitJSON = `"rateLimit":{"cost":1,"limit":5000,"remaining":4990,"resetAt":"2026-10-19T13:00:00Z"}`

func TestDependabotAlertsPagesAndNormalizes(t *testing.T) {
	calls := 0
	c := newTestGraphQL(t, func(req graphqlRequest) string {
		calls++
		assert.Contains(t, req.Query, "vulnerabilityAlerts(first: $pageSize, after: $cursor)")
		if req.Variables["cursor"] == nil {
			return `{"data":{"repository":{"url":"https://github.com/acme/web","vulnerabilityAlerts":{
				"pageInfo":{"hasNextPage":true,"endCursor":"c1"},
				"nodes":[{"number":1,"state":"OPEN","createdAt":"2026-05-01T00:00:00Z",
					"dismissedAt":null,"fixedAt":null,"autoDismissedAt":null,"dismissReason":"",
					"vulnerableManifestPath":"package-lock.json","vulnerableRequirements":"= 4.17.11",
					"securityAdvisory":{"ghsaId":"GHSA-jf85-cpcp-j695","summary":"Prototype Pollution in lodash",
						"description":"lodash is vulnerable","severity":"HIGH","permalink":"https://github.com/advisories/GHSA-jf85-cpcp-j695",
						"identifiers":[{"type":"GHSA","value":"GHSA-jf85-cpcp-j695"},{"type":"CVE","value":"cve-2019-10744"}],
						"cvss":{"score":9.1,"vectorString":"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:N/I:H/A:H"},
						"cwes":{"nodes":[{"cweId":"CWE-1321"}]},
						"references":[{"url":"https://nvd.nist.gov/vuln/detail/CVE-2019-10744"}]},
					"securityVulnerability":{"package":{"name":"lodash","ecosystem":"NPM"},
						"vulnerableVersionRange":"< 4.17.12","firstPatchedVersion":{"identifier":"4.17.12"},"severity":"CRITICAL"}}]}},
				` + rateLimitJSON + `}}`
		}
		assert.Equal(t, "c1", req.Variables["cursor"])
		return `{"data":{"repository":{"url":"https://github.com/acme/web","vulnerabilityAlerts":{
			"pageInfo":{"hasNextPage":false,"endCursor":"c2"},
			"nodes":[{"number":2,"state":"FIXED","createdAt":"2026-04-01T00:00:00Z","fixedAt":"2026-06-01T00:00:00Z",
				"securityAdvisory":{"ghsaId":"GHSA-xxxx","summary":"ReDoS","severity":"MODERATE"},
				"securityVulnerability":{"package":{"name":"minimist","ecosystem":"NPM"},"firstPatchedVersion":null}}]}},
			` + rateLimitJSON + `}}`
	})

	alerts, err := c.DependabotAlerts(context.Background(), "acme", "web")

	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, 2, calls)

	first := alerts[0]
	assert.Equal(t, model.Dependabot, first.Taxonomy)
	assert.Equal(t, model.AlertOpen, first.State)
	assert.Equal(t, "critical", first.Severity)
	assert.Equal(t, "CVE-2019-10744", first.CVEID)
	assert.Equal(t, "lodash", first.PackageName)
	assert.Equal(t, "npm", first.PackageEcosystem)
	assert.Equal(t, "4.17.11", first.InstalledVersion)
	assert.Equal(t, "4.17.12", first.PatchedVersion)
	assert.Equal(t, "CWE-1321", first.CWE)
	assert.Equal(t, 9.1, first.CVSSScore)
	assert.Equal(t, "https://github.com/acme/web/security/dependabot/1", first.HTMLURL)
	assert.Nil(t, first.FixedAt)

	second := alerts[1]
	assert.Equal(t, model.AlertFixed, second.State)
	assert.Equal(t, "moderate", second.Severity)
	require.NotNil(t, second.FixedAt)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), *second.FixedAt)
	assert.Empty(t, second.PatchedVersion)

	q, known := c.Rate().Quota()
	assert.True(t, known)
	assert.Equal(t, 4990, q.Remaining)
}

func TestDependabotAlertsDisabledIsEmpty(t *testing.T) {
	c := newTestGraphQL(t, func(graphqlRequest) string {
		return `{"data":{"repository":null},"errors":[{"message":"Could not resolve to a Repository with the name 'acme/gone'."}]}`
	})

	alerts, err := c.DependabotAlerts(context.Background(), "acme", "gone")

	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func repoNodeJSON(id int, name, updatedAt string) string {
	return fmt.Sprintf(`{"databaseId":%d,"name":%q,"nameWithOwner":"acme/%s","owner":{"login":"acme"},
		"description":"","url":"https://github.com/acme/%s","isArchived":false,"updatedAt":%q,
		"primaryLanguage":{"name":"Go"},
		"defaultBranchRef":{"name":"main","target":{"history":{"nodes":[
			{"oid":"abc","committedDate":"2026-10-10T00:00:00Z","author":{"email":"ann@acme.io","name":"Ann","user":{"login":"ann"}}}]}}},
		"rootTree":{"entries":[{"name":"Dockerfile","type":"blob"},{"name":".github","type":"tree"}]},
		"githubTree":{"entries":[{"name":"workflows","type":"tree"},{"name":"CODEOWNERS","type":"blob"}]},
		"workflowsTree":{"entries":[{"name":"ci.yml","type":"blob"}]},
		"readme":{"text":"# %s"},
		"codeowners1":null,"codeowners2":{"text":"* @acme/platform"},"codeowners3":null,
		"environments":{"totalCount":2},
		"releases":{"totalCount":1,"nodes":[{"tagName":"v1.0.0","createdAt":"2026-09-01T00:00:00Z"}]},
		"branchProtectionRules":{"totalCount":1},
		"pullRequests":{"totalCount":1,"nodes":[{"number":9,"state":"OPEN","updatedAt":"2026-10-12T00:00:00Z","author":{"login":"bob"}}]},
		"vulnerabilityAlerts":{"totalCount":0}}`, id, name, name, name, updatedAt, name)
}

func TestListRepositoriesStopsAtSince(t *testing.T) {
	c := newTestGraphQL(t, func(req graphqlRequest) string {
		assert.True(t, strings.Contains(req.Query, "organization(login: $org)"))
		return `{"data":{"organization":{"repositories":{"pageInfo":{"hasNextPage":true,"endCursor":"n1"},"nodes":[` +
			repoNodeJSON(1, "api", "2026-10-15T00:00:00Z") + `,` +
			repoNodeJSON(2, "web", "2026-10-01T00:00:00Z") + `]}},` + rateLimitJSON + `}}`
	})
	since := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)

	var seen []Listing
	err := c.ListRepositories(context.Background(), "acme", &since, func(l Listing) error {
		seen = append(seen, l)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, seen, 1)
	d := seen[0].Data
	require.NotNil(t, d)
	assert.Equal(t, int64(1), d.RemoteID)
	assert.Equal(t, "acme/api", d.FullName())
	assert.Equal(t, "main", d.DefaultBranch)
	assert.ElementsMatch(t, []string{"Dockerfile", ".github/", ".github/workflows/", ".github/CODEOWNERS", ".github/workflows/ci.yml"}, d.Paths)
	assert.Equal(t, map[string]string{".github/CODEOWNERS": "* @acme/platform"}, d.Codeowners)
	assert.Equal(t, "# api", d.Readme)
	assert.Equal(t, 2, d.EnvironmentCount)
	assert.Equal(t, 1, d.BranchProtectionCount)
	require.Len(t, d.Commits, 1)
	assert.Equal(t, "ann", d.Commits[0].AuthorLogin)
	require.Len(t, d.PullRequests, 1)
	assert.Equal(t, "open", d.PullRequests[0].State)
	assert.True(t, d.Available(ConnTree))
}
