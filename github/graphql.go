package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
)

const (
	orgPageSize   = 10
	alertPageSize = 100
)

// GraphQLClient is the bulk transport: one round trip returns a page of repositories
// with their file listing, history and settings.
type GraphQLClient struct {
	client *githubv4.Client
	rate   *RateTracker
	logger *zap.Logger
}

// NewGraphQLClient wraps an authenticated HTTP client for the given GraphQL endpoint.
func NewGraphQLClient(httpClient *http.Client, endpoint string, logger *zap.Logger) *GraphQLClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphQLClient{
		client: githubv4.NewEnterpriseClient(endpoint, httpClient),
		rate:   NewRateTracker("graphql", logger),
		logger: logger,
	}
}

// Name identifies the transport in logs and stats.
func (c *GraphQLClient) Name() string { return "graphql" }

// Rate returns the quota tracker fed by every query.
func (c *GraphQLClient) Rate() *RateTracker { return c.rate }

type rateLimit struct {
	Cost      int
	Limit     int
	Remaining int
	ResetAt   githubv4.DateTime
}

func (c *GraphQLClient) observe(r rateLimit) {
	c.rate.Update(r.Limit, r.Remaining, r.Cost, r.ResetAt.Time)
}

type treeObject struct {
	Tree struct {
		Entries []struct {
			Name string
			Type string
		}
	} `graphql:"... on Tree"`
}

type blobObject struct {
	Blob struct {
		Text string
	} `graphql:"... on Blob"`
}

type commitNode struct {
	Oid           string
	CommittedDate githubv4.DateTime
	Author        *struct {
		Email string
		Name  string
		User  *struct {
			Login string
		}
	}
}

type repositoryNode struct {
	DatabaseID    int64
	Name          string
	NameWithOwner string
	Owner         struct {
		Login string
	}
	Description     string
	URL             string
	IsArchived      bool
	UpdatedAt       githubv4.DateTime
	PrimaryLanguage *struct {
		Name string
	}
	DefaultBranchRef *struct {
		Name   string
		Target struct {
			Commit struct {
				History struct {
					Nodes []commitNode
				} `graphql:"history(first: 100)"`
			} `graphql:"... on Commit"`
		}
	}
	RootTree      *treeObject `graphql:"rootTree: object(expression: \"HEAD:\")"`
	GithubTree    *treeObject `graphql:"githubTree: object(expression: \"HEAD:.github\")"`
	WorkflowsTree *treeObject `graphql:"workflowsTree: object(expression: \"HEAD:.github/workflows\")"`
	Readme        *blobObject `graphql:"readme: object(expression: \"HEAD:README.md\")"`
	Codeowners1   *blobObject `graphql:"codeowners1: object(expression: \"HEAD:CODEOWNERS\")"`
	Codeowners2   *blobObject `graphql:"codeowners2: object(expression: \"HEAD:.github/CODEOWNERS\")"`
	Codeowners3   *blobObject `graphql:"codeowners3: object(expression: \"HEAD:docs/CODEOWNERS\")"`
	Environments  struct {
		TotalCount int
	} `graphql:"environments(first: 1)"`
	Releases struct {
		TotalCount int
		Nodes      []struct {
			TagName   string
			CreatedAt githubv4.DateTime
		}
	} `graphql:"releases(first: 10, orderBy: {field: CREATED_AT, direction: DESC})"`
	BranchProtectionRules struct {
		TotalCount int
	} `graphql:"branchProtectionRules(first: 1)"`
	PullRequests struct {
		TotalCount int
		Nodes      []struct {
			Number    int
			State     string
			UpdatedAt githubv4.DateTime
			Author    *struct {
				Login string
			}
		}
	} `graphql:"pullRequests(first: 10, orderBy: {field: UPDATED_AT, direction: DESC})"`
	VulnerabilityAlerts struct {
		TotalCount int
	} `graphql:"vulnerabilityAlerts(first: 1)"`
}

func (n *repositoryNode) ref() RepositoryRef {
	owner, name := n.Owner.Login, n.Name
	if owner == "" {
		if o, s, ok := strings.Cut(n.NameWithOwner, "/"); ok {
			owner, name = o, s
		}
	}
	return RepositoryRef{
		RemoteID:  n.DatabaseID,
		Owner:     owner,
		Name:      name,
		UpdatedAt: n.UpdatedAt.Time,
		Archived:  n.IsArchived,
	}
}

func appendTree(paths []string, prefix string, obj *treeObject) []string {
	if obj == nil {
		return paths
	}
	for _, e := range obj.Tree.Entries {
		p := prefix + e.Name
		if e.Type == "tree" {
			p += "/"
		}
		paths = append(paths, p)
	}
	return paths
}

// data converts a node into the transport-neutral record. The bulk transport lists the
// repository root plus the .github and .github/workflows directories.
func (n *repositoryNode) data() *RepositoryData {
	d := NewRepositoryData(n.ref())
	d.Description = n.Description
	d.URL = n.URL
	if n.PrimaryLanguage != nil {
		d.PrimaryLanguage = n.PrimaryLanguage.Name
	}

	if n.DefaultBranchRef != nil {
		d.DefaultBranch = n.DefaultBranchRef.Name
		for _, c := range n.DefaultBranchRef.Target.Commit.History.Nodes {
			commit := Commit{SHA: c.Oid, CommittedAt: c.CommittedDate.Time}
			if c.Author != nil {
				commit.AuthorEmail = c.Author.Email
				commit.AuthorName = c.Author.Name
				if c.Author.User != nil {
					commit.AuthorLogin = c.Author.User.Login
				}
			}
			d.Commits = append(d.Commits, commit)
		}
	} else {
		d.MarkUnavailable(ConnCommits, fmt.Errorf("no default branch"))
	}

	if n.RootTree == nil {
		d.MarkUnavailable(ConnTree, fmt.Errorf("empty repository"))
	}
	d.Paths = appendTree(d.Paths, "", n.RootTree)
	d.Paths = appendTree(d.Paths, ".github/", n.GithubTree)
	d.Paths = appendTree(d.Paths, ".github/workflows/", n.WorkflowsTree)

	if n.Readme != nil {
		d.Readme = n.Readme.Blob.Text
	}
	for i, blob := range []*blobObject{n.Codeowners1, n.Codeowners2, n.Codeowners3} {
		if blob != nil {
			d.Codeowners[CodeownersPaths[i]] = blob.Blob.Text
		}
	}

	d.EnvironmentCount = n.Environments.TotalCount
	d.ReleaseCount = n.Releases.TotalCount
	for _, r := range n.Releases.Nodes {
		d.Releases = append(d.Releases, Release{TagName: r.TagName, CreatedAt: r.CreatedAt.Time})
	}
	d.BranchProtectionCount = n.BranchProtectionRules.TotalCount
	d.PullRequestCount = n.PullRequests.TotalCount
	for _, pr := range n.PullRequests.Nodes {
		p := PullRequest{Number: pr.Number, State: strings.ToLower(pr.State), UpdatedAt: pr.UpdatedAt.Time}
		if pr.Author != nil {
			p.AuthorLogin = pr.Author.Login
		}
		d.PullRequests = append(d.PullRequests, p)
	}
	d.VulnerabilityAlertCount = n.VulnerabilityAlerts.TotalCount
	return d
}

func isUnresolved(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not resolve")
}

func isDisabled(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not enabled") || strings.Contains(msg, "disabled")
}

// FetchRepository fetches one repository in a single query.
func (c *GraphQLClient) FetchRepository(ctx context.Context, owner, name string) (*RepositoryData, error) {
	var q struct {
		Repository *repositoryNode `graphql:"repository(owner: $owner, name: $name)"`
		RateLimit  rateLimit
	}
	vars := map[string]interface{}{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(name),
	}
	if err := c.client.Query(ctx, &q, vars); err != nil {
		if isUnresolved(err) {
			return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
		}
		return nil, fmt.Errorf("graphql repository query for %s/%s: %w", owner, name, err)
	}
	c.observe(q.RateLimit)
	if q.Repository == nil {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
	}
	return q.Repository.data(), nil
}

// ListRepositories pages through an organization, most recently updated first. When since
// is set, the walk stops at the first repository not updated after it.
func (c *GraphQLClient) ListRepositories(ctx context.Context, org string, since *time.Time, visit func(Listing) error) error {
	type orgQuery struct {
		Organization struct {
			Repositories struct {
				PageInfo struct {
					HasNextPage bool
					EndCursor   githubv4.String
				}
				Nodes []repositoryNode
			} `graphql:"repositories(first: $pageSize, after: $cursor, orderBy: {field: UPDATED_AT, direction: DESC})"`
		} `graphql:"organization(login: $org)"`
		RateLimit rateLimit
	}
	vars := map[string]interface{}{
		"org":      githubv4.String(org),
		"pageSize": githubv4.Int(orgPageSize),
		"cursor":   (*githubv4.String)(nil),
	}

	for page := 1; ; page++ {
		var q orgQuery
		if err := c.client.Query(ctx, &q, vars); err != nil {
			return fmt.Errorf("graphql organization query for %s (page %d): %w", org, page, err)
		}
		c.observe(q.RateLimit)
		c.logger.Debug("Fetched organization page",
			zap.String("org", org),
			zap.Int("page", page),
			zap.Int("repositories", len(q.Organization.Repositories.Nodes)),
			zap.Int("cost", q.RateLimit.Cost))

		for i := range q.Organization.Repositories.Nodes {
			node := &q.Organization.Repositories.Nodes[i]
			if since != nil && !node.UpdatedAt.Time.After(*since) {
				return nil
			}
			data := node.data()
			if err := visit(Listing{Ref: data.RepositoryRef, Data: data}); err != nil {
				return err
			}
		}

		if !q.Organization.Repositories.PageInfo.HasNextPage {
			return nil
		}
		vars["cursor"] = githubv4.NewString(q.Organization.Repositories.PageInfo.EndCursor)
	}
}

type vulnerabilityAlertNode struct {
	Number                 int
	State                  string
	CreatedAt              githubv4.DateTime
	DismissedAt            *githubv4.DateTime
	FixedAt                *githubv4.DateTime
	AutoDismissedAt        *githubv4.DateTime
	DismissReason          string
	VulnerableManifestPath string
	VulnerableRequirements string
	SecurityAdvisory       struct {
		GhsaID      string
		Summary     string
		Description string
		Severity    string
		Permalink   string
		Identifiers []struct {
			Type  string
			Value string
		}
		CVSS struct {
			Score        float64
			VectorString string
		}
		Cwes struct {
			Nodes []struct {
				CweID string
			}
		} `graphql:"cwes(first: 5)"`
		References []struct {
			URL string
		}
	}
	SecurityVulnerability struct {
		Package struct {
			Name      string
			Ecosystem string
		}
		VulnerableVersionRange string
		FirstPatchedVersion    *struct {
			Identifier string
		}
		Severity string
	}
}

// DependabotAlerts fetches every dependency alert of a repository in all states. A missing
// repository or disabled feature yields an empty result.
func (c *GraphQLClient) DependabotAlerts(ctx context.Context, owner, name string) ([]model.Alert, error) {
	type alertQuery struct {
		Repository *struct {
			URL                 string
			VulnerabilityAlerts struct {
				PageInfo struct {
					HasNextPage bool
					EndCursor   githubv4.String
				}
				Nodes []vulnerabilityAlertNode
			} `graphql:"vulnerabilityAlerts(first: $pageSize, after: $cursor)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
		RateLimit rateLimit
	}
	vars := map[string]interface{}{
		"owner":    githubv4.String(owner),
		"name":     githubv4.String(name),
		"pageSize": githubv4.Int(alertPageSize),
		"cursor":   (*githubv4.String)(nil),
	}

	var alerts []model.Alert
	for {
		var q alertQuery
		if err := c.client.Query(ctx, &q, vars); err != nil {
			if isUnresolved(err) || isDisabled(err) {
				c.logger.Debug("Dependabot alerts not available", zap.String("repository", owner+"/"+name), zap.Error(err))
				return nil, nil
			}
			return nil, fmt.Errorf("graphql vulnerability alert query for %s/%s: %w", owner, name, err)
		}
		c.observe(q.RateLimit)
		if q.Repository == nil {
			return nil, nil
		}
		for i := range q.Repository.VulnerabilityAlerts.Nodes {
			alerts = append(alerts, normalizeDependabot(&q.Repository.VulnerabilityAlerts.Nodes[i], q.Repository.URL))
		}
		if !q.Repository.VulnerabilityAlerts.PageInfo.HasNextPage {
			return alerts, nil
		}
		vars["cursor"] = githubv4.NewString(q.Repository.VulnerabilityAlerts.PageInfo.EndCursor)
	}
}
