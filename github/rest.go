package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"
)

const restPerPage = 100

// RESTClient is the per-resource transport. Every piece of metadata costs one or more calls,
// which makes it the fallback for organization walks and the transport for code-scanning and
// secret-scanning alerts.
type RESTClient struct {
	client *gh.Client
	rate   *RateTracker
	logger *zap.Logger
}

// NewRESTClient wraps an authenticated HTTP client. An empty baseURL targets api.github.com.
func NewRESTClient(httpClient *http.Client, baseURL string, logger *zap.Logger) (*RESTClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := gh.NewClient(httpClient)
	if baseURL != "" && strings.TrimRight(baseURL, "/") != DefaultAPIURL {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
		client.BaseURL = u
	}
	return &RESTClient{
		client: client,
		rate:   NewRateTracker("rest", logger),
		logger: logger,
	}, nil
}

// Name identifies the transport in logs and stats.
func (c *RESTClient) Name() string { return "rest" }

// Rate returns the quota tracker fed by every response.
func (c *RESTClient) Rate() *RateTracker { return c.rate }

func (c *RESTClient) observe(resp *gh.Response, err error) {
	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		c.rate.Update(rle.Rate.Limit, rle.Rate.Remaining, 1, rle.Rate.Reset.Time)
		return
	}
	if resp != nil {
		c.rate.Update(resp.Rate.Limit, resp.Rate.Remaining, 1, resp.Rate.Reset.Time)
	}
}

// isMissing reports a 404, or a 403 caused by a disabled security feature.
func isMissing(err error) bool {
	var er *gh.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil {
		return false
	}
	switch er.Response.StatusCode {
	case http.StatusNotFound:
		return true
	case http.StatusForbidden:
		msg := strings.ToLower(er.Message)
		return strings.Contains(msg, "disabled") || strings.Contains(msg, "not enabled") ||
			strings.Contains(msg, "advanced security")
	}
	return false
}

// ListRepositories walks every repository of an organization, most recently updated first.
// The REST transport has no server-side changed-since filter, so since is ignored and
// Listing.Data is always nil.
func (c *RESTClient) ListRepositories(ctx context.Context, org string, _ *time.Time, visit func(Listing) error) error {
	opts := &gh.RepositoryListByOrgOptions{
		Type:        "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: restPerPage},
	}
	for {
		repos, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		c.observe(resp, err)
		if err != nil {
			return fmt.Errorf("listing repositories of %s: %w", org, err)
		}
		for _, r := range repos {
			if err := visit(Listing{Ref: refFromRepository(r)}); err != nil {
				return err
			}
		}
		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func refFromRepository(r *gh.Repository) RepositoryRef {
	return RepositoryRef{
		RemoteID:  r.GetID(),
		Owner:     r.GetOwner().GetLogin(),
		Name:      r.GetName(),
		UpdatedAt: r.GetUpdatedAt().Time,
		Archived:  r.GetArchived(),
	}
}

// FetchRepository gathers the full metadata of one repository. Only the repository record
// itself is required; every other connection degrades to Unavailable on failure.
func (c *RESTClient) FetchRepository(ctx context.Context, owner, name string) (*RepositoryData, error) {
	repo, resp, err := c.client.Repositories.Get(ctx, owner, name)
	c.observe(resp, err)
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
		}
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, name, err)
	}

	data := NewRepositoryData(refFromRepository(repo))
	data.Description = repo.GetDescription()
	data.URL = repo.GetHTMLURL()
	data.DefaultBranch = repo.GetDefaultBranch()
	data.PrimaryLanguage = repo.GetLanguage()
	data.SecretScanningEnabled = repo.GetSecurityAndAnalysis().GetSecretScanning().GetStatus() == "enabled"

	c.fetchTree(ctx, data)
	c.fetchCommits(ctx, data)
	c.fetchReadme(ctx, data)
	c.fetchCodeowners(ctx, data)
	c.fetchEnvironments(ctx, data)
	c.fetchReleases(ctx, data)
	c.fetchBranchProtection(ctx, data)
	c.fetchPullRequests(ctx, data)
	c.fetchVulnerabilityAlerts(ctx, data)

	return data, nil
}

func (c *RESTClient) unavailable(data *RepositoryData, conn Connection, err error) {
	data.MarkUnavailable(conn, err)
	level := c.logger.Warn
	if isMissing(err) {
		level = c.logger.Debug
	}
	level("Repository metadata unavailable",
		zap.String("repository", data.FullName()),
		zap.String("connection", string(conn)),
		zap.Error(err))
}

func (c *RESTClient) fetchTree(ctx context.Context, data *RepositoryData) {
	if data.DefaultBranch == "" {
		return
	}
	tree, resp, err := c.client.Git.GetTree(ctx, data.Owner, data.Name, data.DefaultBranch, true)
	c.observe(resp, err)
	if err != nil {
		c.unavailable(data, ConnTree, err)
		return
	}
	for _, e := range tree.Entries {
		p := e.GetPath()
		if e.GetType() == "tree" {
			p += "/"
		}
		data.Paths = append(data.Paths, p)
	}
}

func (c *RESTClient) fetchCommits(ctx context.Context, data *RepositoryData) {
	commits, resp, err := c.client.Repositories.ListCommits(ctx, data.Owner, data.Name,
		&gh.CommitsListOptions{ListOptions: gh.ListOptions{PerPage: restPerPage}})
	c.observe(resp, err)
	if err != nil {
		c.unavailable(data, ConnCommits, err)
		return
	}
	for _, rc := range commits {
		commit := rc.GetCommit()
		when := commit.GetCommitter().GetDate().Time
		if when.IsZero() {
			when = commit.GetAuthor().GetDate().Time
		}
		data.Commits = append(data.Commits, Commit{
			SHA:         rc.GetSHA(),
			CommittedAt: when,
			AuthorEmail: commit.GetAuthor().GetEmail(),
			AuthorName:  commit.GetAuthor().GetName(),
			AuthorLogin: rc.GetAuthor().GetLogin(),
		})
	}
}

func (c *RESTClient) fetchReadme(ctx context.Context, data *RepositoryData) {
	readme, resp, err := c.client.Repositories.GetReadme(ctx, data.Owner, data.Name, nil)
	c.observe(resp, err)
	if err != nil {
		c.unavailable(data, ConnReadme, err)
		return
	}
	content, err := readme.GetContent()
	if err != nil {
		c.unavailable(data, ConnReadme, err)
		return
	}
	data.Readme = content
}

func (c *RESTClient) fetchCodeowners(ctx context.Context, data *RepositoryData) {
	for _, path := range CodeownersPaths {
		file, _, resp, err := c.client.Repositories.GetContents(ctx, data.Owner, data.Name, path, nil)
		c.observe(resp, err)
		if err != nil {
			if !isMissing(err) {
				c.unavailable(data, ConnCodeowners, err)
			}
			continue
		}
		if file == nil {
			continue
		}
		if content, err := file.GetContent(); err == nil {
			data.Codeowners[path] = content
		}
	}
}

func (c *RESTClient) fetchEnvironments(ctx context.Context, data *RepositoryData) {
	envs, resp, err := c.client.Repositories.ListEnvironments(ctx, data.Owner, data.Name,
		&gh.EnvironmentListOptions{ListOptions: gh.ListOptions{PerPage: 1}})
	c.observe(resp, err)
	if err != nil {
		c.unavailable(data, ConnEnvironments, err)
		return
	}
	data.EnvironmentCount = envs.GetTotalCount()
}

func (c *RESTClient) fetchReleases(ctx context.Context, data *RepositoryData) {
	releases, resp, err := c.client.Repositories.ListReleases(ctx, data.Owner, data.Name, &gh.ListOptions{PerPage: 10})
	c.observe(resp, err)
	if err != nil {
		c.unavailable(data, ConnReleases, err)
		return
	}
	data.ReleaseCount = len(releases)
	for _, r := range releases {
		data.Releases = append(data.Releases, Release{TagName: r.GetTagName(), CreatedAt: r.GetCreatedAt().Time})
	}
}

func (c *RESTClient) fetchBranchProtection(ctx context.Context, data *RepositoryData) {
	if data.DefaultBranch == "" {
		return
	}
	branch, resp, err := c.client.Repositories.GetBranch(ctx, data.Owner, data.Name, data.DefaultBranch, 1)
	c.observe(resp, err)
	if err != nil {
		c.unavailable(data, ConnBranchProtection, err)
		return
	}
	if branch.GetProtected() {
		data.BranchProtectionCount = 1
	}
}

func (c *RESTClient) fetchPullRequests(ctx context.Context, data *RepositoryData) {
	prs, resp, err := c.client.PullRequests.List(ctx, data.Owner, data.Name, &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: 10},
	})
	c.observe(resp, err)
	if err != nil {
		c.unavailable(data, ConnPullRequests, err)
		return
	}
	data.PullRequestCount = len(prs)
	for _, pr := range prs {
		data.PullRequests = append(data.PullRequests, PullRequest{
			Number:      pr.GetNumber(),
			State:       pr.GetState(),
			UpdatedAt:   pr.GetUpdatedAt().Time,
			AuthorLogin: pr.GetUser().GetLogin(),
		})
	}
}

func (c *RESTClient) fetchVulnerabilityAlerts(ctx context.Context, data *RepositoryData) {
	enabled, resp, err := c.client.Repositories.GetVulnerabilityAlerts(ctx, data.Owner, data.Name)
	c.observe(resp, err)
	if err != nil {
		c.unavailable(data, ConnVulnerabilityAlerts, err)
		return
	}
	if enabled {
		data.VulnerabilityAlertCount = 1
	}
}

// listCodeScanningAlerts pages through every code-scanning alert in all states.
// A disabled feature or missing repository yields an empty result.
func (c *RESTClient) listCodeScanningAlerts(ctx context.Context, owner, name string) ([]*gh.Alert, error) {
	var out []*gh.Alert
	opts := &gh.AlertListOptions{}
	opts.ListOptions.PerPage = restPerPage
	opts.ListOptions.Page = 1
	for {
		alerts, resp, err := c.client.CodeScanning.ListAlertsForRepo(ctx, owner, name, opts)
		c.observe(resp, err)
		if err != nil {
			if isMissing(err) {
				c.logger.Debug("Code scanning not available", zap.String("repository", owner+"/"+name), zap.Error(err))
				return nil, nil
			}
			return nil, fmt.Errorf("listing code scanning alerts of %s/%s: %w", owner, name, err)
		}
		out = append(out, alerts...)
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// listSecretScanningAlerts pages through every secret-scanning alert in all states.
// A disabled feature or missing repository yields an empty result.
func (c *RESTClient) listSecretScanningAlerts(ctx context.Context, owner, name string) ([]*gh.SecretScanningAlert, error) {
	var out []*gh.SecretScanningAlert
	opts := &gh.SecretScanningAlertListOptions{}
	opts.ListOptions.PerPage = restPerPage
	opts.ListOptions.Page = 1
	for {
		alerts, resp, err := c.client.SecretScanning.ListAlertsForRepo(ctx, owner, name, opts)
		c.observe(resp, err)
		if err != nil {
			if isMissing(err) {
				c.logger.Debug("Secret scanning not available", zap.String("repository", owner+"/"+name), zap.Error(err))
				return nil, nil
			}
			return nil, fmt.Errorf("listing secret scanning alerts of %s/%s: %w", owner, name, err)
		}
		out = append(out, alerts...)
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}
