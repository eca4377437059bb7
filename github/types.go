// Package github provides the two GitHub transports used by the enricher: a bulk GraphQL
// transport and a per-resource REST transport, both reporting their rate-limit quota.
package github

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a repository cannot be reached by a transport.
var ErrNotFound = errors.New("github: not found")

// Connection names a piece of repository metadata fetched separately from the core record.
type Connection string

// Connection values
const (
	ConnTree                Connection = "tree"
	ConnCommits             Connection = "commits"
	ConnReadme              Connection = "readme"
	ConnCodeowners          Connection = "codeowners"
	ConnEnvironments        Connection = "environments"
	ConnReleases            Connection = "releases"
	ConnBranchProtection    Connection = "branch_protection"
	ConnPullRequests        Connection = "pull_requests"
	ConnVulnerabilityAlerts Connection = "vulnerability_alerts"
)

// CodeownersPaths lists the CODEOWNERS locations in lookup order.
var CodeownersPaths = []string{"CODEOWNERS", ".github/CODEOWNERS", "docs/CODEOWNERS"}

// Commit is one entry of the default branch history.
type Commit struct {
	SHA         string
	CommittedAt time.Time
	AuthorEmail string
	AuthorName  string
	AuthorLogin string
}

// Release is one published release.
type Release struct {
	TagName   string
	CreatedAt time.Time
}

// PullRequest is one pull request, most recently updated first.
type PullRequest struct {
	Number      int
	State       string
	UpdatedAt   time.Time
	AuthorLogin string
}

// RepositoryRef identifies a repository in an organization listing.
type RepositoryRef struct {
	RemoteID  int64
	Owner     string
	Name      string
	UpdatedAt time.Time
	Archived  bool
}

// FullName returns "owner/name".
func (r RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// RepositoryData is the transport-neutral metadata of one repository.
// Paths lists files, and directories with a trailing "/".
type RepositoryData struct {
	RepositoryRef
	Description     string
	URL             string
	DefaultBranch   string
	PrimaryLanguage string

	Paths        []string
	Commits      []Commit
	Releases     []Release
	PullRequests []PullRequest
	Readme       string
	Codeowners   map[string]string

	EnvironmentCount        int
	ReleaseCount            int
	BranchProtectionCount   int
	PullRequestCount        int
	VulnerabilityAlertCount int
	SecretScanningEnabled   bool

	Unavailable map[Connection]error
}

// NewRepositoryData creates an empty record for a listing entry.
func NewRepositoryData(ref RepositoryRef) *RepositoryData {
	return &RepositoryData{
		RepositoryRef: ref,
		Codeowners:    map[string]string{},
		Unavailable:   map[Connection]error{},
	}
}

// MarkUnavailable records that a connection could not be fetched.
func (d *RepositoryData) MarkUnavailable(c Connection, err error) {
	if d.Unavailable == nil {
		d.Unavailable = map[Connection]error{}
	}
	d.Unavailable[c] = err
}

// Available reports whether a connection was fetched.
func (d *RepositoryData) Available(c Connection) bool {
	_, failed := d.Unavailable[c]
	return !failed
}

// Listing is one entry produced while walking an organization. Data is nil when
// the transport only lists identities and the full record has to be fetched separately.
type Listing struct {
	Ref  RepositoryRef
	Data *RepositoryData
}
