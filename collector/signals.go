// Package collector derives repository signals, tiers and readme synopses, and synchronizes
// repository records from the GitHub transports into the store.
package collector

import (
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ortelius/pdvd-enricher/github"
	"github.com/ortelius/pdvd-enricher/model"
	"go.uber.org/zap"
)

// Path patterns. A trailing "/" marks a directory prefix, "*" a wildcard; anything else is
// matched as a case-insensitive substring of the path.
var (
	dockerfilePatterns = []string{"Dockerfile", "Dockerfile.*", "docker/Dockerfile", ".docker/Dockerfile"}
	kubernetesPatterns = []string{
		"kubernetes/", "k8s/", ".kube/", "helm/", "charts/",
		"deployment.yaml", "deployment.yml", "kustomization.yaml",
	}
	ciPatterns = []string{
		".github/workflows/", ".gitlab-ci.yml", "Jenkinsfile", ".travis.yml", ".circleci/",
		"azure-pipelines.yml", ".buildkite/", "bitbucket-pipelines.yml",
	}
	terraformPatterns        = []string{"*.tf", "terraform/", ".terraform/"}
	deploymentScriptPatterns = []string{"deploy.sh", "scripts/deploy", "deployment/", "bin/deploy"}
	monitoringPatterns       = []string{"datadog.yaml", "prometheus.yml", "grafana/", "newrelic.yml", ".dd/", "apm-config"}
	testPatterns             = []string{"test/", "tests/", "spec/", "__tests__/", "*.test.js", "*.spec.ts", "test_*.py"}
	docsPatterns             = []string{"docs/", "documentation/"}
	apiSpecPatterns          = []string{
		"openapi.yaml", "openapi.json", "swagger.yaml", "swagger.json", "api-spec.yaml", "api/", ".spectral.yml",
	}
	securityPolicyPatterns   = []string{"SECURITY.md", "security.txt", ".well-known/security.txt"}
	securityScanningPatterns = []string{
		".github/workflows/security", ".github/workflows/codeql", "semgrep.yml", ".semgrep/", "sonar-project.properties",
	}
	gitleaksPatterns  = []string{".gitleaks.toml", "gitleaks.toml", ".gitleaks.yaml"}
	sastPatterns      = []string{".semgrep.yml", "semgrep.yaml", ".bandit", "sonar-project.properties", ".codeql/"}
	migrationPatterns = []string{"migrations/", "db/migrations/", "alembic/", "flyway/", "liquibase/"}
	sslPatterns       = []string{"ssl/", "certs/", "tls.conf", "nginx.conf"}

	manifestFiles = []string{
		"package.json", "requirements.txt", "setup.py", "pyproject.toml", "go.mod",
		"pom.xml", "build.gradle", "Gemfile", "Cargo.toml", "composer.json",
	}
	codeownersFiles      = []string{"CODEOWNERS", ".github/CODEOWNERS"}
	dependencyBotFiles   = []string{".github/dependabot.yml", ".github/dependabot.yaml", "renovate.json", ".renovaterc"}
	readmePrefixes       = []string{"readme"}
	licensePrefixes      = []string{"license", "licence", "copying"}
	changelogPrefixes    = []string{"changelog", "changes", "history"}
	contributingPrefixes = []string{"contributing"}
)

const (
	noReplyAddress        = "noreply@github.com"
	detailedReadmeLength  = 500
	consistentWeeks       = 4
	commitPatternSample   = 100
	minimumContributors   = 2
	contributorWindowDays = 90
)

// pattern is one compiled path pattern.
type pattern struct {
	raw      string
	wildcard *regexp.Regexp
}

func compilePatterns(raw []string) []pattern {
	out := make([]pattern, 0, len(raw))
	for _, p := range raw {
		pt := pattern{raw: strings.ToLower(p)}
		if strings.Contains(p, "*") {
			expr := strings.ReplaceAll(regexp.QuoteMeta(pt.raw), `\*`, ".*")
			pt.wildcard = regexp.MustCompile(expr)
		}
		out = append(out, pt)
	}
	return out
}

func (p pattern) match(lowerPath string) bool {
	switch {
	case p.wildcard != nil:
		return p.wildcard.MatchString(lowerPath)
	case strings.HasSuffix(p.raw, "/"):
		return strings.HasPrefix(lowerPath, p.raw)
	default:
		return strings.Contains(lowerPath, p.raw)
	}
}

// patternSet matches a path listing against a group of patterns.
type patternSet []pattern

// newPatternSet compiles path patterns.
func newPatternSet(patterns ...string) patternSet {
	return compilePatterns(patterns)
}

// matchAny reports whether any pattern matches any path.
func (s patternSet) matchAny(paths []string) bool {
	for _, p := range paths {
		lp := strings.ToLower(p)
		for _, pt := range s {
			if pt.match(lp) {
				return true
			}
		}
	}
	return false
}

var (
	dockerfileSet       = newPatternSet(dockerfilePatterns...)
	kubernetesSet       = newPatternSet(kubernetesPatterns...)
	ciSet               = newPatternSet(ciPatterns...)
	terraformSet        = newPatternSet(terraformPatterns...)
	deploymentScriptSet = newPatternSet(deploymentScriptPatterns...)
	monitoringSet       = newPatternSet(monitoringPatterns...)
	testSet             = newPatternSet(testPatterns...)
	docsSet             = newPatternSet(docsPatterns...)
	apiSpecSet          = newPatternSet(apiSpecPatterns...)
	securityPolicySet   = newPatternSet(securityPolicyPatterns...)
	securityScanningSet = newPatternSet(securityScanningPatterns...)
	gitleaksSet         = newPatternSet(gitleaksPatterns...)
	sastSet             = newPatternSet(sastPatterns...)
	migrationSet        = newPatternSet(migrationPatterns...)
	sslSet              = newPatternSet(sslPatterns...)
)

func hasExactPath(paths []string, names ...string) bool {
	for _, p := range paths {
		for _, n := range names {
			if strings.EqualFold(p, n) {
				return true
			}
		}
	}
	return false
}

// hasRootFile reports a top-level or .github/ file whose name starts with one of prefixes.
func hasRootFile(paths []string, prefixes ...string) bool {
	for _, p := range paths {
		dir, file := path.Split(p)
		if file == "" || (dir != "" && !strings.EqualFold(dir, ".github/")) {
			continue
		}
		lf := strings.ToLower(file)
		for _, prefix := range prefixes {
			if strings.HasPrefix(lf, prefix) {
				return true
			}
		}
	}
	return false
}

// ContributorIdentity picks the identity of a commit author: email, then login, then name.
// The GitHub no-reply placeholder yields "".
func ContributorIdentity(c github.Commit) string {
	id := c.AuthorEmail
	if id == "" {
		id = c.AuthorLogin
	}
	if id == "" {
		id = c.AuthorName
	}
	if strings.EqualFold(id, noReplyAddress) {
		return ""
	}
	return id
}

// ActiveContributors counts distinct commit identities since the cutoff.
func ActiveContributors(commits []github.Commit, since time.Time) int {
	seen := map[string]struct{}{}
	for _, c := range commits {
		if c.CommittedAt.Before(since) {
			continue
		}
		if id := ContributorIdentity(c); id != "" {
			seen[strings.ToLower(id)] = struct{}{}
		}
	}
	return len(seen)
}

// LastCommit returns the newest commit time, or zero when there is no history.
func LastCommit(commits []github.Commit) time.Time {
	var last time.Time
	for _, c := range commits {
		if c.CommittedAt.After(last) {
			last = c.CommittedAt
		}
	}
	return last
}

// SignalDetector derives the signal set of a repository from its transport-neutral metadata.
type SignalDetector struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSignalDetector creates a detector evaluating temporal windows against now.
func NewSignalDetector(logger *zap.Logger, now func() time.Time) *SignalDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &SignalDetector{logger: logger, now: now}
}

func (d *SignalDetector) available(data *github.RepositoryData, conn github.Connection) bool {
	if data.Available(conn) {
		return true
	}
	d.logger.Debug("Signal degraded to false",
		zap.String("repository", data.FullName()),
		zap.String("connection", string(conn)),
		zap.Error(data.Unavailable[conn]))
	return false
}

func within(t time.Time, now time.Time, days int) bool {
	return !t.IsZero() && !t.Before(now.AddDate(0, 0, -days))
}

// Detect computes every signal. Metadata that could not be fetched degrades its signals to false.
func (d *SignalDetector) Detect(data *github.RepositoryData) model.Signals {
	now := d.now().UTC()
	var s model.Signals

	var paths []string
	if d.available(data, github.ConnTree) {
		paths = data.Paths
	}

	// deployment
	s.HasDockerfile = dockerfileSet.matchAny(paths)
	s.HasKubernetesConfig = kubernetesSet.matchAny(paths)
	s.HasCICD = ciSet.matchAny(paths)
	s.HasTerraform = terraformSet.matchAny(paths)
	s.HasDeploymentScripts = deploymentScriptSet.matchAny(paths)
	s.HasProcfile = hasExactPath(paths, "Procfile")

	// production
	s.HasEnvironments = d.available(data, github.ConnEnvironments) && data.EnvironmentCount > 0
	s.HasReleases = d.available(data, github.ConnReleases) && data.ReleaseCount > 0
	s.HasBranchProtection = d.available(data, github.ConnBranchProtection) && data.BranchProtectionCount > 0
	s.HasMonitoringConfig = monitoringSet.matchAny(paths)
	s.HasSSLConfig = sslSet.matchAny(paths)
	s.HasDatabaseMigrations = migrationSet.matchAny(paths)

	// activity
	if d.available(data, github.ConnCommits) {
		last := LastCommit(data.Commits)
		s.RecentCommits30d = within(last, now, 30)
		s.RecentCommits90d = within(last, now, 90)
		s.RecentCommits180d = within(last, now, 180)
		s.MultipleContributors = ActiveContributors(data.Commits, now.AddDate(0, 0, -contributorWindowDays)) >= minimumContributors
		s.ConsistentCommitPattern = consistentCommits(data.Commits)
		for _, c := range data.Commits {
			if strings.Contains(strings.ToLower(c.AuthorEmail), "dependabot") {
				s.HasDependabotActivity = true
				break
			}
		}
	}
	if d.available(data, github.ConnPullRequests) {
		for _, pr := range data.PullRequests {
			if within(pr.UpdatedAt, now, 30) {
				s.ActivePRs30d = true
			}
			if strings.Contains(strings.ToLower(pr.AuthorLogin), "dependabot") {
				s.HasDependabotActivity = true
			}
		}
	}
	if d.available(data, github.ConnReleases) {
		for _, r := range data.Releases {
			if within(r.CreatedAt, now, 90) {
				s.RecentReleases90d = true
				break
			}
		}
	}

	// organization
	s.HasTests = testSet.matchAny(paths)
	s.HasDocumentation = docsSet.matchAny(paths) || utf8.RuneCountInString(data.Readme) > detailedReadmeLength
	s.HasAPISpecs = apiSpecSet.matchAny(paths)
	s.HasCodeowners = hasExactPath(paths, codeownersFiles...)
	s.HasSecurityMD = securityPolicySet.matchAny(paths)
	s.IsMonorepo = isMonorepo(paths)
	s.HasReadme = data.Readme != "" || hasRootFile(paths, readmePrefixes...)
	s.HasLicense = hasRootFile(paths, licensePrefixes...)
	s.HasChangelog = hasRootFile(paths, changelogPrefixes...)
	s.HasContributingGuide = hasRootFile(paths, contributingPrefixes...)

	// security
	s.HasSecurityScanning = securityScanningSet.matchAny(paths)
	s.HasSecretScanning = data.SecretScanningEnabled
	s.HasDependencyScanning = hasExactPath(paths, dependencyBotFiles...)
	s.HasGitleaksConfig = gitleaksSet.matchAny(paths)
	s.HasSASTConfig = sastSet.matchAny(paths)
	s.HasVulnerabilityAlerts = d.available(data, github.ConnVulnerabilityAlerts) && data.VulnerabilityAlertCount > 0

	d.logger.Debug("Detected signals",
		zap.String("repository", data.FullName()),
		zap.Int("signals", s.Count()))
	return s
}

// consistentCommits reports commits spread over at least four ISO weeks among the newest sample.
func consistentCommits(commits []github.Commit) bool {
	if len(commits) > commitPatternSample {
		commits = commits[:commitPatternSample]
	}
	weeks := map[[2]int]struct{}{}
	for _, c := range commits {
		if c.CommittedAt.IsZero() {
			continue
		}
		y, w := c.CommittedAt.UTC().ISOWeek()
		weeks[[2]int{y, w}] = struct{}{}
	}
	return len(weeks) >= consistentWeeks
}

// isMonorepo reports at least two package manifests in at least two directories. The
// repository root counts as a directory.
func isMonorepo(paths []string) bool {
	manifests := 0
	dirs := map[string]struct{}{}
	for _, p := range paths {
		if strings.HasSuffix(p, "/") {
			continue
		}
		dir, file := path.Split(p)
		for _, m := range manifestFiles {
			if strings.EqualFold(file, m) {
				manifests++
				dirs[strings.ToLower(dir)] = struct{}{}
				break
			}
		}
	}
	return manifests >= 2 && len(dirs) >= 2
}
