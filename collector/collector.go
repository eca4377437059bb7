package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ortelius/pdvd-enricher/github"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/util"
	"go.uber.org/zap"
)

// Transport is the repository side of a GitHub transport.
type Transport interface {
	Name() string
	ListRepositories(ctx context.Context, org string, since *time.Time, visit func(github.Listing) error) error
	FetchRepository(ctx context.Context, owner, name string) (*github.RepositoryData, error)
}

type rateReporter interface {
	Rate() *github.RateTracker
}

// Stats summarizes an organization sync.
type Stats struct {
	Total     int    `json:"total" yaml:"total"`
	Created   int    `json:"created" yaml:"created"`
	Updated   int    `json:"updated" yaml:"updated"`
	Errors    int    `json:"errors" yaml:"errors"`
	Skipped   int    `json:"skipped" yaml:"skipped"`
	Transport string `json:"transport" yaml:"transport"`
	FellBack  bool   `json:"fell_back,omitempty" yaml:"fell_back,omitempty"`
}

// Options configures a Collector.
type Options struct {
	Org string
	// UseREST bypasses the bulk transport.
	UseREST bool
	// Force disables the skip policy of per-resource iteration.
	Force bool
	Now   func() time.Time
}

// Collector synchronizes repository records from GitHub into the store.
type Collector struct {
	bulk     Transport
	resource Transport
	store    store.Store
	detector *SignalDetector
	opts     Options
	logger   *zap.Logger
}

// New creates a collector. bulk may be nil, in which case every operation uses resource.
func New(bulk, resource Transport, st store.Store, opts Options, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{
		bulk:     bulk,
		resource: resource,
		store:    st,
		detector: NewSignalDetector(logger, opts.Now),
		opts:     opts,
		logger:   logger,
	}
}

func (c *Collector) useBulk() bool {
	return c.bulk != nil && !c.opts.UseREST
}

// ParseIdentity accepts "owner/name" or a repository URL such as https://github.com/owner/name.
func ParseIdentity(identity string) (owner, name string, err error) {
	identity = strings.TrimSpace(identity)
	if strings.Contains(identity, "://") {
		u, perr := url.Parse(identity)
		if perr != nil {
			return "", "", fmt.Errorf("invalid repository URL %q: %w", identity, perr)
		}
		identity = strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
		parts := strings.Split(identity, "/")
		if len(parts) >= 2 {
			identity = parts[len(parts)-2] + "/" + parts[len(parts)-1]
		}
	}
	nc := util.ParseName(identity)
	if nc.Owner == "" || nc.Shortname == "" || strings.Contains(nc.Shortname, "/") {
		return "", "", fmt.Errorf("repository identity %q is not owner/name", identity)
	}
	return nc.Owner, nc.Shortname, nil
}

// SyncOne fetches one repository, trying the bulk transport first, and stores it. It reports
// whether the owning product was created.
func (c *Collector) SyncOne(ctx context.Context, identity string) (bool, error) {
	owner, name, err := ParseIdentity(identity)
	if err != nil {
		return false, err
	}

	var data *github.RepositoryData
	fetch := func(t Transport) Phase {
		return Phase{Name: t.Name(), Run: func(ctx context.Context) error {
			d, err := t.FetchRepository(ctx, owner, name)
			if err != nil {
				return err
			}
			data = d
			return nil
		}}
	}

	strategy := Strategy{Primary: fetch(c.resource), Logger: c.logger}
	if c.useBulk() {
		secondary := fetch(c.resource)
		strategy = Strategy{Primary: fetch(c.bulk), Secondary: &secondary, Logger: c.logger}
	}

	outcome := strategy.Execute(ctx)
	if !outcome.Succeeded {
		return false, fmt.Errorf("fetching %s/%s: %w", owner, name, outcome.Err)
	}
	return c.apply(ctx, data)
}

// SyncAll walks the organization. Incremental runs on the bulk transport only request
// repositories changed since the latest stored sync; when the bulk transport fails outright
// the walk restarts on the per-resource transport and re-fetches everything, keeping only
// the error count of the failed attempt.
func (c *Collector) SyncAll(ctx context.Context, incremental bool) (Stats, error) {
	if c.opts.Org == "" {
		return Stats{}, errors.New("organization is required")
	}

	var stats Stats
	if !c.useBulk() {
		stats.Transport = c.resource.Name()
		err := c.walkResource(ctx, &stats, !c.opts.Force)
		if err != nil {
			stats.Errors++
		}
		c.logQuota()
		c.logger.Info("Repository sync completed", statsFields(stats)...)
		return stats, err
	}

	var since *time.Time
	if incremental {
		latest, err := c.store.LatestRepositorySync(ctx)
		if err != nil {
			return stats, fmt.Errorf("reading latest repository sync: %w", err)
		}
		since = latest
	}

	strategy := Strategy{
		Primary: Phase{Name: c.bulk.Name(), Run: func(ctx context.Context) error {
			return c.bulk.ListRepositories(ctx, c.opts.Org, since, c.visitor(ctx, &stats, false))
		}},
		Secondary: &Phase{Name: c.resource.Name(), Run: func(ctx context.Context) error {
			return c.walkResource(ctx, &stats, false)
		}},
		BeforeFallback: func(error) {
			stats = Stats{Errors: stats.Errors + 1}
		},
		Logger: c.logger,
	}

	outcome := strategy.Execute(ctx)
	stats.Transport = outcome.Used
	stats.FellBack = outcome.FellBack
	var err error
	if !outcome.Succeeded {
		stats.Errors++
		err = outcome.Err
	}
	c.logQuota()
	c.logger.Info("Repository sync completed", statsFields(stats)...)
	return stats, err
}

func statsFields(s Stats) []zap.Field {
	return []zap.Field{
		zap.String("transport", s.Transport),
		zap.Bool("fell_back", s.FellBack),
		zap.Int("total", s.Total),
		zap.Int("created", s.Created),
		zap.Int("updated", s.Updated),
		zap.Int("skipped", s.Skipped),
		zap.Int("errors", s.Errors),
	}
}

func (c *Collector) walkResource(ctx context.Context, stats *Stats, skip bool) error {
	return c.resource.ListRepositories(ctx, c.opts.Org, nil, c.visitor(ctx, stats, skip))
}

// visitor handles one listing entry. Per-repository failures are counted, never returned.
func (c *Collector) visitor(ctx context.Context, stats *Stats, skip bool) func(github.Listing) error {
	return func(l github.Listing) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Total++

		if skip {
			skipped, err := c.shouldSkip(ctx, l.Ref)
			if err != nil {
				c.logger.Warn("Skip check failed", zap.String("repository", l.Ref.FullName()), zap.Error(err))
			}
			if skipped {
				stats.Skipped++
				return nil
			}
		}

		data := l.Data
		if data == nil {
			d, err := c.resource.FetchRepository(ctx, l.Ref.Owner, l.Ref.Name)
			if err != nil {
				c.logger.Error("Error syncing repository", zap.String("repository", l.Ref.FullName()), zap.Error(err))
				stats.Errors++
				return nil
			}
			data = d
		}

		created, err := c.apply(ctx, data)
		switch {
		case err != nil:
			c.logger.Error("Error syncing repository", zap.String("repository", l.Ref.FullName()), zap.Error(err))
			stats.Errors++
		case created:
			stats.Created++
		default:
			stats.Updated++
		}
		return nil
	}
}

// shouldSkip reports a repository whose product exists and which has not changed remotely
// since it was last synced.
func (c *Collector) shouldSkip(ctx context.Context, ref github.RepositoryRef) (bool, error) {
	repo, found, err := c.store.GetRepository(ctx, model.RepositoryKey(ref.RemoteID))
	if err != nil || !found || repo.LastSyncedAt == nil || repo.ProductKey == "" {
		return false, err
	}
	_, found, err = c.store.GetProduct(ctx, repo.ProductKey)
	if err != nil || !found {
		return false, err
	}
	if ref.UpdatedAt.IsZero() || ref.UpdatedAt.After(*repo.LastSyncedAt) {
		return false, nil
	}
	c.logger.Debug("Skipping repository, no updates since last sync", zap.String("repository", ref.FullName()))
	return true, nil
}

// CodeownersConfidence is ten points per non-comment rule, capped at 100.
func CodeownersConfidence(content string) int {
	rules := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			rules++
		}
	}
	if rules*10 > 100 {
		return 100
	}
	return rules * 10
}

func codeowners(data *github.RepositoryData) (string, int) {
	for _, p := range github.CodeownersPaths {
		if content, ok := data.Codeowners[p]; ok {
			return content, CodeownersConfidence(content)
		}
	}
	return "", 0
}

// apply derives signals, tier and synopsis for the fetched data and writes the repository
// together with its product. It reports whether the product was created.
func (c *Collector) apply(ctx context.Context, data *github.RepositoryData) (bool, error) {
	now := c.opts.Now().UTC()
	fullName := data.FullName()

	repo, found, err := c.store.GetRepository(ctx, model.RepositoryKey(data.RemoteID))
	if err != nil {
		return false, fmt.Errorf("loading repository %s: %w", fullName, err)
	}
	if !found {
		repo = model.NewRepository(data.RemoteID, fullName)
		repo.CreatedAt = now
	}

	productKey := repo.ProductKey
	if productKey == "" {
		productKey = util.SanitizeKey(fullName)
	}
	product, productFound, err := c.store.GetProduct(ctx, productKey)
	if err != nil {
		return false, fmt.Errorf("loading product of %s: %w", fullName, err)
	}
	var productType *model.ProductType
	if !productFound {
		productType = model.NewProductType(data.Owner)
		if existing, ok, err := c.store.GetProductType(ctx, productType.Key); err == nil && ok {
			productType = existing
		}
		product = model.NewProduct(fullName, productType.Key)
		product.CreatedAt = now
		product.Description = data.Description
		if product.Description == "" {
			product.Description = "GitHub repository: " + fullName
		}
		c.logger.Info("Creating product", zap.String("product", product.Name), zap.String("product_type", productType.Name))
	}

	signals := c.detector.Detect(data)

	var days *int
	var lastCommit *time.Time
	if last := LastCommit(data.Commits); !last.IsZero() {
		d := int(now.Sub(last).Hours() / 24)
		days = &d
		lc := last.UTC()
		lastCommit = &lc
	}
	classification := Classify(signals, days)
	readme := SummarizeReadme(data.Readme)
	owners, ownership := codeowners(data)

	repo.Name = data.Name
	repo.FullName = fullName
	repo.URL = data.URL
	repo.ProductKey = product.Key
	repo.Tier = classification.Tier
	repo.BusinessCriticality = classification.BusinessCriticality
	repo.TierConfidence = classification.Confidence
	repo.TierReasons = classification.Reasons
	repo.Signals = signals
	repo.LastCommitDate = lastCommit
	repo.DaysSinceLastCommit = days
	repo.ActiveContributors90d = ActiveContributors(data.Commits, now.AddDate(0, 0, -contributorWindowDays))
	repo.ReadmeSummary = readme.Summary
	repo.ReadmeLength = readme.Length
	repo.PrimaryLanguage = readme.PrimaryLanguage
	if repo.PrimaryLanguage == "" {
		repo.PrimaryLanguage = data.PrimaryLanguage
	}
	repo.PrimaryFramework = readme.PrimaryFramework
	repo.CodeownersContent = owners
	repo.OwnershipConfidence = ownership
	if !data.UpdatedAt.IsZero() {
		u := data.UpdatedAt.UTC()
		repo.RemoteUpdatedAt = &u
	}
	repo.LastSyncedAt = &now

	product.BusinessCriticality = classification.BusinessCriticality
	if classification.Tier == model.Archived {
		product.Lifecycle = model.LifecycleRetirement
	}

	if err := c.store.SaveRepository(ctx, repo, product, productType); err != nil {
		return false, fmt.Errorf("saving repository %s: %w", fullName, err)
	}

	c.logger.Info("Synced repository",
		zap.String("repository", fullName),
		zap.String("tier", string(classification.Tier)),
		zap.Int("confidence", classification.Confidence),
		zap.Int("signals", signals.Count()))
	return !productFound, nil
}

// ArchiveDormant retires the products of repositories whose last recorded commit is older
// than days and archives the repositories. It returns how many were archived.
func (c *Collector) ArchiveDormant(ctx context.Context, days int) (int, error) {
	repos, err := c.store.ListRepositories(ctx)
	if err != nil {
		return 0, err
	}
	archived := 0
	for _, repo := range repos {
		if repo.DaysSinceLastCommit == nil || *repo.DaysSinceLastCommit <= days || repo.ProductKey == "" {
			continue
		}
		product, found, err := c.store.GetProduct(ctx, repo.ProductKey)
		if err != nil {
			return archived, err
		}
		if !found || product.Lifecycle == model.LifecycleRetirement {
			continue
		}
		product.Lifecycle = model.LifecycleRetirement
		product.BusinessCriticality = model.Archived.BusinessCriticality()
		repo.Tier = model.Archived
		repo.BusinessCriticality = model.Archived.BusinessCriticality()
		repo.TierConfidence = 100
		repo.TierReasons = []string{fmt.Sprintf("No commits in %d days", *repo.DaysSinceLastCommit)}
		if err := c.store.SaveRepository(ctx, repo, product, nil); err != nil {
			return archived, err
		}
		archived++
	}
	c.logger.Info("Archived dormant repositories", zap.Int("archived", archived), zap.Int("threshold_days", days))
	return archived, nil
}

func (c *Collector) logQuota() {
	for _, t := range []Transport{c.bulk, c.resource} {
		r, ok := t.(rateReporter)
		if !ok {
			continue
		}
		if q, known := r.Rate().Quota(); known {
			c.logger.Info("GitHub quota",
				zap.String("transport", t.Name()),
				zap.Int("remaining", q.Remaining),
				zap.Int("limit", q.Limit),
				zap.Time("reset_at", q.ResetAt))
		}
	}
}
