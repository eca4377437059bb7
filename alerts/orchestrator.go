// Package alerts mirrors the Dependabot, CodeQL and secret-scanning alerts of tracked
// repositories into the store.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ortelius/pdvd-enricher/collector"
	"github.com/ortelius/pdvd-enricher/findings"
	"github.com/ortelius/pdvd-enricher/github"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/util"
	"go.uber.org/zap"
)

const (
	// DefaultInterval is the minimum time between two successful syncs of a repository.
	DefaultInterval = time.Hour
	// DefaultRateLimitFloor is the remaining quota fraction below which a batch stops.
	DefaultRateLimitFloor = 0.2

	maxErrorLength = 1000
)

// DependencySource lists Dependabot alerts.
type DependencySource interface {
	DependabotAlerts(ctx context.Context, owner, name string) ([]model.Alert, error)
}

// CodeSource lists code-scanning and secret-scanning alerts.
type CodeSource interface {
	CodeQLAlerts(ctx context.Context, owner, name string) ([]model.Alert, error)
	SecretScanningAlerts(ctx context.Context, owner, name string) ([]model.Alert, error)
}

// RepositoryProjector projects the mirrored alerts of a repository into findings.
type RepositoryProjector interface {
	ProjectRepository(ctx context.Context, repo *model.Repository) (findings.Stats, error)
}

type rateReporter interface {
	Rate() *github.RateTracker
}

// Options scopes one alert sync run.
type Options struct {
	Force  bool
	DryRun bool
	// Limit caps the number of repositories synced. Zero means no limit.
	Limit         int
	RepositoryKey string
	// Project runs the finding projection after each successful repository sync.
	Project bool
}

// Config tunes the orchestrator.
type Config struct {
	Interval       time.Duration
	RateLimitFloor float64
	Now            func() time.Time
}

// Stats summarizes one alert sync run.
type Stats struct {
	Repositories  int            `json:"repositories" yaml:"repositories"`
	Synced        int            `json:"synced" yaml:"synced"`
	Skipped       int            `json:"skipped" yaml:"skipped"`
	Errors        int            `json:"errors" yaml:"errors"`
	AlertsFetched int            `json:"alerts_fetched" yaml:"alerts_fetched"`
	AlertsCreated int            `json:"alerts_created" yaml:"alerts_created"`
	AlertsUpdated int            `json:"alerts_updated" yaml:"alerts_updated"`
	Unchanged     int            `json:"alerts_unchanged" yaml:"alerts_unchanged"`
	StoppedEarly  bool           `json:"stopped_early,omitempty" yaml:"stopped_early,omitempty"`
	DryRun        bool           `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Projection    findings.Stats `json:"projection" yaml:"projection"`
}

// Orchestrator runs the per-repository alert sync.
type Orchestrator struct {
	deps      DependencySource
	code      CodeSource
	store     store.Store
	projector RepositoryProjector
	cfg       Config
	logger    *zap.Logger
}

// New creates an orchestrator. projector may be nil when projection is never requested.
func New(deps DependencySource, code CodeSource, st store.Store, projector RepositoryProjector, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RateLimitFloor <= 0 {
		cfg.RateLimitFloor = DefaultRateLimitFloor
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		deps:      deps,
		code:      code,
		store:     st,
		projector: projector,
		cfg:       cfg,
		logger:    util.OrNop(logger),
	}
}

func (o *Orchestrator) candidates(ctx context.Context, opts Options) ([]*model.Repository, error) {
	if opts.RepositoryKey != "" {
		repo, found, err := o.store.GetRepository(ctx, opts.RepositoryKey)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("repository %s not found", opts.RepositoryKey)
		}
		return []*model.Repository{repo}, nil
	}

	repos, err := o.store.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	// never-synced first, then oldest sync first
	sort.SliceStable(repos, func(i, j int) bool {
		a, b := repos[i].LastAlertSync, repos[j].LastAlertSync
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		}
		return a.Before(*b)
	})
	return repos, nil
}

// Eligible reports whether a repository is due for a sync.
func (o *Orchestrator) Eligible(ctx context.Context, repoKey string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	cursor, found, err := o.store.GetCursor(ctx, repoKey)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	last := cursor.LastSuccessfulSync()
	return last == nil || o.cfg.Now().Sub(*last) >= o.cfg.Interval, nil
}

// quotaExhausted reports the first transport whose remaining quota fraction is below the floor.
func (o *Orchestrator) quotaExhausted() (string, float64, bool) {
	for _, t := range []interface{}{o.deps, o.code} {
		r, ok := t.(rateReporter)
		if !ok {
			continue
		}
		if f := r.Rate().RemainingFraction(); f < o.cfg.RateLimitFloor {
			return r.Rate().Name(), f, true
		}
	}
	return "", 0, false
}

// Run syncs every eligible repository, stopping early when the quota runs low. Repository
// failures are recorded on their cursor and counted.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Stats, error) {
	stats := Stats{DryRun: opts.DryRun}
	repos, err := o.candidates(ctx, opts)
	if err != nil {
		return stats, err
	}

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if opts.Limit > 0 && stats.Synced+stats.Errors >= opts.Limit {
			break
		}
		if name, fraction, low := o.quotaExhausted(); low {
			o.logger.Warn("Rate limit floor reached, stopping alert sync",
				zap.String("transport", name),
				zap.Float64("remaining_fraction", fraction),
				zap.Float64("floor", o.cfg.RateLimitFloor))
			stats.StoppedEarly = true
			break
		}

		stats.Repositories++
		eligible, err := o.Eligible(ctx, repo.Key, opts.Force)
		if err != nil {
			o.logger.Error("Error reading alert sync cursor", zap.String("repository", repo.FullName), zap.Error(err))
			stats.Errors++
			continue
		}
		if !eligible {
			o.logger.Debug("Skipping repository, synced recently", zap.String("repository", repo.FullName))
			stats.Skipped++
			continue
		}

		if err := o.syncRepository(ctx, repo, opts, &stats); err != nil {
			stats.Errors++
			o.logger.Error("Alert sync failed", zap.String("repository", repo.FullName), zap.Error(err))
			if !opts.DryRun {
				msg := util.Truncate(err.Error(), maxErrorLength)
				if rerr := o.store.RecordAlertSyncError(ctx, repo.Key, msg, o.cfg.Now().UTC()); rerr != nil {
					o.logger.Error("Failed to record alert sync error", zap.String("repository", repo.FullName), zap.Error(rerr))
				}
			}
			continue
		}
		stats.Synced++

		if opts.Project && !opts.DryRun && o.projector != nil {
			ps, err := o.projector.ProjectRepository(ctx, repo)
			stats.Projection.Add(ps)
			if err != nil {
				stats.Projection.Errors++
				o.logger.Warn("Finding projection failed", zap.String("repository", repo.FullName), zap.Error(err))
			}
		}
	}

	o.logger.Info("Alert sync completed",
		zap.Int("repositories", stats.Repositories),
		zap.Int("synced", stats.Synced),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Int("alerts_fetched", stats.AlertsFetched),
		zap.Bool("stopped_early", stats.StoppedEarly),
		zap.Bool("dry_run", stats.DryRun))
	return stats, nil
}

// fetch collects the three taxonomies. Any taxonomy failure fails the repository.
func (o *Orchestrator) fetch(ctx context.Context, owner, name string) (map[model.Taxonomy][]model.Alert, error) {
	out := map[model.Taxonomy][]model.Alert{}
	var err error
	if out[model.Dependabot], err = o.deps.DependabotAlerts(ctx, owner, name); err != nil {
		return nil, fmt.Errorf("dependabot alerts: %w", err)
	}
	if out[model.CodeQL], err = o.code.CodeQLAlerts(ctx, owner, name); err != nil {
		return nil, fmt.Errorf("codeql alerts: %w", err)
	}
	if out[model.SecretScanning], err = o.code.SecretScanningAlerts(ctx, owner, name); err != nil {
		return nil, fmt.Errorf("secret scanning alerts: %w", err)
	}
	return out, nil
}

func (o *Orchestrator) syncRepository(ctx context.Context, repo *model.Repository, opts Options, stats *Stats) error {
	owner, name, err := collector.ParseIdentity(repo.FullName)
	if err != nil {
		return err
	}
	fetched, err := o.fetch(ctx, owner, name)
	if err != nil {
		return err
	}

	now := o.cfg.Now().UTC()
	counts := model.AlertCounts{
		Dependabot:     len(fetched[model.Dependabot]),
		CodeQL:         len(fetched[model.CodeQL]),
		SecretScanning: len(fetched[model.SecretScanning]),
	}
	created, updated, unchanged := 0, 0, 0
	for _, taxonomy := range model.Taxonomies {
		for i := range fetched[taxonomy] {
			a := fetched[taxonomy][i]
			a.RepositoryKey = repo.Key
			a.Key = model.AlertKey(repo.Key, a.Taxonomy, a.Number)
			a.SyncedAt = now

			existing, found, err := o.store.GetAlert(ctx, repo.Key, a.Taxonomy, a.Number)
			if err != nil {
				return fmt.Errorf("reading %s alert %d: %w", a.Taxonomy, a.Number, err)
			}
			if found && existing.SameContent(a) {
				unchanged++
				continue
			}
			if !opts.DryRun {
				if _, err := o.store.UpsertAlert(ctx, &a); err != nil {
					return fmt.Errorf("storing %s alert %d: %w", a.Taxonomy, a.Number, err)
				}
			}
			if found {
				updated++
			} else {
				created++
			}
		}
	}

	if !opts.DryRun {
		if err := o.store.CompleteAlertSync(ctx, repo.Key, counts, now); err != nil {
			return fmt.Errorf("completing alert sync: %w", err)
		}
	}

	stats.AlertsFetched += counts.Total()
	stats.AlertsCreated += created
	stats.AlertsUpdated += updated
	stats.Unchanged += unchanged
	o.logger.Info("Synced alerts",
		zap.String("repository", repo.FullName),
		zap.Int("dependabot", counts.Dependabot),
		zap.Int("codeql", counts.CodeQL),
		zap.Int("secret_scanning", counts.SecretScanning),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("unchanged", unchanged))
	return nil
}
