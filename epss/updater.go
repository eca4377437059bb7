package epss

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/util"
	"go.uber.org/zap"
)

const (
	// DefaultBatchSize is the number of identifiers sent per lookup.
	DefaultBatchSize = MaxBatchSize
	// DefaultSignificantChange is the score delta that flags a finding for re-triage.
	DefaultSignificantChange = 0.2

	scoreEpsilon = 1e-9
)

// ScoreSource looks up scores for a batch of identifiers.
type ScoreSource interface {
	Scores(ctx context.Context, cves []string) (map[string]Score, error)
}

// Retriager re-evaluates the triage decision of findings.
type Retriager interface {
	Retriage(ctx context.Context, findingKeys []string) error
}

// Config tunes the updater.
type Config struct {
	BatchSize         int
	SignificantChange float64
}

// Options scopes one update run. Zero values select every finding with an identifier.
type Options struct {
	FindingKeys   []string
	ProductKey    string
	ActiveOnly    bool
	TriggerTriage bool
}

// Stats summarizes one update run.
type Stats struct {
	TotalFindings      int      `json:"total_findings" yaml:"total_findings"`
	FindingsWithCVE    int      `json:"findings_with_cve" yaml:"findings_with_cve"`
	UniqueCVEs         int      `json:"unique_cves" yaml:"unique_cves"`
	ScoresFetched      int      `json:"scores_fetched" yaml:"scores_fetched"`
	FindingsUpdated    int      `json:"findings_updated" yaml:"findings_updated"`
	FindingsUnchanged  int      `json:"findings_unchanged" yaml:"findings_unchanged"`
	FindingsNewScore   int      `json:"findings_new_score" yaml:"findings_new_score"`
	SignificantChanges int      `json:"significant_changes" yaml:"significant_changes"`
	Retriaged          int      `json:"retriaged" yaml:"retriaged"`
	Errors             int      `json:"errors" yaml:"errors"`
	Flagged            []string `json:"flagged,omitempty" yaml:"flagged,omitempty"`
}

// Coverage reports how many findings carry an identifier and how many already have a score.
type Coverage struct {
	Findings  int     `json:"findings" yaml:"findings"`
	WithCVE   int     `json:"with_cve" yaml:"with_cve"`
	WithScore int     `json:"with_score" yaml:"with_score"`
	Percent   float64 `json:"percent" yaml:"percent"`
}

// ExtractCVE takes the first token of an identifier field and returns it upper-cased when it
// is a CVE identifier.
func ExtractCVE(field string) string {
	field = strings.TrimSpace(field)
	if i := strings.IndexAny(field, ", "); i >= 0 {
		field = field[:i]
	}
	id := strings.ToUpper(field)
	if !strings.HasPrefix(id, "CVE-") {
		return ""
	}
	return id
}

func findingCVE(f *model.Finding) string {
	if id := ExtractCVE(f.VulnIDFromTool); id != "" {
		return id
	}
	return ExtractCVE(f.CVE)
}

// Updater refreshes exploit scores on findings.
type Updater struct {
	store     store.FindingStore
	scores    ScoreSource
	retriager Retriager
	cfg       Config
	logger    *zap.Logger
}

// NewUpdater creates an updater. retriager may be nil when re-triage is never requested.
// BatchSize is clamped to MaxBatchSize.
func NewUpdater(st store.FindingStore, scores ScoreSource, retriager Retriager, cfg Config, logger *zap.Logger) *Updater {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		util.OrNop(logger).Warn("EPSS batch size above the API page size, clamping",
			zap.Int("requested", cfg.BatchSize), zap.Int("max", MaxBatchSize))
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.SignificantChange <= 0 {
		cfg.SignificantChange = DefaultSignificantChange
	}
	return &Updater{store: st, scores: scores, retriager: retriager, cfg: cfg, logger: util.OrNop(logger)}
}

// Update fetches scores for the selected findings and writes the ones that changed. Findings
// whose score moved by at least the significant change are flagged and, when requested,
// re-triaged.
func (u *Updater) Update(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats
	list, err := u.store.ListFindings(ctx, store.FindingFilter{
		Keys:       opts.FindingKeys,
		ProductKey: opts.ProductKey,
		ActiveOnly: opts.ActiveOnly,
		WithVulnID: true,
	})
	if err != nil {
		return stats, err
	}
	stats.TotalFindings = len(list)

	byCVE := map[string][]*model.Finding{}
	for _, f := range list {
		if id := findingCVE(f); id != "" {
			byCVE[id] = append(byCVE[id], f)
			stats.FindingsWithCVE++
		}
	}
	cves := make([]string, 0, len(byCVE))
	for id := range byCVE {
		cves = append(cves, id)
	}
	sort.Strings(cves)
	stats.UniqueCVEs = len(cves)

	for start := 0; start < len(cves); start += u.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := start + u.cfg.BatchSize
		if end > len(cves) {
			end = len(cves)
		}
		batch := cves[start:end]

		scores, err := u.scores.Scores(ctx, batch)
		if err != nil {
			stats.Errors++
			u.logger.Error("EPSS lookup failed", zap.Int("batch_size", len(batch)), zap.Error(err))
			continue
		}
		stats.ScoresFetched += len(scores)

		for _, id := range batch {
			score, ok := scores[id]
			if !ok {
				continue
			}
			for _, f := range byCVE[id] {
				u.apply(ctx, f, score, &stats)
			}
		}
	}

	if opts.TriggerTriage && len(stats.Flagged) > 0 {
		if u.retriager == nil {
			u.logger.Warn("Re-triage requested but no triage engine configured")
		} else if err := u.retriager.Retriage(ctx, stats.Flagged); err != nil {
			stats.Errors++
			u.logger.Error("Re-triage failed", zap.Int("findings", len(stats.Flagged)), zap.Error(err))
		} else {
			stats.Retriaged = len(stats.Flagged)
		}
	}

	u.logger.Info("EPSS update completed",
		zap.Int("total_findings", stats.TotalFindings),
		zap.Int("unique_cves", stats.UniqueCVEs),
		zap.Int("scores_fetched", stats.ScoresFetched),
		zap.Int("findings_updated", stats.FindingsUpdated),
		zap.Int("findings_unchanged", stats.FindingsUnchanged),
		zap.Int("significant_changes", stats.SignificantChanges),
		zap.Int("errors", stats.Errors))
	return stats, nil
}

func (u *Updater) apply(ctx context.Context, f *model.Finding, score Score, stats *Stats) {
	if f.EPSSScore != nil && f.EPSSPercentile != nil &&
		*f.EPSSScore == score.EPSS && *f.EPSSPercentile == score.Percentile {
		stats.FindingsUnchanged++
		return
	}

	old := 0.0
	if f.EPSSScore != nil {
		old = *f.EPSSScore
	} else {
		stats.FindingsNewScore++
	}
	if err := u.store.UpdateExploitScore(ctx, f.Key, score.EPSS, score.Percentile); err != nil {
		stats.Errors++
		u.logger.Warn("Failed to store EPSS score", zap.String("finding", f.Key), zap.Error(err))
		return
	}
	stats.FindingsUpdated++

	if math.Abs(score.EPSS-old) >= u.cfg.SignificantChange-scoreEpsilon {
		stats.SignificantChanges++
		stats.Flagged = append(stats.Flagged, f.Key)
		u.logger.Info("Significant EPSS change",
			zap.String("finding", f.Key),
			zap.String("cve", score.CVE),
			zap.Float64("old", old),
			zap.Float64("new", score.EPSS))
	}
}

// Coverage counts identifier and score coverage over every finding.
func (u *Updater) Coverage(ctx context.Context) (Coverage, error) {
	list, err := u.store.ListFindings(ctx, store.FindingFilter{})
	if err != nil {
		return Coverage{}, err
	}
	c := Coverage{Findings: len(list)}
	for _, f := range list {
		if findingCVE(f) == "" {
			continue
		}
		c.WithCVE++
		if f.EPSSScore != nil {
			c.WithScore++
		}
	}
	if c.WithCVE > 0 {
		c.Percent = math.Round(float64(c.WithScore)/float64(c.WithCVE)*10000) / 100
	}
	return c, nil
}
