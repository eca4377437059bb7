// Package store defines the persistence contracts used by the collector, the alert sync,
// the finding projector, the exploit score updater and the triage engine.
package store

import (
	"context"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
)

// FindingFilter narrows ListFindings. Zero values mean "no restriction".
type FindingFilter struct {
	Keys       []string
	ProductKey string
	ActiveOnly bool
	WithVulnID bool
	Limit      int
}

// RepositoryStore persists repository records together with their owning product.
type RepositoryStore interface {
	GetRepository(ctx context.Context, key string) (*model.Repository, bool, error)
	FindRepositoryByName(ctx context.Context, fullName string) (*model.Repository, bool, error)
	FindRepositoryByProduct(ctx context.Context, productKey string) (*model.Repository, bool, error)
	ListRepositories(ctx context.Context) ([]*model.Repository, error)
	// LatestRepositorySync returns the most recent LastSyncedAt across all repositories.
	LatestRepositorySync(ctx context.Context) (*time.Time, error)
	// SaveRepository writes the product type, the product and the repository together.
	SaveRepository(ctx context.Context, repo *model.Repository, product *model.Product, productType *model.ProductType) error
	SaveFindingCounts(ctx context.Context, repoKey string, counts model.FindingCounts) error
}

// ProductStore reads the owning contexts of repositories.
type ProductStore interface {
	GetProduct(ctx context.Context, key string) (*model.Product, bool, error)
	GetProductType(ctx context.Context, key string) (*model.ProductType, bool, error)
}

// AlertStore is the alert mirror and its per-repository sync cursors.
type AlertStore interface {
	GetAlert(ctx context.Context, repoKey string, taxonomy model.Taxonomy, number int) (*model.Alert, bool, error)
	// UpsertAlert creates or overwrites the alert identified by its dedup triple. The link to
	// a projected finding survives the overwrite.
	UpsertAlert(ctx context.Context, alert *model.Alert) (created bool, err error)
	ListAlerts(ctx context.Context, repoKey string) ([]*model.Alert, error)
	GetCursor(ctx context.Context, repoKey string) (*model.AlertSyncCursor, bool, error)
	// CompleteAlertSync marks all taxonomies synced and refreshes the repository alert counters.
	CompleteAlertSync(ctx context.Context, repoKey string, counts model.AlertCounts, at time.Time) error
	RecordAlertSyncError(ctx context.Context, repoKey, message string, at time.Time) error
}

// FindingStore holds the engagement/test containers, the findings and their triage fields.
type FindingStore interface {
	EnsureEngagement(ctx context.Context, e *model.Engagement) (*model.Engagement, error)
	EnsureTest(ctx context.Context, t *model.Test) (*model.Test, error)
	GetEngagement(ctx context.Context, key string) (*model.Engagement, bool, error)
	GetTest(ctx context.Context, key string) (*model.Test, bool, error)
	GetFinding(ctx context.Context, key string) (*model.Finding, bool, error)
	FindFindingByUniqueID(ctx context.Context, uniqueID string) (*model.Finding, bool, error)
	// SaveProjection writes the finding and links the source alert to it.
	SaveProjection(ctx context.Context, finding *model.Finding, alertKey string) error
	ListFindings(ctx context.Context, filter FindingFilter) ([]*model.Finding, error)
	UpdateExploitScore(ctx context.Context, key string, score, percentile float64) error
	UpdateTriage(ctx context.Context, key string, decision model.TriageDecision, reason string, at time.Time) error
	ResetTriage(ctx context.Context, filter FindingFilter) (int, error)
	CountTriageDecisions(ctx context.Context, filter FindingFilter) (map[model.TriageDecision]int, error)
}

// Store is the complete persistence surface.
type Store interface {
	RepositoryStore
	ProductStore
	AlertStore
	FindingStore
}
