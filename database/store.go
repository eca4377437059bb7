package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
)

// Store implements store.Store on ArangoDB. Every write that touches more than one document is
// a single AQL statement so it commits or fails as a whole.
type Store struct {
	db arangodb.Database
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an initialized connection.
func NewStore(conn DBConnection) *Store {
	return &Store{db: conn.Database}
}

func (s *Store) exec(ctx context.Context, query string, bindVars map[string]interface{}) error {
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return err
	}
	return cursor.Close()
}

// queryOne reads the first result of query into out.
func (s *Store) queryOne(ctx context.Context, query string, bindVars map[string]interface{}, out interface{}) (bool, error) {
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return false, err
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return false, nil
	}
	if _, err := cursor.ReadDocument(ctx, out); err != nil {
		return false, err
	}
	return true, nil
}

func queryAll[T any](ctx context.Context, db arangodb.Database, query string, bindVars map[string]interface{}) ([]*T, error) {
	cursor, err := db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var out []*T
	for cursor.HasMore() {
		doc := new(T)
		if _, err := cursor.ReadDocument(ctx, doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func getByKey[T any](ctx context.Context, s *Store, collection, key string) (*T, bool, error) {
	doc := new(T)
	found, err := s.queryOne(ctx, `FOR d IN @@col FILTER d._key == @key LIMIT 1 RETURN d`,
		map[string]interface{}{"@col": collection, "key": key}, doc)
	if err != nil || !found {
		return nil, false, err
	}
	return doc, true, nil
}

func findOne[T any](ctx context.Context, s *Store, collection, field, value string) (*T, bool, error) {
	doc := new(T)
	found, err := s.queryOne(ctx, `FOR d IN @@col FILTER d[@field] == @value LIMIT 1 RETURN d`,
		map[string]interface{}{"@col": collection, "field": field, "value": value}, doc)
	if err != nil || !found {
		return nil, false, err
	}
	return doc, true, nil
}

// GetRepository looks a repository up by key.
func (s *Store) GetRepository(ctx context.Context, key string) (*model.Repository, bool, error) {
	return getByKey[model.Repository](ctx, s, ColRepository, key)
}

// FindRepositoryByName looks a repository up by "owner/name".
func (s *Store) FindRepositoryByName(ctx context.Context, fullName string) (*model.Repository, bool, error) {
	return findOne[model.Repository](ctx, s, ColRepository, "full_name", fullName)
}

// FindRepositoryByProduct returns the repository owned by a product.
func (s *Store) FindRepositoryByProduct(ctx context.Context, productKey string) (*model.Repository, bool, error) {
	return findOne[model.Repository](ctx, s, ColRepository, "product_key", productKey)
}

// ListRepositories returns every repository ordered by key.
func (s *Store) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	return queryAll[model.Repository](ctx, s.db, `FOR r IN repository SORT r._key RETURN r`, nil)
}

// RFC3339Nano drops trailing zeros, so stored timestamps are ordered by their numeric value.
const latestSyncQuery = `
	FOR r IN repository
		FILTER r.last_synced_at != null
		SORT DATE_TIMESTAMP(r.last_synced_at) DESC
		LIMIT 1
		RETURN r.last_synced_at
`

// LatestRepositorySync returns the newest last_synced_at, or nil when nothing was synced.
func (s *Store) LatestRepositorySync(ctx context.Context) (*time.Time, error) {
	var latest time.Time
	found, err := s.queryOne(ctx, latestSyncQuery, nil, &latest)
	if err != nil || !found {
		return nil, err
	}
	return &latest, nil
}

// SaveRepository writes the product type, the product and the repository in one statement.
func (s *Store) SaveRepository(ctx context.Context, repo *model.Repository, product *model.Product, productType *model.ProductType) error {
	if repo == nil || repo.Key == "" {
		return fmt.Errorf("repository key is required")
	}
	productTypes := []interface{}{}
	if productType != nil {
		productTypes = append(productTypes, productType)
	}
	products := []interface{}{}
	if product != nil {
		products = append(products, product)
	}

	query := `
		LET types = (
			FOR d IN @productTypes
				UPSERT { _key: d._key } INSERT d REPLACE d IN product_type
				RETURN NEW._key
		)
		LET products = (
			FOR d IN @products
				UPSERT { _key: d._key } INSERT d REPLACE d IN product
				RETURN NEW._key
		)
		UPSERT { _key: @repository._key } INSERT @repository REPLACE @repository IN repository
		RETURN NEW._key
	`
	err := s.exec(ctx, query, map[string]interface{}{
		"productTypes": productTypes,
		"products":     products,
		"repository":   repo,
	})
	if err != nil {
		return fmt.Errorf("saving repository %s: %w", repo.FullName, err)
	}
	return nil
}

// SaveFindingCounts replaces the cached finding snapshot of a repository.
func (s *Store) SaveFindingCounts(ctx context.Context, repoKey string, counts model.FindingCounts) error {
	return s.exec(ctx, `UPDATE { _key: @key } WITH { finding_counts: @counts } IN repository`,
		map[string]interface{}{"key": repoKey, "counts": counts})
}

// GetProduct looks a product up by key.
func (s *Store) GetProduct(ctx context.Context, key string) (*model.Product, bool, error) {
	return getByKey[model.Product](ctx, s, ColProduct, key)
}

// GetProductType looks a product type up by key.
func (s *Store) GetProductType(ctx context.Context, key string) (*model.ProductType, bool, error) {
	return getByKey[model.ProductType](ctx, s, ColProductType, key)
}

// GetAlert looks an alert up by its dedup triple.
func (s *Store) GetAlert(ctx context.Context, repoKey string, taxonomy model.Taxonomy, number int) (*model.Alert, bool, error) {
	return getByKey[model.Alert](ctx, s, ColAlert, model.AlertKey(repoKey, taxonomy, number))
}

// UpsertAlert creates or overwrites an alert, keeping its finding link.
func (s *Store) UpsertAlert(ctx context.Context, alert *model.Alert) (bool, error) {
	if alert.RepositoryKey == "" {
		return false, fmt.Errorf("alert %d has no repository", alert.Number)
	}
	doc := *alert
	doc.Key = model.AlertKey(alert.RepositoryKey, alert.Taxonomy, alert.Number)
	if doc.ObjType == "" {
		doc.ObjType = "Alert"
	}

	query := `
		LET existing = DOCUMENT("alert", @key)
		UPSERT { _key: @key }
			INSERT @alert
			REPLACE MERGE(@alert, { finding_key: @alert.finding_key || OLD.finding_key })
			IN alert
		RETURN existing == null
	`
	var created bool
	if _, err := s.queryOne(ctx, query, map[string]interface{}{"key": doc.Key, "alert": doc}, &created); err != nil {
		return false, fmt.Errorf("saving alert %s: %w", doc.Key, err)
	}
	return created, nil
}

// ListAlerts returns the alerts of a repository ordered by taxonomy and number.
func (s *Store) ListAlerts(ctx context.Context, repoKey string) ([]*model.Alert, error) {
	return queryAll[model.Alert](ctx, s.db, `
		FOR a IN alert
			FILTER a.repository_key == @repo
			SORT a.taxonomy, a.number
			RETURN a
	`, map[string]interface{}{"repo": repoKey})
}

// GetCursor returns the sync cursor of a repository.
func (s *Store) GetCursor(ctx context.Context, repoKey string) (*model.AlertSyncCursor, bool, error) {
	return getByKey[model.AlertSyncCursor](ctx, s, ColAlertCursor, repoKey)
}

// CompleteAlertSync writes the cursor and the repository counters in one statement.
func (s *Store) CompleteAlertSync(ctx context.Context, repoKey string, counts model.AlertCounts, at time.Time) error {
	cursor := model.NewAlertSyncCursor(repoKey)
	cursor.MarkSucceeded(counts, at)

	query := `
		LET c = (
			UPSERT { _key: @key } INSERT @cursor REPLACE @cursor IN alert_cursor
			RETURN NEW._key
		)
		FOR r IN repository
			FILTER r._key == @key
			UPDATE r WITH { alert_counts: @counts, last_alert_sync: @at } IN repository
	`
	return s.exec(ctx, query, map[string]interface{}{"key": repoKey, "cursor": cursor, "counts": counts, "at": at})
}

// RecordAlertSyncError stores the last failure on the cursor.
func (s *Store) RecordAlertSyncError(ctx context.Context, repoKey, message string, at time.Time) error {
	cursor := model.NewAlertSyncCursor(repoKey)
	cursor.LastSyncError = message
	cursor.LastSyncErrorAt = &at

	query := `
		UPSERT { _key: @key }
			INSERT @cursor
			UPDATE { last_sync_error: @message, last_sync_error_at: @at }
			IN alert_cursor
	`
	return s.exec(ctx, query, map[string]interface{}{"key": repoKey, "cursor": cursor, "message": message, "at": at})
}

// EnsureEngagement returns the stored engagement with e's key, creating it from e if absent.
func (s *Store) EnsureEngagement(ctx context.Context, e *model.Engagement) (*model.Engagement, error) {
	out := new(model.Engagement)
	if _, err := s.queryOne(ctx, `UPSERT { _key: @doc._key } INSERT @doc UPDATE {} IN engagement RETURN NEW`,
		map[string]interface{}{"doc": e}, out); err != nil {
		return nil, fmt.Errorf("saving engagement %s: %w", e.Key, err)
	}
	return out, nil
}

// EnsureTest returns the stored test with t's key, creating it from t if absent.
func (s *Store) EnsureTest(ctx context.Context, t *model.Test) (*model.Test, error) {
	out := new(model.Test)
	if _, err := s.queryOne(ctx, `UPSERT { _key: @doc._key } INSERT @doc UPDATE {} IN test RETURN NEW`,
		map[string]interface{}{"doc": t}, out); err != nil {
		return nil, fmt.Errorf("saving test %s: %w", t.Key, err)
	}
	return out, nil
}

// GetEngagement looks an engagement up by key.
func (s *Store) GetEngagement(ctx context.Context, key string) (*model.Engagement, bool, error) {
	return getByKey[model.Engagement](ctx, s, ColEngagement, key)
}

// GetTest looks a test up by key.
func (s *Store) GetTest(ctx context.Context, key string) (*model.Test, bool, error) {
	return getByKey[model.Test](ctx, s, ColTest, key)
}

// GetFinding looks a finding up by key.
func (s *Store) GetFinding(ctx context.Context, key string) (*model.Finding, bool, error) {
	return getByKey[model.Finding](ctx, s, ColFinding, key)
}

// FindFindingByUniqueID looks a finding up by its dedup key.
func (s *Store) FindFindingByUniqueID(ctx context.Context, uniqueID string) (*model.Finding, bool, error) {
	return findOne[model.Finding](ctx, s, ColFinding, "unique_id_from_tool", uniqueID)
}

// SaveProjection writes the finding and links the alert to it in one statement. The unique
// index on unique_id_from_tool rejects a second finding for the same alert.
func (s *Store) SaveProjection(ctx context.Context, finding *model.Finding, alertKey string) error {
	query := `
		LET f = (
			UPSERT { _key: @finding._key } INSERT @finding REPLACE @finding IN finding
			RETURN NEW._key
		)
		FOR a IN alert
			FILTER a._key == @alertKey
			UPDATE a WITH { finding_key: @finding._key } IN alert
	`
	if err := s.exec(ctx, query, map[string]interface{}{"finding": finding, "alertKey": alertKey}); err != nil {
		return fmt.Errorf("saving finding %s: %w", finding.Key, err)
	}
	return nil
}

// findingFilter renders filter as AQL FILTER clauses over the loop variable f.
func findingFilter(filter store.FindingFilter) (string, map[string]interface{}) {
	var clauses []string
	bindVars := map[string]interface{}{}

	if len(filter.Keys) > 0 {
		clauses = append(clauses, "FILTER f._key IN @keys")
		bindVars["keys"] = filter.Keys
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "FILTER f.active == true")
	}
	if filter.WithVulnID {
		clauses = append(clauses, `FILTER (f.vuln_id_from_tool != null AND f.vuln_id_from_tool != "") OR (f.cve != null AND f.cve != "")`)
	}
	if filter.ProductKey != "" {
		clauses = append(clauses,
			"LET productKey = FIRST(FOR t IN test FILTER t._key == f.test_key FOR e IN engagement FILTER e._key == t.engagement_key RETURN e.product_key)",
			"FILTER productKey == @productKey")
		bindVars["productKey"] = filter.ProductKey
	}
	return strings.Join(clauses, "\n"), bindVars
}

// ListFindings returns the findings matching filter ordered by key.
func (s *Store) ListFindings(ctx context.Context, filter store.FindingFilter) ([]*model.Finding, error) {
	clauses, bindVars := findingFilter(filter)
	limit := ""
	if filter.Limit > 0 {
		limit = "LIMIT @limit"
		bindVars["limit"] = filter.Limit
	}
	query := fmt.Sprintf("FOR f IN finding\n%s\nSORT f._key\n%s\nRETURN f", clauses, limit)
	return queryAll[model.Finding](ctx, s.db, query, bindVars)
}

// UpdateExploitScore writes the score fields of one finding.
func (s *Store) UpdateExploitScore(ctx context.Context, key string, score, percentile float64) error {
	return s.exec(ctx, `UPDATE { _key: @key } WITH { epss_score: @score, epss_percentile: @percentile } IN finding`,
		map[string]interface{}{"key": key, "score": score, "percentile": percentile})
}

// UpdateTriage writes the triage fields of one finding.
func (s *Store) UpdateTriage(ctx context.Context, key string, decision model.TriageDecision, reason string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE { _key: @key }
			WITH { auto_triage_decision: @decision, auto_triage_reason: @reason, auto_triaged_at: @at }
			IN finding
	`, map[string]interface{}{"key": key, "decision": decision, "reason": reason, "at": at})
}

// ResetTriage returns matching findings to PENDING and reports how many were touched.
func (s *Store) ResetTriage(ctx context.Context, filter store.FindingFilter) (int, error) {
	clauses, bindVars := findingFilter(filter)
	bindVars["pending"] = model.DecisionPending
	query := fmt.Sprintf(`
		LET reset = (
			FOR f IN finding
			%s
			UPDATE f WITH { auto_triage_decision: @pending, auto_triage_reason: "", auto_triaged_at: null }
				IN finding OPTIONS { keepNull: false }
			RETURN 1
		)
		RETURN LENGTH(reset)
	`, clauses)
	var n int
	if _, err := s.queryOne(ctx, query, bindVars, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountTriageDecisions counts matching findings per stored decision.
func (s *Store) CountTriageDecisions(ctx context.Context, filter store.FindingFilter) (map[model.TriageDecision]int, error) {
	clauses, bindVars := findingFilter(filter)
	query := fmt.Sprintf(`
		FOR f IN finding
		%s
		COLLECT decision = f.auto_triage_decision WITH COUNT INTO n
		RETURN { decision: decision, count: n }
	`, clauses)

	type row struct {
		Decision *model.TriageDecision `json:"decision"`
		Count    int                   `json:"count"`
	}
	rows, err := queryAll[row](ctx, s.db, query, bindVars)
	if err != nil {
		return nil, err
	}
	out := map[model.TriageDecision]int{}
	for _, r := range rows {
		d := model.DecisionPending
		if r.Decision != nil && *r.Decision != "" {
			d = *r.Decision
		}
		out[d] += r.Count
	}
	return out, nil
}
