package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
)

// MemoryStore keeps everything in process memory. Records are stored and returned by value,
// so changing a returned record's fields does not change the store. The copies are shallow:
// pointer, slice and map fields still share their targets with the caller, and callers must
// treat those as read-only once saved.
type MemoryStore struct {
	mu           sync.RWMutex
	repositories map[string]model.Repository
	products     map[string]model.Product
	productTypes map[string]model.ProductType
	alerts       map[string]model.Alert
	cursors      map[string]model.AlertSyncCursor
	engagements  map[string]model.Engagement
	tests        map[string]model.Test
	findings     map[string]model.Finding
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		repositories: map[string]model.Repository{},
		products:     map[string]model.Product{},
		productTypes: map[string]model.ProductType{},
		alerts:       map[string]model.Alert{},
		cursors:      map[string]model.AlertSyncCursor{},
		engagements:  map[string]model.Engagement{},
		tests:        map[string]model.Test{},
		findings:     map[string]model.Finding{},
	}
}

var _ Store = (*MemoryStore)(nil)

// GetRepository looks a repository up by key.
func (s *MemoryStore) GetRepository(_ context.Context, key string) (*model.Repository, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.repositories[key]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

// FindRepositoryByName looks a repository up by "owner/name".
func (s *MemoryStore) FindRepositoryByName(_ context.Context, fullName string) (*model.Repository, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.repositories {
		if r.FullName == fullName {
			return &r, true, nil
		}
	}
	return nil, false, nil
}

// FindRepositoryByProduct returns the repository owned by a product.
func (s *MemoryStore) FindRepositoryByProduct(_ context.Context, productKey string) (*model.Repository, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.repositories {
		if r.ProductKey == productKey {
			return &r, true, nil
		}
	}
	return nil, false, nil
}

// ListRepositories returns every repository ordered by key.
func (s *MemoryStore) ListRepositories(_ context.Context) ([]*model.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Repository, 0, len(s.repositories))
	for _, r := range s.repositories {
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// LatestRepositorySync returns the newest LastSyncedAt, or nil when nothing was synced.
func (s *MemoryStore) LatestRepositorySync(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *time.Time
	for _, r := range s.repositories {
		if r.LastSyncedAt != nil && (latest == nil || r.LastSyncedAt.After(*latest)) {
			t := *r.LastSyncedAt
			latest = &t
		}
	}
	return latest, nil
}

// SaveRepository stores the product type, product and repository under one lock.
func (s *MemoryStore) SaveRepository(_ context.Context, repo *model.Repository, product *model.Product, productType *model.ProductType) error {
	if repo == nil || repo.Key == "" {
		return fmt.Errorf("repository key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if productType != nil {
		s.productTypes[productType.Key] = *productType
	}
	if product != nil {
		s.products[product.Key] = *product
	}
	s.repositories[repo.Key] = *repo
	return nil
}

// SaveFindingCounts replaces the cached finding snapshot of a repository.
func (s *MemoryStore) SaveFindingCounts(_ context.Context, repoKey string, counts model.FindingCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repositories[repoKey]
	if !ok {
		return fmt.Errorf("repository %s not found", repoKey)
	}
	r.FindingCounts = counts
	s.repositories[repoKey] = r
	return nil
}

// GetProduct looks a product up by key.
func (s *MemoryStore) GetProduct(_ context.Context, key string) (*model.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[key]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

// GetProductType looks a product type up by key.
func (s *MemoryStore) GetProductType(_ context.Context, key string) (*model.ProductType, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pt, ok := s.productTypes[key]
	if !ok {
		return nil, false, nil
	}
	return &pt, true, nil
}

// GetAlert looks an alert up by its dedup triple.
func (s *MemoryStore) GetAlert(_ context.Context, repoKey string, taxonomy model.Taxonomy, number int) (*model.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[model.AlertKey(repoKey, taxonomy, number)]
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

// UpsertAlert creates or overwrites an alert, keeping its finding link.
func (s *MemoryStore) UpsertAlert(_ context.Context, alert *model.Alert) (bool, error) {
	if alert.RepositoryKey == "" {
		return false, fmt.Errorf("alert %d has no repository", alert.Number)
	}
	key := model.AlertKey(alert.RepositoryKey, alert.Taxonomy, alert.Number)
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *alert
	a.Key = key
	existing, found := s.alerts[key]
	if found && a.FindingKey == "" {
		a.FindingKey = existing.FindingKey
	}
	s.alerts[key] = a
	return !found, nil
}

// ListAlerts returns the alerts of a repository ordered by taxonomy and number.
func (s *MemoryStore) ListAlerts(_ context.Context, repoKey string) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Alert
	for _, a := range s.alerts {
		if a.RepositoryKey == repoKey {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Taxonomy != out[j].Taxonomy {
			return out[i].Taxonomy < out[j].Taxonomy
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

// GetCursor returns the sync cursor of a repository.
func (s *MemoryStore) GetCursor(_ context.Context, repoKey string) (*model.AlertSyncCursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[repoKey]
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

// CompleteAlertSync updates the cursor and the repository counters under one lock.
func (s *MemoryStore) CompleteAlertSync(_ context.Context, repoKey string, counts model.AlertCounts, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[repoKey]
	if !ok {
		c = *model.NewAlertSyncCursor(repoKey)
	}
	c.MarkSucceeded(counts, at)
	s.cursors[repoKey] = c

	if r, ok := s.repositories[repoKey]; ok {
		r.AlertCounts = counts
		r.LastAlertSync = &at
		s.repositories[repoKey] = r
	}
	return nil
}

// RecordAlertSyncError stores the last failure on the cursor.
func (s *MemoryStore) RecordAlertSyncError(_ context.Context, repoKey, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[repoKey]
	if !ok {
		c = *model.NewAlertSyncCursor(repoKey)
	}
	c.LastSyncError = message
	c.LastSyncErrorAt = &at
	s.cursors[repoKey] = c
	return nil
}

// EnsureEngagement returns the stored engagement with e's key, creating it from e if absent.
func (s *MemoryStore) EnsureEngagement(_ context.Context, e *model.Engagement) (*model.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.engagements[e.Key]; ok {
		return &existing, nil
	}
	s.engagements[e.Key] = *e
	created := *e
	return &created, nil
}

// EnsureTest returns the stored test with t's key, creating it from t if absent.
func (s *MemoryStore) EnsureTest(_ context.Context, t *model.Test) (*model.Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tests[t.Key]; ok {
		return &existing, nil
	}
	s.tests[t.Key] = *t
	created := *t
	return &created, nil
}

// GetEngagement looks an engagement up by key.
func (s *MemoryStore) GetEngagement(_ context.Context, key string) (*model.Engagement, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engagements[key]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

// GetTest looks a test up by key.
func (s *MemoryStore) GetTest(_ context.Context, key string) (*model.Test, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tests[key]
	if !ok {
		return nil, false, nil
	}
	return &t, true, nil
}

// GetFinding looks a finding up by key.
func (s *MemoryStore) GetFinding(_ context.Context, key string) (*model.Finding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.findings[key]
	if !ok {
		return nil, false, nil
	}
	return &f, true, nil
}

// FindFindingByUniqueID looks a finding up by its dedup key.
func (s *MemoryStore) FindFindingByUniqueID(_ context.Context, uniqueID string) (*model.Finding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.findings {
		if f.UniqueIDFromTool == uniqueID {
			return &f, true, nil
		}
	}
	return nil, false, nil
}

// SaveProjection stores the finding and links the alert to it under one lock.
func (s *MemoryStore) SaveProjection(_ context.Context, finding *model.Finding, alertKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, f := range s.findings {
		if k != finding.Key && f.UniqueIDFromTool == finding.UniqueIDFromTool {
			return fmt.Errorf("finding %s already holds unique id %s", k, finding.UniqueIDFromTool)
		}
	}
	s.findings[finding.Key] = *finding
	if a, ok := s.alerts[alertKey]; ok {
		a.FindingKey = finding.Key
		s.alerts[alertKey] = a
	}
	return nil
}

func (s *MemoryStore) productOf(f model.Finding) string {
	t, ok := s.tests[f.TestKey]
	if !ok {
		return ""
	}
	e, ok := s.engagements[t.EngagementKey]
	if !ok {
		return ""
	}
	return e.ProductKey
}

func (s *MemoryStore) matches(f model.Finding, filter FindingFilter) bool {
	if len(filter.Keys) > 0 {
		found := false
		for _, k := range filter.Keys {
			if k == f.Key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.ActiveOnly && !f.Active {
		return false
	}
	if filter.WithVulnID && f.VulnIDFromTool == "" && f.CVE == "" {
		return false
	}
	if filter.ProductKey != "" && s.productOf(f) != filter.ProductKey {
		return false
	}
	return true
}

// ListFindings returns the findings matching filter ordered by key.
func (s *MemoryStore) ListFindings(_ context.Context, filter FindingFilter) ([]*model.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Finding
	for _, f := range s.findings {
		if s.matches(f, filter) {
			f := f
			out = append(out, &f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateExploitScore writes the score fields of one finding.
func (s *MemoryStore) UpdateExploitScore(_ context.Context, key string, score, percentile float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.findings[key]
	if !ok {
		return fmt.Errorf("finding %s not found", key)
	}
	f.EPSSScore = &score
	f.EPSSPercentile = &percentile
	s.findings[key] = f
	return nil
}

// UpdateTriage writes the triage fields of one finding.
func (s *MemoryStore) UpdateTriage(_ context.Context, key string, decision model.TriageDecision, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.findings[key]
	if !ok {
		return fmt.Errorf("finding %s not found", key)
	}
	f.AutoTriageDecision = decision
	f.AutoTriageReason = reason
	f.AutoTriagedAt = &at
	s.findings[key] = f
	return nil
}

// ResetTriage returns matching findings to PENDING and reports how many were touched.
func (s *MemoryStore) ResetTriage(_ context.Context, filter FindingFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, f := range s.findings {
		if !s.matches(f, filter) {
			continue
		}
		f.AutoTriageDecision = model.DecisionPending
		f.AutoTriageReason = ""
		f.AutoTriagedAt = nil
		s.findings[k] = f
		n++
	}
	return n, nil
}

// CountTriageDecisions counts matching findings per stored decision.
func (s *MemoryStore) CountTriageDecisions(_ context.Context, filter FindingFilter) (map[model.TriageDecision]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[model.TriageDecision]int{}
	for _, f := range s.findings {
		if !s.matches(f, filter) {
			continue
		}
		d := f.AutoTriageDecision
		if d == "" {
			d = model.DecisionPending
		}
		out[d]++
	}
	return out, nil
}
