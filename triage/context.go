// Package triage assigns an auto-triage decision to findings by scanning an ordered rule list
// over the finding, its product and its repository.
package triage

import (
	"context"
	"fmt"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
)

// Subject is everything a rule may look at for one finding. Product is nil when the
// test/engagement/product chain of the finding is broken; Repository is nil when the product
// has no tracked repository.
type Subject struct {
	Finding    *model.Finding
	Product    *model.Product
	Repository *model.Repository
}

// Available reports whether the owning product was resolved.
func (s Subject) Available() bool {
	return s.Product != nil
}

// Tier returns the criticality tier of the owning product, or the empty tier when the context
// is unavailable.
func (s Subject) Tier() model.Tier {
	if s.Product == nil {
		return ""
	}
	return model.TierFromCriticality(s.Product.BusinessCriticality)
}

// EPSS returns the exploit score and whether one is present.
func (s Subject) EPSS() (float64, bool) {
	if s.Finding == nil || s.Finding.EPSSScore == nil {
		return 0, false
	}
	return *s.Finding.EPSSScore, true
}

// EPSSAtLeast reports a present score of at least threshold.
func (s Subject) EPSSAtLeast(threshold float64) bool {
	v, ok := s.EPSS()
	return ok && v >= threshold
}

// EPSSBelow reports a present score below threshold. A missing score is never low.
func (s Subject) EPSSBelow(threshold float64) bool {
	v, ok := s.EPSS()
	return ok && v < threshold
}

// EPSSBetween reports a present score in [low, high).
func (s Subject) EPSSBetween(low, high float64) bool {
	v, ok := s.EPSS()
	return ok && v >= low && v < high
}

// NoEPSS reports a finding without a score.
func (s Subject) NoEPSS() bool {
	_, ok := s.EPSS()
	return !ok
}

func (s Subject) severity() string {
	if s.Finding == nil {
		return ""
	}
	return s.Finding.Severity
}

// CriticalOrHigh reports Critical or High severity.
func (s Subject) CriticalOrHigh() bool {
	sev := s.severity()
	return sev == model.SeverityCritical || sev == model.SeverityHigh
}

// LowOrInfo reports Low or Info severity.
func (s Subject) LowOrInfo() bool {
	sev := s.severity()
	return sev == model.SeverityLow || sev == model.SeverityInfo
}

// Informational reports Info severity.
func (s Subject) Informational() bool {
	return s.severity() == model.SeverityInfo
}

// Production reports cluster manifests, deployment environments or releases on the repository.
func (s Subject) Production() bool {
	return s.Repository != nil && s.Repository.Signals.ProductionSignal()
}

// Active reports recent commits, recent pull requests and several contributors.
func (s Subject) Active() bool {
	return s.Repository != nil && s.Repository.Signals.ActiveDevelopment()
}

// Dormant reports more than days without a commit. An unknown commit age is never dormant.
func (s Subject) Dormant(days int) bool {
	if s.Repository == nil || s.Repository.DaysSinceLastCommit == nil {
		return false
	}
	return *s.Repository.DaysSinceLastCommit > days
}

// Resolver loads the owning context of findings.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver over st.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve walks test, engagement and product of the finding and attaches the tracked
// repository of the product. A missing link yields a Subject whose Available is false;
// only storage failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, f *model.Finding) (Subject, error) {
	subject := Subject{Finding: f}

	test, found, err := r.store.GetTest(ctx, f.TestKey)
	if err != nil {
		return subject, fmt.Errorf("loading test %s: %w", f.TestKey, err)
	}
	if !found {
		return subject, nil
	}
	eng, found, err := r.store.GetEngagement(ctx, test.EngagementKey)
	if err != nil {
		return subject, fmt.Errorf("loading engagement %s: %w", test.EngagementKey, err)
	}
	if !found {
		return subject, nil
	}
	product, found, err := r.store.GetProduct(ctx, eng.ProductKey)
	if err != nil {
		return subject, fmt.Errorf("loading product %s: %w", eng.ProductKey, err)
	}
	if !found {
		return subject, nil
	}
	subject.Product = product

	repo, found, err := r.store.FindRepositoryByProduct(ctx, product.Key)
	if err != nil {
		return subject, fmt.Errorf("loading repository of product %s: %w", product.Key, err)
	}
	if found {
		subject.Repository = repo
	}
	return subject, nil
}
