package github

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// lowQuotaWarning is the remaining-request count below which a warning is logged.
const lowQuotaWarning = 500

// Quota is the last known rate-limit state of a transport.
type Quota struct {
	Limit     int       `json:"limit" yaml:"limit"`
	Remaining int       `json:"remaining" yaml:"remaining"`
	ResetAt   time.Time `json:"reset_at" yaml:"reset_at"`
	LastCost  int       `json:"last_cost,omitempty" yaml:"last_cost,omitempty"`
}

// RateTracker records the quota reported by a transport's responses.
type RateTracker struct {
	mu     sync.Mutex
	name   string
	quota  Quota
	known  bool
	logger *zap.Logger
}

// NewRateTracker creates a tracker for the named transport.
func NewRateTracker(name string, logger *zap.Logger) *RateTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateTracker{name: name, logger: logger}
}

// Update stores the quota reported by the latest response.
func (t *RateTracker) Update(limit, remaining, cost int, resetAt time.Time) {
	if limit <= 0 {
		return
	}
	t.mu.Lock()
	t.quota = Quota{Limit: limit, Remaining: remaining, ResetAt: resetAt, LastCost: cost}
	t.known = true
	t.mu.Unlock()

	if remaining < lowQuotaWarning {
		t.logger.Warn("GitHub rate limit running low",
			zap.String("transport", t.name),
			zap.Int("remaining", remaining),
			zap.Int("limit", limit),
			zap.Time("reset_at", resetAt))
	}
}

// Quota returns the last known quota and whether any response reported one.
func (t *RateTracker) Quota() (Quota, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quota, t.known
}

// RemainingFraction is remaining/limit, or 1 while no quota has been observed.
func (t *RateTracker) RemainingFraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.known || t.quota.Limit <= 0 {
		return 1
	}
	return float64(t.quota.Remaining) / float64(t.quota.Limit)
}

// Name returns the transport name.
func (t *RateTracker) Name() string {
	return t.name
}
