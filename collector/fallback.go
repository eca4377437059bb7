package collector

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Phase is one attempt of a two-phase strategy.
type Phase struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcome reports which phase ran last, whether it succeeded, and every error collected
// along the way.
type Outcome struct {
	Used      string
	FellBack  bool
	Succeeded bool
	Err       error
}

// Errors returns the individual errors combined in Err.
func (o Outcome) Errors() []error {
	return multierr.Errors(o.Err)
}

// Strategy runs a primary phase and swaps to the secondary when the primary fails outright.
// A failing secondary yields both errors combined.
type Strategy struct {
	Primary   Phase
	Secondary *Phase
	// BeforeFallback runs between a failed primary and the secondary.
	BeforeFallback func(primaryErr error)
	Logger         *zap.Logger
}

// Execute runs the strategy.
func (s Strategy) Execute(ctx context.Context) Outcome {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	primaryErr := s.Primary.Run(ctx)
	if primaryErr == nil {
		return Outcome{Used: s.Primary.Name, Succeeded: true}
	}
	if s.Secondary == nil || ctx.Err() != nil {
		return Outcome{Used: s.Primary.Name, Err: primaryErr}
	}

	logger.Warn("Primary transport failed, falling back",
		zap.String("primary", s.Primary.Name),
		zap.String("secondary", s.Secondary.Name),
		zap.Error(primaryErr))
	if s.BeforeFallback != nil {
		s.BeforeFallback(primaryErr)
	}

	if err := s.Secondary.Run(ctx); err != nil {
		return Outcome{Used: s.Secondary.Name, FellBack: true, Err: multierr.Combine(primaryErr, err)}
	}
	return Outcome{Used: s.Secondary.Name, FellBack: true, Succeeded: true, Err: primaryErr}
}
