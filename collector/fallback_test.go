package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyPrimarySucceeds(t *testing.T) {
	secondaryRan := false
	s := Strategy{
		Primary:   Phase{Name: "graphql", Run: func(context.Context) error { return nil }},
		Secondary: &Phase{Name: "rest", Run: func(context.Context) error { secondaryRan = true; return nil }},
	}
	out := s.Execute(context.Background())

	assert.True(t, out.Succeeded)
	assert.Equal(t, "graphql", out.Used)
	assert.False(t, out.FellBack)
	assert.False(t, secondaryRan)
}

func TestStrategyFallsBack(t *testing.T) {
	primaryErr := errors.New("graphql down")
	var seen error
	s := Strategy{
		Primary:        Phase{Name: "graphql", Run: func(context.Context) error { return primaryErr }},
		Secondary:      &Phase{Name: "rest", Run: func(context.Context) error { return nil }},
		BeforeFallback: func(err error) { seen = err },
	}
	out := s.Execute(context.Background())

	assert.True(t, out.Succeeded)
	assert.True(t, out.FellBack)
	assert.Equal(t, "rest", out.Used)
	assert.ErrorIs(t, seen, primaryErr)
	assert.ErrorIs(t, out.Err, primaryErr)
}

func TestStrategyBothFail(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	s := Strategy{
		Primary:   Phase{Name: "graphql", Run: func(context.Context) error { return first }},
		Secondary: &Phase{Name: "rest", Run: func(context.Context) error { return second }},
	}
	out := s.Execute(context.Background())

	assert.False(t, out.Succeeded)
	assert.Len(t, out.Errors(), 2)
	assert.ErrorIs(t, out.Err, first)
	assert.ErrorIs(t, out.Err, second)
}

func TestStrategyNoFallbackAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	secondaryRan := false
	s := Strategy{
		Primary:   Phase{Name: "graphql", Run: func(ctx context.Context) error { return ctx.Err() }},
		Secondary: &Phase{Name: "rest", Run: func(context.Context) error { secondaryRan = true; return nil }},
	}
	out := s.Execute(ctx)

	assert.False(t, out.Succeeded)
	assert.False(t, secondaryRan)
	assert.ErrorIs(t, out.Err, context.Canceled)
}
