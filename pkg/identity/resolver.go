package identity

import (
	"context"

	"nostrrepos/pkg/metrics"
	"nostrrepos/pkg/types"

	"go.uber.org/zap"
)

// Outcome is the result of one strategy: either a key was found or not.
type Outcome struct {
	key   types.PubKey
	found bool
}

// Found wraps a resolved key. An empty key counts as not found.
func Found(key types.PubKey) Outcome {
	return Outcome{key: key, found: key != ""}
}

// NotFound is the outcome of a strategy with no confident match.
var NotFound = Outcome{}

// Key returns the resolved key and whether there was one
func (o Outcome) Key() (types.PubKey, bool) {
	return o.key, o.found
}

// Strategy is one step of the resolution cascade. An error means the
// lookup itself failed; the resolver logs it and moves on.
type Strategy interface {
	Name() string
	Lookup(ctx context.Context, profile types.ContributorProfile) (Outcome, error)
}

// LookupFunc adapts a function to a Strategy via NewStrategy
type LookupFunc func(ctx context.Context, profile types.ContributorProfile) (Outcome, error)

type namedStrategy struct {
	name string
	fn   LookupFunc
}

// NewStrategy names a lookup function
func NewStrategy(name string, fn LookupFunc) Strategy {
	return &namedStrategy{name: name, fn: fn}
}

func (s *namedStrategy) Name() string { return s.name }

func (s *namedStrategy) Lookup(ctx context.Context, profile types.ContributorProfile) (Outcome, error) {
	return s.fn(ctx, profile)
}

// Resolver runs strategies left to right and returns the first key found.
// It keeps no state between calls.
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewResolver creates a resolver over an ordered list of strategies
func NewResolver(logger *zap.Logger, m *metrics.Metrics, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		strategies: strategies,
		logger:     logger,
		metrics:    m,
	}
}

// Strategies returns the names of the cascade steps, in order
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the network key linked to profile, if any strategy finds
// one. Finding nothing is the common case and not an error; strategy
// failures are logged and treated as no match.
func (r *Resolver) Resolve(ctx context.Context, profile types.ContributorProfile) (types.PubKey, bool) {
	logger := r.logger.With(zap.String("handle", profile.ExternalHandle))

	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			logger.Debug("Resolution cancelled", zap.Error(err))
			break
		}

		outcome, err := s.Lookup(ctx, profile)
		if err != nil {
			r.metrics.StrategyFailed(s.Name())
			logger.Warn("Identity lookup failed",
				zap.String("strategy", s.Name()),
				zap.Error(err))
			continue
		}

		if key, ok := outcome.Key(); ok {
			r.metrics.Resolved(s.Name())
			logger.Info("Resolved identity",
				zap.String("strategy", s.Name()),
				zap.String("pubkey", string(key)))
			return key, true
		}
		logger.Debug("No match", zap.String("strategy", s.Name()))
	}

	r.metrics.Resolved("none")
	return "", false
}
