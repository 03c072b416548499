package fanout

import (
	"context"
	"sync"
	"time"

	"nostrrepos/pkg/event"
	"nostrrepos/pkg/metrics"
	"nostrrepos/pkg/types"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a fan-out when the caller passes no timeout.
const DefaultTimeout = 5 * time.Second

// Subscription is one open query against one endpoint.
type Subscription interface {
	// Records delivers records in the endpoint's emission order. The
	// channel is closed when the endpoint signals end-of-stream; a stalled
	// endpoint may never close it.
	Records() <-chan types.Record

	// Stop asks the endpoint to drop the subscription. It must not block.
	Stop()
}

// Endpoint is a relay that can be queried. Connection lifecycle belongs to
// whoever created the endpoint, not to the Coordinator.
type Endpoint interface {
	URL() string
	Subscribe(ctx context.Context, filter types.Filter) (Subscription, error)
}

// Request pairs a filter with the endpoint it should be sent to.
type Request struct {
	Endpoint Endpoint
	Filter   types.Filter
}

// Requests builds the cross product of endpoints and filters, so several
// filters can be resolved together in one bounded window.
func Requests(endpoints []Endpoint, filters ...types.Filter) []Request {
	reqs := make([]Request, 0, len(endpoints)*len(filters))
	for _, f := range filters {
		for _, ep := range endpoints {
			reqs = append(reqs, Request{Endpoint: ep, Filter: f})
		}
	}
	return reqs
}

// Coordinator fans queries out to independent endpoints and merges the
// replies. It holds no per-query state, so one Coordinator may serve any
// number of concurrent calls.
type Coordinator struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
}

type Option func(*Coordinator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock replaces the wall clock used for the timeout and latency.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// New creates a Coordinator
func New(logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		logger: logger,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FanOut sends filter to every endpoint and returns the deduplicated union
// of what arrived before all endpoints finished or timeout elapsed.
func (c *Coordinator) FanOut(ctx context.Context, filter types.Filter, endpoints []Endpoint, timeout time.Duration) ([]types.Record, error) {
	return c.FanOutAll(ctx, Requests(endpoints, filter), timeout)
}

// FanOutAll runs every request concurrently under one shared timeout and
// deduplicates the merged result once.
//
// Endpoint failures and stalls never produce an error; they only
// contribute fewer records. The returned error is non-nil only when a
// filter fails validation, in which case nothing is sent.
func (c *Coordinator) FanOutAll(ctx context.Context, reqs []Request, timeout time.Duration) ([]types.Record, error) {
	for _, req := range reqs {
		if err := req.Filter.Validate(); err != nil {
			return nil, err
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := c.clock.Now()
	ctx, cancel := c.clock.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		buffer []types.Record
		wg     sync.WaitGroup
	)

	add := func(r types.Record) {
		mu.Lock()
		buffer = append(buffer, r)
		mu.Unlock()
	}

	for _, req := range reqs {
		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			c.collect(ctx, req, add)
		}(req)
	}
	wg.Wait()

	out := event.Dedupe(buffer)
	elapsed := c.clock.Since(start)
	c.metrics.ObserveFanOut(elapsed, len(buffer), len(out))

	c.logger.Debug("Fan-out finished",
		zap.Int("requests", len(reqs)),
		zap.Int("received", len(buffer)),
		zap.Int("kept", len(out)),
		zap.Duration("elapsed", elapsed))

	return out, nil
}

// collect drains one subscription into add until end-of-stream or until
// ctx is done, in which case the subscription is stopped and abandoned.
func (c *Coordinator) collect(ctx context.Context, req Request, add func(types.Record)) {
	url := req.Endpoint.URL()

	sub, err := req.Endpoint.Subscribe(ctx, req.Filter)
	if err != nil {
		c.metrics.SubscribeFailed(url)
		c.logger.Debug("Failed to subscribe",
			zap.String("relay", url),
			zap.Error(err))
		return
	}

	records := sub.Records()
	for {
		select {
		case r, ok := <-records:
			if !ok {
				return
			}
			c.metrics.RecordReceived(url)
			add(r)
		case <-ctx.Done():
			sub.Stop()
			c.metrics.EndpointTimedOut(url)
			c.logger.Debug("Relay did not finish before timeout",
				zap.String("relay", url))
			return
		}
	}
}
