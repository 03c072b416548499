package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nostrrepos/pkg/fanout"
	"nostrrepos/pkg/metrics"
	"nostrrepos/pkg/types"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var errPoolClosed = errors.New("relay pool closed")

// Pool keeps one connection per relay URL. It belongs to the caller that
// drives queries; the fan-out core only ever sees the endpoints it hands out.
type Pool struct {
	mu      sync.RWMutex
	conns   map[string]*Conn // url -> connection
	closed  bool
	dials   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Configuration
	dialTimeout time.Duration
	maxParallel int
}

// NewPool creates an empty pool
func NewPool(logger *zap.Logger, m *metrics.Metrics) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		conns:       make(map[string]*Conn),
		logger:      logger,
		metrics:     m,
		dialTimeout: 10 * time.Second,
		maxParallel: 8,
	}
}

// SetDialTimeout bounds each individual dial
func (p *Pool) SetDialTimeout(d time.Duration) {
	p.dialTimeout = d
}

// Connect makes sure every url has a live connection, dialing the missing
// ones concurrently. It returns the endpoints that are connected, in url
// order. Relays that could not be reached are left out and their errors
// combined into err; a partial pool is still usable.
func (p *Pool) Connect(ctx context.Context, urls []string) ([]fanout.Endpoint, error) {
	var (
		errMu sync.Mutex
		errs  error
		g     errgroup.Group
	)
	g.SetLimit(p.maxParallel)

	for _, url := range dedupeURLs(urls) {
		if p.live(url) != nil {
			continue
		}

		url := url
		g.Go(func() error {
			if _, err := p.conn(ctx, url); err != nil {
				p.logger.Warn("Failed to connect to relay",
					zap.String("relay", url),
					zap.Error(err))
				errMu.Lock()
				errs = multierr.Append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return p.Endpoints(urls), errs
}

// Redialing returns one endpoint per url that picks the pooled connection
// at each Subscribe and redials it first if it has dropped. Long-running
// callers should hold these rather than the connections themselves.
func (p *Pool) Redialing(urls []string) []fanout.Endpoint {
	urls = dedupeURLs(urls)
	out := make([]fanout.Endpoint, 0, len(urls))
	for _, url := range urls {
		out = append(out, &pooledEndpoint{pool: p, url: url})
	}
	return out
}

// conn returns the live connection for url, dialing it if needed.
// Concurrent callers for the same url share one dial.
func (p *Pool) conn(ctx context.Context, url string) (*Conn, error) {
	if conn := p.live(url); conn != nil {
		return conn, nil
	}

	v, err, _ := p.dials.Do(url, func() (interface{}, error) {
		if conn := p.live(url); conn != nil {
			return conn, nil
		}
		p.mu.RLock()
		closed := p.closed
		p.mu.RUnlock()
		if closed {
			return nil, errPoolClosed
		}

		dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()

		conn, err := Dial(dialCtx, url, p.logger)
		if err != nil {
			return nil, err
		}
		if !p.store(url, conn) {
			conn.Close()
			return nil, errPoolClosed
		}
		p.logger.Info("Connected to relay", zap.String("relay", url))
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conn), nil
}

// Endpoints returns the live connections among urls, in url order
func (p *Pool) Endpoints(urls []string) []fanout.Endpoint {
	var out []fanout.Endpoint
	for _, url := range dedupeURLs(urls) {
		if conn := p.live(url); conn != nil {
			out = append(out, conn)
		}
	}
	return out
}

// Size returns the number of live connections
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, conn := range p.conns {
		if conn.Alive() {
			n++
		}
	}
	return n
}

// Close closes all connections
func (p *Pool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Conn)
	p.closed = true
	p.mu.Unlock()

	var err error
	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}
	p.metrics.SetRelaysConnected(0)
	return err
}

func (p *Pool) live(url string) *Conn {
	p.mu.RLock()
	conn, ok := p.conns[url]
	p.mu.RUnlock()

	if ok && conn.Alive() {
		return conn
	}
	return nil
}

// store adds conn to the pool. It reports false if the pool is closed.
func (p *Pool) store(url string, conn *Conn) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if old, ok := p.conns[url]; ok && old != conn {
		go old.Close()
	}
	p.conns[url] = conn
	p.mu.Unlock()

	p.metrics.SetRelaysConnected(p.Size())

	go func() {
		<-conn.Done()
		p.logger.Debug("Relay disconnected", zap.String("relay", url))
		p.metrics.SetRelaysConnected(p.Size())
	}()
	return true
}

type pooledEndpoint struct {
	pool *Pool
	url  string
}

func (e *pooledEndpoint) URL() string {
	return e.url
}

func (e *pooledEndpoint) Subscribe(ctx context.Context, filter types.Filter) (fanout.Subscription, error) {
	conn, err := e.pool.conn(ctx, e.url)
	if err != nil {
		return nil, fmt.Errorf("relay %s: %w", e.url, err)
	}
	return conn.Subscribe(ctx, filter)
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
