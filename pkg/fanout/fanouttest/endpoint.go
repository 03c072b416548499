// Package fanouttest provides in-memory endpoints for exercising code that
// fans queries out to relays.
package fanouttest

import (
	"context"
	"strings"
	"sync"
	"time"

	"nostrrepos/pkg/fanout"
	"nostrrepos/pkg/types"
)

// Endpoint serves a fixed record set. Each subscription emits the records
// matching its filter and then ends the stream, unless Stall is set.
type Endpoint struct {
	Name    string
	Records []types.Record

	// Delay is slept before each record is emitted.
	Delay time.Duration
	// Stall keeps the stream open after the last record.
	Stall bool
	// Err makes Subscribe fail.
	Err error
	// Match replaces MatchFilter when set.
	Match func(types.Filter, types.Record) bool

	mu      sync.Mutex
	filters []types.Filter
	stops   int
}

var _ fanout.Endpoint = (*Endpoint)(nil)

func (e *Endpoint) URL() string {
	return e.Name
}

// Subscribe starts emitting matching records on a new subscription.
func (e *Endpoint) Subscribe(ctx context.Context, filter types.Filter) (fanout.Subscription, error) {
	e.mu.Lock()
	e.filters = append(e.filters, filter)
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}

	match := e.Match
	if match == nil {
		match = MatchFilter
	}

	var matched []types.Record
	for _, r := range e.Records {
		if match(filter, r) {
			matched = append(matched, r)
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	sub := &subscription{
		records: make(chan types.Record),
		stop:    make(chan struct{}),
		onStop:  e.recordStop,
	}
	go sub.emit(matched, e.Delay, e.Stall)
	return sub, nil
}

// Subscriptions returns how many times Subscribe was called.
func (e *Endpoint) Subscriptions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.filters)
}

// Filters returns the filters received so far, in call order.
func (e *Endpoint) Filters() []types.Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Filter(nil), e.filters...)
}

// Stops returns how many subscriptions were stopped by the caller.
func (e *Endpoint) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *Endpoint) recordStop() {
	e.mu.Lock()
	e.stops++
	e.mu.Unlock()
}

type subscription struct {
	records  chan types.Record
	stop     chan struct{}
	stopOnce sync.Once
	onStop   func()
}

func (s *subscription) Records() <-chan types.Record {
	return s.records
}

func (s *subscription) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.onStop()
	})
}

func (s *subscription) emit(records []types.Record, delay time.Duration, stall bool) {
	for _, r := range records {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-s.stop:
				return
			}
		}
		select {
		case s.records <- r:
		case <-s.stop:
			return
		}
	}
	if !stall {
		close(s.records)
	}
}

// MatchFilter applies NIP-01 filter semantics to a single record. Search
// terms match case-insensitively anywhere in the content.
func MatchFilter(f types.Filter, r types.Record) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, r.ID) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, r.Author) {
		return false
	}
	if len(f.Kinds) > 0 && !contains(f.Kinds, r.Kind) {
		return false
	}
	if f.Since > 0 && r.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && r.CreatedAt > f.Until {
		return false
	}
	for name, values := range f.Tags {
		if !hasTag(r, name, values) {
			return false
		}
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(r.Content), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func hasTag(r types.Record, name string, values []string) bool {
	for _, t := range r.Tags {
		if len(t) > 1 && t[0] == name && contains(values, t[1]) {
			return true
		}
	}
	return false
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
