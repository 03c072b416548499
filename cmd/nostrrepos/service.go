package main

import (
	"context"
	"errors"
	"fmt"

	"nostrrepos/pkg/config"
	"nostrrepos/pkg/event"
	"nostrrepos/pkg/fanout"
	"nostrrepos/pkg/github"
	"nostrrepos/pkg/identity"
	"nostrrepos/pkg/metrics"
	"nostrrepos/pkg/relay"
	"nostrrepos/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var errNoPublisher = errors.New("no publisher key configured")

// service ties the fan-out core and the identity cascade to a concrete
// relay set and the GitHub API. Commands and HTTP handlers share it.
type service struct {
	cfg         *config.Config
	logger      *zap.Logger
	coordinator *fanout.Coordinator
	github      *github.Client
	resolver    *identity.Resolver
	read        []fanout.Endpoint
	search      []fanout.Endpoint
	pool        *relay.Pool // nil when endpoints are not pooled
}

func newService(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, read, search []fanout.Endpoint) *service {
	coord := fanout.New(logger, fanout.WithMetrics(m))

	var dir identity.Directory
	if cfg.Directory.URL != "" {
		dir = identity.NewDirectoryClient(cfg.Directory.URL, nil)
	}

	resolver := identity.New(identity.CascadeConfig{
		Coordinator:  coord,
		Relays:       read,
		SearchRelays: search,
		Directory:    dir,
		Timeout:      cfg.Relays.Timeout,
	}, logger, m)

	return &service{
		cfg:         cfg,
		logger:      logger,
		coordinator: coord,
		github:      github.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Token, nil),
		resolver:    resolver,
		read:        read,
		search:      search,
	}
}

// runtime is what a command needs to talk to the network
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	pool     *relay.Pool
	svc      *service
}

// setup loads config, connects to the configured relays and builds the
// service. Startup fails only if no read relay is reachable; relays that
// are down are retried at each query.
func setup(ctx context.Context) (*runtime, error) {
	logger := setupLogger(verbose)

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	pool := relay.NewPool(logger, m)

	reachable, err := pool.Connect(ctx, cfg.Relays.Read)
	if err != nil {
		logger.Warn("Some read relays are unreachable", zap.Error(err))
	}
	if len(reachable) == 0 {
		pool.Close()
		return nil, fmt.Errorf("no read relay is reachable")
	}

	if _, err := pool.Connect(ctx, cfg.Relays.Search); err != nil {
		logger.Warn("Some search relays are unreachable", zap.Error(err))
	}

	// relays that drop later are redialed on the next query
	svc := newService(cfg, logger, m, pool.Redialing(cfg.Relays.Read), pool.Redialing(cfg.Relays.Search))
	svc.pool = pool

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		pool:     pool,
		svc:      svc,
	}, nil
}

func (rt *runtime) Close() {
	if err := rt.pool.Close(); err != nil {
		rt.logger.Debug("Error closing relays", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

// Query fans every filter out to the read relays under one timeout
func (s *service) Query(ctx context.Context, filters ...types.Filter) ([]types.Record, error) {
	return s.coordinator.FanOutAll(ctx, fanout.Requests(s.read, filters...), s.cfg.Relays.Timeout)
}

// Resolve fetches a GitHub user and looks up their nostr key. A profile
// without a key is a normal result.
func (s *service) Resolve(ctx context.Context, login string) (types.ContributorProfile, error) {
	profile, err := s.github.GetUser(ctx, login)
	if err != nil {
		return profile, err
	}
	if key, ok := s.resolver.Resolve(ctx, profile); ok {
		profile.ResolvedKey = key
	}
	return profile, nil
}

type repoStatus struct {
	Repository string        `json:"repository"`
	UpdatedAt  int64         `json:"updated_at"`
	Published  *types.Record `json:"published,omitempty"`
	Current    bool          `json:"current"`
	Expected   types.Record  `json:"expected"`
}

// RepoStatus finds the publisher's record for owner/name and reports
// whether it reflects the repository's latest update.
func (s *service) RepoStatus(ctx context.Context, owner, name string) (*repoStatus, error) {
	if s.cfg.Publisher == "" {
		return nil, errNoPublisher
	}
	publisher := types.PubKey(s.cfg.Publisher)

	repo, err := s.github.GetRepo(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	records, err := s.Query(ctx, types.Filter{
		Kinds:   []int{types.KindRepository},
		Authors: []types.PubKey{publisher},
		Tags:    map[string][]string{"d": {repo.Slug()}},
	})
	if err != nil {
		return nil, err
	}

	want := event.Address{Kind: types.KindRepository, Author: publisher, Identifier: repo.Slug()}
	var matching []types.Record
	for _, r := range records {
		if addr, ok := event.AddressOf(r); ok && addr.Equal(want) {
			matching = append(matching, r)
		}
	}

	status := &repoStatus{
		Repository: repo.Slug(),
		UpdatedAt:  repo.UpdatedAt.Unix(),
		Expected:   repo.Record(publisher),
	}
	if published, ok := event.Newest(matching); ok {
		status.Published = &published
		status.Current = event.IsCurrent(published, status.UpdatedAt)
	}
	return status, nil
}
