package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nostrrepos/pkg/event"
	"nostrrepos/pkg/fanout"
	"nostrrepos/pkg/metrics"
	"nostrrepos/pkg/types"

	"go.uber.org/zap"
)

// Strategy names, also used as metric labels
const (
	StrategyEmbeddedClaim   = "embedded-claim"
	StrategyPrimaryHandle   = "primary-handle"
	StrategySecondaryHandle = "secondary-handle"
	StrategyDirectory       = "directory"
	StrategySearchHandle    = "search-handle"
	StrategySearchName      = "search-display-name"
)

// CascadeConfig wires the default strategies to their collaborators.
// Endpoints are owned by the caller and only borrowed for each lookup.
type CascadeConfig struct {
	Coordinator  *fanout.Coordinator
	Relays       []fanout.Endpoint // metadata relays for identity-claim queries
	SearchRelays []fanout.Endpoint // relays supporting free-text search
	Directory    Directory
	Timeout      time.Duration

	PrimaryPlatform   string // "github" by default
	SecondaryPlatform string // "twitter" by default
}

func (cfg CascadeConfig) withDefaults() CascadeConfig {
	if cfg.Coordinator == nil {
		cfg.Coordinator = fanout.New(nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = fanout.DefaultTimeout
	}
	if cfg.PrimaryPlatform == "" {
		cfg.PrimaryPlatform = "github"
	}
	if cfg.SecondaryPlatform == "" {
		cfg.SecondaryPlatform = "twitter"
	}
	return cfg
}

// Cascade returns the six default strategies in resolution order.
func Cascade(cfg CascadeConfig) []Strategy {
	cfg = cfg.withDefaults()

	return []Strategy{
		NewStrategy(StrategyEmbeddedClaim, embeddedClaim),
		NewStrategy(StrategyPrimaryHandle, func(ctx context.Context, p types.ContributorProfile) (Outcome, error) {
			return claimLookup(ctx, cfg, cfg.PrimaryPlatform, p.ExternalHandle)
		}),
		NewStrategy(StrategySecondaryHandle, func(ctx context.Context, p types.ContributorProfile) (Outcome, error) {
			return claimLookup(ctx, cfg, cfg.SecondaryPlatform, p.SecondaryHandle)
		}),
		NewStrategy(StrategyDirectory, func(ctx context.Context, p types.ContributorProfile) (Outcome, error) {
			return directoryLookup(ctx, cfg.Directory, p.SecondaryHandle)
		}),
		NewStrategy(StrategySearchHandle, func(ctx context.Context, p types.ContributorProfile) (Outcome, error) {
			return searchLookup(ctx, cfg, p.ExternalHandle)
		}),
		NewStrategy(StrategySearchName, func(ctx context.Context, p types.ContributorProfile) (Outcome, error) {
			return searchLookup(ctx, cfg, p.DisplayName)
		}),
	}
}

// New builds a Resolver running the default cascade
func New(cfg CascadeConfig, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	return NewResolver(logger, m, Cascade(cfg)...)
}

func embeddedClaim(_ context.Context, p types.ContributorProfile) (Outcome, error) {
	if key, ok := FindClaim(p.Bio, p.ExternalURL); ok {
		return Found(key), nil
	}
	return NotFound, nil
}

// claimLookup finds metadata records carrying an external identity tag
// ["i", "<platform>:<handle>", ...] and returns the newest one's author.
func claimLookup(ctx context.Context, cfg CascadeConfig, platform, handle string) (Outcome, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || len(cfg.Relays) == 0 {
		return NotFound, nil
	}

	claim := platform + ":" + handle
	values := []string{claim}
	if lower := strings.ToLower(claim); lower != claim {
		values = append(values, lower)
	}

	filter := types.Filter{
		Kinds: []int{types.KindMetadata},
		Tags:  map[string][]string{"i": values},
	}
	records, err := cfg.Coordinator.FanOut(ctx, filter, cfg.Relays, cfg.Timeout)
	if err != nil {
		return NotFound, fmt.Errorf("identity claim query for %s: %w", claim, err)
	}

	// relays are not trusted to apply the tag filter
	var matching []types.Record
	for _, r := range records {
		if r.Kind == types.KindMetadata && event.HasTagValue(r, "i", claim, strings.EqualFold) {
			matching = append(matching, r)
		}
	}

	newest, ok := event.Newest(matching)
	if !ok {
		return NotFound, nil
	}
	return Found(newest.Author), nil
}

func directoryLookup(ctx context.Context, dir Directory, handle string) (Outcome, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || dir == nil {
		return NotFound, nil
	}

	key, ok, err := dir.Lookup(ctx, handle)
	if err != nil {
		return NotFound, fmt.Errorf("directory lookup for %s: %w", handle, err)
	}
	if !ok {
		return NotFound, nil
	}
	return Found(key), nil
}

// profileContent is the JSON payload of a metadata record
type profileContent struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	DisplayAlt  string `json:"displayName"`
	Username    string `json:"username"`
}

func (pc profileContent) names() []string {
	return []string{pc.Name, pc.DisplayName, pc.DisplayAlt, pc.Username}
}

// searchLookup runs a free-text search for term and accepts the
// best-ranked metadata record only if one of its declared names equals
// term, ignoring case.
func searchLookup(ctx context.Context, cfg CascadeConfig, term string) (Outcome, error) {
	term = strings.TrimSpace(term)
	if term == "" || len(cfg.SearchRelays) == 0 {
		return NotFound, nil
	}

	filter := types.Filter{
		Kinds:  []int{types.KindMetadata},
		Search: term,
		Limit:  1,
	}
	records, err := cfg.Coordinator.FanOut(ctx, filter, cfg.SearchRelays, cfg.Timeout)
	if err != nil {
		return NotFound, fmt.Errorf("search for %q: %w", term, err)
	}

	// Dedupe keeps first-seen order, so the head is the top-ranked hit
	var best *types.Record
	for i := range records {
		if records[i].Kind == types.KindMetadata {
			best = &records[i]
			break
		}
	}
	if best == nil {
		return NotFound, nil
	}

	var content profileContent
	if err := json.Unmarshal([]byte(best.Content), &content); err != nil {
		return NotFound, fmt.Errorf("malformed profile from %s: %w", best.Author, err)
	}

	for _, name := range content.names() {
		if name != "" && strings.EqualFold(strings.TrimSpace(name), term) {
			return Found(best.Author), nil
		}
	}
	return NotFound, nil
}
