package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PubKey is a hex-encoded 32-byte x-only public key.
type PubKey string

type RecordID string

// Well-known record kinds
const (
	KindMetadata   = 0
	KindContacts   = 3
	KindRepository = 30117
)

// Replaceable and parameterized-replaceable kind ranges (half-open).
const (
	ReplaceableMin   = 10000
	ReplaceableMax   = 20000
	ParameterizedMin = 30000
	ParameterizedMax = 40000
)

// ErrInvalidFilter is returned when a caller hands the core a filter it cannot forward.
var ErrInvalidFilter = errors.New("invalid filter")

// Tag is one entry of a record's tag list, e.g. ["d", "alice"].
type Tag []string

// Key returns the tag name or "" for an empty tag
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

type Tags []Tag

// Record is a network record as received from a relay. Records are treated
// as immutable once received.
type Record struct {
	ID        RecordID `json:"id"`
	Author    PubKey   `json:"pubkey"`
	Kind      int      `json:"kind"`
	CreatedAt int64    `json:"created_at"`
	Tags      Tags     `json:"tags"`
	Content   string   `json:"content"`
	Sig       string   `json:"sig,omitempty"`
}

// Filter is a NIP-01 subscription filter. The core never interprets it
// beyond validation; it is forwarded to each endpoint as-is.
type Filter struct {
	IDs     []RecordID
	Authors []PubKey
	Kinds   []int
	Tags    map[string][]string // tag name without '#' -> accepted values
	Since   int64
	Until   int64
	Limit   int
	Search  string
}

// Validate reports contract violations. Network-level problems are never
// surfaced here.
func (f Filter) Validate() error {
	for _, k := range f.Kinds {
		if k < 0 {
			return fmt.Errorf("%w: negative kind %d", ErrInvalidFilter, k)
		}
	}
	if f.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidFilter, f.Limit)
	}
	for name := range f.Tags {
		if name == "" || strings.HasPrefix(name, "#") {
			return fmt.Errorf("%w: bad tag name %q", ErrInvalidFilter, name)
		}
	}
	if f.Since > 0 && f.Until > 0 && f.Since > f.Until {
		return fmt.Errorf("%w: since %d is after until %d", ErrInvalidFilter, f.Since, f.Until)
	}
	return nil
}

// MarshalJSON renders the filter in wire form, with tag constraints as "#x" keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		m["#"+name] = values
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Until > 0 {
		m["until"] = f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	if f.Search != "" {
		m["search"] = f.Search
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the wire form produced by MarshalJSON.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*f = Filter{}
	for k, v := range raw {
		var err error
		switch {
		case k == "ids":
			err = json.Unmarshal(v, &f.IDs)
		case k == "authors":
			err = json.Unmarshal(v, &f.Authors)
		case k == "kinds":
			err = json.Unmarshal(v, &f.Kinds)
		case k == "since":
			err = json.Unmarshal(v, &f.Since)
		case k == "until":
			err = json.Unmarshal(v, &f.Until)
		case k == "limit":
			err = json.Unmarshal(v, &f.Limit)
		case k == "search":
			err = json.Unmarshal(v, &f.Search)
		case strings.HasPrefix(k, "#"):
			var values []string
			err = json.Unmarshal(v, &values)
			if f.Tags == nil {
				f.Tags = make(map[string][]string)
			}
			f.Tags[strings.TrimPrefix(k, "#")] = values
		}
		if err != nil {
			return fmt.Errorf("failed to parse filter field %s: %w", k, err)
		}
	}
	return nil
}

// ContributorProfile describes an external account (a GitHub user) whose
// network identity we want to find.
type ContributorProfile struct {
	DisplayName     string
	ExternalHandle  string // primary platform username
	SecondaryHandle string // secondary platform username, may be empty
	ExternalURL     string
	Bio             string
	ResolvedKey     PubKey // filled in by the caller after resolution
}
