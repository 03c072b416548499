package event

import (
	"fmt"
	"strconv"
	"strings"

	"nostrrepos/pkg/types"
)

// Address identifies the logical slot a replaceable record occupies.
// Examples:
//   - 0:<pubkey> (profile metadata)
//   - 10002:<pubkey> (relay list)
//   - 30117:<pubkey>:octocat/hello-world (repository announcement)
type Address struct {
	Kind       int
	Author     types.PubKey
	Identifier string // value of the "d" tag, parameterized kinds only
}

// IsReplaceable reports whether records of this kind are identified by
// kind and author rather than by their own id.
func IsReplaceable(kind int) bool {
	return kind == types.KindMetadata ||
		kind == types.KindContacts ||
		(kind >= types.ReplaceableMin && kind < types.ReplaceableMax)
}

// IsParameterized reports whether records of this kind are further keyed by their "d" tag
func IsParameterized(kind int) bool {
	return kind >= types.ParameterizedMin && kind < types.ParameterizedMax
}

// IsAddressable reports whether a kind is replaceable in either form
func IsAddressable(kind int) bool {
	return IsReplaceable(kind) || IsParameterized(kind)
}

// AddressOf returns the address of an addressable record. ok is false for
// regular records, which are identified by their id alone.
func AddressOf(r types.Record) (Address, bool) {
	if !IsAddressable(r.Kind) {
		return Address{}, false
	}
	addr := Address{Kind: r.Kind, Author: r.Author}
	if IsParameterized(r.Kind) {
		addr.Identifier = TagValue(r, "d", 0, "")
	}
	return addr, true
}

// DedupKey is the key the deduplicator groups records by: the address
// string for addressable kinds, the record id otherwise.
func DedupKey(r types.Record) string {
	if addr, ok := AddressOf(r); ok {
		return addr.String()
	}
	return string(r.ID)
}

// ParseAddress parses an address string in "kind:pubkey[:identifier]" form,
// as found in "a" tags. The identifier may itself contain colons.
func ParseAddress(s string) (*Address, error) {
	if s == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid address format: expected kind:pubkey[:identifier]")
	}

	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid kind %q: %w", parts[0], err)
	}

	addr := &Address{
		Kind:   kind,
		Author: types.PubKey(parts[1]),
	}
	if len(parts) == 3 {
		addr.Identifier = parts[2]
	}

	if err := addr.Validate(); err != nil {
		return nil, err
	}
	return addr, nil
}

// String returns the canonical form. Parameterized kinds always carry the
// trailing identifier segment, even when it is empty.
func (a Address) String() string {
	if IsParameterized(a.Kind) {
		return fmt.Sprintf("%d:%s:%s", a.Kind, a.Author, a.Identifier)
	}
	return fmt.Sprintf("%d:%s", a.Kind, a.Author)
}

// Validate checks that the address describes an addressable slot
func (a Address) Validate() error {
	if !IsAddressable(a.Kind) {
		return fmt.Errorf("kind %d is not addressable", a.Kind)
	}
	if a.Author == "" {
		return fmt.Errorf("author cannot be empty")
	}
	if a.Identifier != "" && !IsParameterized(a.Kind) {
		return fmt.Errorf("kind %d does not take an identifier", a.Kind)
	}
	return nil
}

// Equal returns true if two addresses name the same slot
func (a Address) Equal(other Address) bool {
	return a.String() == other.String()
}
