package event

import "nostrrepos/pkg/types"

// TagsNamed returns every non-empty tag whose first element is name, in order.
func TagsNamed(r types.Record, name string) []types.Tag {
	var out []types.Tag
	for _, t := range r.Tags {
		if len(t) > 0 && t[0] == name {
			out = append(out, t)
		}
	}
	return out
}

// FirstTag returns the first tag named name, or nil.
func FirstTag(r types.Record, name string) types.Tag {
	for _, t := range r.Tags {
		if len(t) > 0 && t[0] == name {
			return t
		}
	}
	return nil
}

// TagValue returns the index-th value (0 is the element right after the
// name) of the first tag called name. def is returned when the tag is
// missing or too short.
func TagValue(r types.Record, name string, index int, def string) string {
	t := FirstTag(r, name)
	if t == nil || index < 0 || 1+index >= len(t) {
		return def
	}
	return t[1+index]
}

// HasTagValue reports whether any tag called name has value as its first value
func HasTagValue(r types.Record, name, value string, match func(a, b string) bool) bool {
	if match == nil {
		match = func(a, b string) bool { return a == b }
	}
	for _, t := range TagsNamed(r, name) {
		if len(t) > 1 && match(t[1], value) {
			return true
		}
	}
	return false
}
