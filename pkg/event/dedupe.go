package event

import "nostrrepos/pkg/types"

// Dedupe collapses records to one per dedup key, keeping the one with the
// greatest CreatedAt. On a timestamp tie the first one seen is kept.
//
// The result lists each key at the position where it was first seen, so
// ranked input (e.g. search results) keeps its order. Applying Dedupe to
// its own output returns the same set.
func Dedupe(records []types.Record) []types.Record {
	if len(records) == 0 {
		return []types.Record{}
	}

	index := make(map[string]int, len(records))
	out := make([]types.Record, 0, len(records))

	for _, r := range records {
		key := DedupKey(r)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		if r.CreatedAt > out[i].CreatedAt {
			out[i] = r
		}
	}
	return out
}

// Newest returns the record with the greatest CreatedAt, earliest on ties.
func Newest(records []types.Record) (types.Record, bool) {
	if len(records) == 0 {
		return types.Record{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.CreatedAt > best.CreatedAt {
			best = r
		}
	}
	return best, true
}

// IsCurrent reports whether a previously published record still reflects
// an external resource last updated at updatedAt (unix seconds). The
// caller skips republishing when this is true.
func IsCurrent(existing types.Record, updatedAt int64) bool {
	return existing.CreatedAt >= updatedAt
}
