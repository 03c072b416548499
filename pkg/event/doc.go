// Package event holds the pure helpers that operate on network records:
// address derivation for replaceable kinds, tag lookup, newest-wins
// deduplication and the staleness check used before republishing.
package event
