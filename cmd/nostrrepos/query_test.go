package main

import (
	"bytes"
	"testing"

	"nostrrepos/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFlags_Build(t *testing.T) {
	tests := []struct {
		name    string
		flags   queryFlags
		want    []types.Filter
		wantErr bool
	}{
		{
			name:  "flags",
			flags: queryFlags{kinds: []int{30117}, authors: []string{"abc"}, tags: []string{"l=Go", "l=Rust", "t=nostr"}, limit: 5},
			want: []types.Filter{{
				Kinds:   []int{30117},
				Authors: []types.PubKey{"abc"},
				Tags:    map[string][]string{"l": {"Go", "Rust"}, "t": {"nostr"}},
				Limit:   5,
			}},
		},
		{
			name:  "tag value with equals sign",
			flags: queryFlags{tags: []string{"r=https://x.test/?a=b"}},
			want:  []types.Filter{{Tags: map[string][]string{"r": {"https://x.test/?a=b"}}}},
		},
		{
			name:  "raw filters win",
			flags: queryFlags{kinds: []int{1}, filters: []string{`{"kinds":[0]}`, `{"#d":["a/b"]}`}},
			want: []types.Filter{
				{Kinds: []int{0}},
				{Tags: map[string][]string{"d": {"a/b"}}},
			},
		},
		{name: "tag without value", flags: queryFlags{tags: []string{"nostr"}}, wantErr: true},
		{name: "tag without name", flags: queryFlags{tags: []string{"=x"}}, wantErr: true},
		{name: "bad raw filter", flags: queryFlags{filters: []string{"{"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.build()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintRecords(t *testing.T) {
	records := []types.Record{
		{ID: "id1", Author: "author1", Kind: 1, CreatedAt: 1700000000},
		{ID: "id2", Author: "author2", Kind: 30117, CreatedAt: 1700000001, Tags: types.Tags{{"d", "o/r"}}},
	}

	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, records, "json"))
	assert.Contains(t, buf.String(), `"pubkey": "author1"`)

	buf.Reset()
	require.NoError(t, printRecords(&buf, records, "table"))
	assert.Contains(t, buf.String(), "30117:author2:o/r")
	assert.Contains(t, buf.String(), "2 records")

	assert.Error(t, printRecords(&buf, records, "yaml"))
}
