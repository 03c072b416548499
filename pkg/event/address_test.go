package event

import (
	"strings"
	"testing"

	"nostrrepos/pkg/types"
)

func TestAddressOf(t *testing.T) {
	tests := []struct {
		name   string
		record types.Record
		want   string
		ok     bool
	}{
		{
			name:   "metadata",
			record: types.Record{ID: "a1", Author: "k1", Kind: 0},
			want:   "0:k1",
			ok:     true,
		},
		{
			name:   "contacts",
			record: types.Record{ID: "a2", Author: "k1", Kind: 3},
			want:   "3:k1",
			ok:     true,
		},
		{
			name:   "replaceable list ignores d tag",
			record: types.Record{ID: "a3", Author: "k1", Kind: 10002, Tags: types.Tags{{"d", "x"}}},
			want:   "10002:k1",
			ok:     true,
		},
		{
			name:   "parameterized with d tag",
			record: types.Record{ID: "a4", Author: "k1", Kind: 30000, Tags: types.Tags{{"d", "alice"}}},
			want:   "30000:k1:alice",
			ok:     true,
		},
		{
			name:   "parameterized without d tag",
			record: types.Record{ID: "a5", Author: "k1", Kind: 30117},
			want:   "30117:k1:",
			ok:     true,
		},
		{
			name:   "regular note",
			record: types.Record{ID: "a6", Author: "k1", Kind: 1},
			ok:     false,
		},
		{
			name:   "upper bound of parameterized range is exclusive",
			record: types.Record{ID: "a7", Author: "k1", Kind: 40000},
			ok:     false,
		},
		{
			name:   "ephemeral range is not addressable",
			record: types.Record{ID: "a8", Author: "k1", Kind: 20001},
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, ok := AddressOf(tt.record)
			if ok != tt.ok {
				t.Fatalf("AddressOf() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				if got := DedupKey(tt.record); got != string(tt.record.ID) {
					t.Errorf("DedupKey() = %q, want record id %q", got, tt.record.ID)
				}
				return
			}
			if got := addr.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := DedupKey(tt.record); got != tt.want {
				t.Errorf("DedupKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Address
		wantError bool
		errorMsg  string
	}{
		{
			name:  "repository announcement",
			input: "30117:k1:octocat/hello-world",
			want:  Address{Kind: 30117, Author: "k1", Identifier: "octocat/hello-world"},
		},
		{
			name:  "identifier containing colons",
			input: "30023:k1:a:b:c",
			want:  Address{Kind: 30023, Author: "k1", Identifier: "a:b:c"},
		},
		{
			name:  "metadata",
			input: "0:k1",
			want:  Address{Kind: 0, Author: "k1"},
		},
		{
			name:      "empty",
			input:     "",
			wantError: true,
			errorMsg:  "cannot be empty",
		},
		{
			name:      "missing author",
			input:     "30117",
			wantError: true,
			errorMsg:  "invalid address format",
		},
		{
			name:      "non-numeric kind",
			input:     "abc:k1",
			wantError: true,
			errorMsg:  "invalid kind",
		},
		{
			name:      "regular kind",
			input:     "1:k1",
			wantError: true,
			errorMsg:  "not addressable",
		},
		{
			name:      "identifier on plain replaceable",
			input:     "0:k1:x",
			wantError: true,
			errorMsg:  "does not take an identifier",
		},
		{
			name:      "empty author",
			input:     "0:",
			wantError: true,
			errorMsg:  "author cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantError {
				if err == nil {
					t.Fatalf("ParseAddress(%q) expected error, got nil", tt.input)
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.input, *got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("round trip = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestTagValue(t *testing.T) {
	r := types.Record{
		Tags: types.Tags{
			{},
			{"l", "Go", "programming-languages"},
			{"d", "octocat/hello-world"},
			{"d", "second"},
			{"title"},
		},
	}

	if got := TagValue(r, "d", 0, ""); got != "octocat/hello-world" {
		t.Errorf("first d = %q", got)
	}
	if got := TagValue(r, "l", 1, ""); got != "programming-languages" {
		t.Errorf("l[1] = %q", got)
	}
	if got := TagValue(r, "l", 2, "none"); got != "none" {
		t.Errorf("out of range = %q, want default", got)
	}
	if got := TagValue(r, "title", 0, "untitled"); got != "untitled" {
		t.Errorf("name-only tag = %q, want default", got)
	}
	if got := TagValue(r, "missing", 0, "x"); got != "x" {
		t.Errorf("missing tag = %q, want default", got)
	}
	if n := len(TagsNamed(r, "d")); n != 2 {
		t.Errorf("TagsNamed(d) = %d tags, want 2", n)
	}
	if !HasTagValue(r, "d", "second", nil) {
		t.Error("HasTagValue(d, second) = false")
	}
	if !HasTagValue(r, "l", "go", strings.EqualFold) {
		t.Error("HasTagValue(l, go, EqualFold) = false")
	}
}
