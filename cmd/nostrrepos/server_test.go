package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nostrrepos/pkg/config"
	"nostrrepos/pkg/fanout"
	"nostrrepos/pkg/fanout/fanouttest"
	"nostrrepos/pkg/metrics"
	"nostrrepos/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testPublisher = "c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00"

var githubFixtures = map[string]string{
	"/users/alice": `{"login":"alice","name":"Alice","bio":"relay dev","blog":"","twitter_username":null}`,
	"/repos/alice/relay": `{
		"name": "relay", "description": "A relay", "html_url": "https://github.com/alice/relay",
		"language": "Go", "owner": {"login": "alice"},
		"created_at": "2023-01-01T00:00:00Z", "updated_at": "2024-01-01T00:00:00Z"
	}`,
}

// 2024-01-01T00:00:00Z
const repoUpdatedAt = 1704067200

type testServer struct {
	relay *fanouttest.Endpoint
	http  *httptest.Server
}

func newTestServer(t *testing.T, publisher string, records []types.Record) *testServer {
	t.Helper()

	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := githubFixtures[r.URL.Path]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(gh.Close)

	cfg := config.Default()
	cfg.GitHub.APIURL = gh.URL
	cfg.Relays.Timeout = time.Second
	cfg.Publisher = publisher

	registry := prometheus.NewRegistry()
	relay := &fanouttest.Endpoint{Name: "wss://relay.test", Records: records}
	svc := newService(cfg, zaptest.NewLogger(t), metrics.New(registry), []fanout.Endpoint{relay}, nil)

	api := httptest.NewServer(newRouter(svc, registry))
	t.Cleanup(api.Close)

	return &testServer{relay: relay, http: api}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, s.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := s.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func repoRecord(author string, createdAt int64) types.Record {
	return types.Record{
		ID:        types.RecordID(author[:8]),
		Author:    types.PubKey(author),
		Kind:      types.KindRepository,
		CreatedAt: createdAt,
		Tags:      types.Tags{{"d", "alice/relay"}, {"title", "relay"}},
	}
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, "", nil)

	code, body := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	// unpooled endpoints report no relay count
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestServer_Resolve(t *testing.T) {
	claim := types.Record{
		ID: "claim", Author: "alicekey", Kind: types.KindMetadata, CreatedAt: 100,
		Tags: types.Tags{{"i", "github:alice", "gistid"}},
	}
	s := newTestServer(t, "", []types.Record{claim})

	code, body := s.do(t, http.MethodGet, "/resolve/alice", "")
	require.Equal(t, http.StatusOK, code, body)

	var got profileJSON
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, profileJSON{Login: "alice", Name: "Alice", Pubkey: "alicekey", Resolved: true}, got)

	code, _ = s.do(t, http.MethodGet, "/resolve/nobody", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_ResolveWithoutMatch(t *testing.T) {
	s := newTestServer(t, "", nil)

	code, body := s.do(t, http.MethodGet, "/resolve/alice", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"login":"alice","name":"Alice","resolved":false}`, body)
}

func TestServer_Query(t *testing.T) {
	records := []types.Record{
		{ID: "a", Author: "x", Kind: 1, CreatedAt: 1, Content: "hello"},
		{ID: "b", Author: "y", Kind: 1, CreatedAt: 2, Content: "world"},
		{ID: "c", Author: "y", Kind: 7, CreatedAt: 3},
	}
	s := newTestServer(t, "", records)

	tests := []struct {
		name    string
		body    string
		code    int
		wantIDs []types.RecordID
	}{
		{name: "single filter", body: `{"kinds":[1]}`, code: http.StatusOK, wantIDs: []types.RecordID{"a", "b"}},
		{name: "filter list", body: `[{"authors":["x"]},{"kinds":[7]}]`, code: http.StatusOK, wantIDs: []types.RecordID{"a", "c"}},
		{name: "invalid filter", body: `{"limit":-1}`, code: http.StatusBadRequest},
		{name: "not json", body: `kinds=1`, code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, "/query", tt.body)
			require.Equal(t, tt.code, code, body)
			if tt.code != http.StatusOK {
				return
			}

			var got []types.Record
			require.NoError(t, json.Unmarshal([]byte(body), &got))
			ids := make([]types.RecordID, len(got))
			for i, r := range got {
				ids[i] = r.ID
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestServer_RepoStatus(t *testing.T) {
	other := strings.Repeat("ab", 32)

	t.Run("current", func(t *testing.T) {
		s := newTestServer(t, testPublisher, []types.Record{
			repoRecord(testPublisher, repoUpdatedAt-10),
			repoRecord(testPublisher, repoUpdatedAt+10),
		})

		code, body := s.do(t, http.MethodGet, "/repos/alice/relay/status", "")
		require.Equal(t, http.StatusOK, code, body)

		var got repoStatus
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.True(t, got.Current)
		require.NotNil(t, got.Published)
		assert.Equal(t, int64(repoUpdatedAt+10), got.Published.CreatedAt)
		assert.Equal(t, int64(repoUpdatedAt), got.Expected.CreatedAt)

		filters := s.relay.Filters()
		require.Len(t, filters, 1)
		assert.Equal(t, []types.PubKey{testPublisher}, filters[0].Authors)
		assert.Equal(t, []string{"alice/relay"}, filters[0].Tags["d"])
	})

	t.Run("stale", func(t *testing.T) {
		s := newTestServer(t, testPublisher, []types.Record{
			repoRecord(testPublisher, repoUpdatedAt-10),
		})

		_, body := s.do(t, http.MethodGet, "/repos/alice/relay/status", "")
		var got repoStatus
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.False(t, got.Current)
		assert.NotNil(t, got.Published)
	})

	t.Run("only other authors", func(t *testing.T) {
		s := newTestServer(t, testPublisher, []types.Record{
			repoRecord(other, repoUpdatedAt+10),
		})
		// relays are free to ignore the author constraint
		s.relay.Match = func(types.Filter, types.Record) bool { return true }

		_, body := s.do(t, http.MethodGet, "/repos/alice/relay/status", "")
		var got repoStatus
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Nil(t, got.Published)
		assert.False(t, got.Current)
	})

	t.Run("unknown repository", func(t *testing.T) {
		s := newTestServer(t, testPublisher, nil)
		code, _ := s.do(t, http.MethodGet, "/repos/alice/missing/status", "")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("no publisher", func(t *testing.T) {
		s := newTestServer(t, "", nil)
		code, _ := s.do(t, http.MethodGet, "/repos/alice/relay/status", "")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, "", nil)

	code, _ := s.do(t, http.MethodPost, "/query", `{"kinds":[1]}`)
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "fanout_queries_total 1")
}
