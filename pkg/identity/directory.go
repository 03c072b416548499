package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nostrrepos/pkg/types"
)

// Directory maps a secondary-platform handle to a network key.
type Directory interface {
	Lookup(ctx context.Context, handle string) (types.PubKey, bool, error)
}

// DirectoryClient queries a centralized handle -> key lookup service over
// HTTP: GET {base}/{handle} returning {"pubkey": "..."}.
type DirectoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDirectoryClient creates a client for the service at baseURL. A nil
// httpClient gets a default one with a 10s timeout.
func NewDirectoryClient(baseURL string, httpClient *http.Client) *DirectoryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &DirectoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type directoryResponse struct {
	PubKey string `json:"pubkey"`
}

// Lookup returns the key registered for handle. A 404 or an empty body
// field means no entry; other non-200 statuses are errors.
func (c *DirectoryClient) Lookup(ctx context.Context, handle string) (types.PubKey, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(handle), nil)
	if err != nil {
		return "", false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("requesting directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decoding response: %w", err)
	}
	if out.PubKey == "" {
		return "", false, nil
	}
	return types.PubKey(out.PubKey), true, nil
}
