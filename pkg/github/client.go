// Package github reads contributor profiles and repository metadata from
// the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nostrrepos/pkg/types"
)

// ErrNotFound is returned when the user or repository does not exist.
var ErrNotFound = errors.New("not found")

// Client talks to the GitHub REST API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the API at baseURL. The token is optional
// and raises the rate limit when set.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// userResponse mirrors the fields of GET /users/{login} we use
type userResponse struct {
	Login           string `json:"login"`
	Name            string `json:"name"`
	Bio             string `json:"bio"`
	Blog            string `json:"blog"`
	TwitterUsername string `json:"twitter_username"`
}

// Repository mirrors the fields of GET /repos/{owner}/{repo} we use.
type Repository struct {
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	Language    string    `json:"language"`
	License     *License  `json:"license"`
	Owner       Owner     `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type License struct {
	Key string `json:"key"`
}

type Owner struct {
	Login string `json:"login"`
}

// GetUser fetches a user and maps it to a contributor profile. Users
// without a display name fall back to their login.
func (c *Client) GetUser(ctx context.Context, login string) (types.ContributorProfile, error) {
	var u userResponse
	if err := c.get(ctx, "/users/"+url.PathEscape(login), &u); err != nil {
		return types.ContributorProfile{}, fmt.Errorf("fetching user %s: %w", login, err)
	}

	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = u.Login
	}
	return types.ContributorProfile{
		DisplayName:     name,
		ExternalHandle:  u.Login,
		SecondaryHandle: strings.TrimPrefix(strings.TrimSpace(u.TwitterUsername), "@"),
		ExternalURL:     strings.TrimSpace(u.Blog),
		Bio:             u.Bio,
	}, nil
}

// GetRepo fetches repository metadata
func (c *Client) GetRepo(ctx context.Context, owner, name string) (*Repository, error) {
	var r Repository
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
	if err := c.get(ctx, path, &r); err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, name, err)
	}
	return &r, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
