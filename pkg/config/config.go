package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Default relay sets. Publishing is out of scope, so there is no write set.
var (
	DefaultReadRelays = []string{
		"wss://relay.nostr.band/all",
		"wss://nos.lol",
		"wss://relay.damus.io",
	}
	DefaultSearchRelays = []string{"wss://relay.nostr.band"}
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultGitHubAPI     = "https://api.github.com"
	DefaultListenAddress = ":8080"
)

type Config struct {
	Relays    RelayConfig     `yaml:"relays"`
	Directory DirectoryConfig `yaml:"directory"`
	GitHub    GitHubConfig    `yaml:"github"`
	Server    ServerConfig    `yaml:"server"`

	// Publisher is the hex key that authors repository records
	Publisher string `yaml:"publisher"`
}

type RelayConfig struct {
	Read    []string      `yaml:"read"`
	Search  []string      `yaml:"search"`
	Timeout time.Duration `yaml:"timeout"`
}

// DirectoryConfig points at the handle -> key lookup service. An empty URL
// disables that cascade step.
type DirectoryConfig struct {
	URL string `yaml:"url"`
}

type GitHubConfig struct {
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"token"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

// Default returns a configuration using the public relay set
func Default() *Config {
	return &Config{
		Relays: RelayConfig{
			Read:    append([]string(nil), DefaultReadRelays...),
			Search:  append([]string(nil), DefaultSearchRelays...),
			Timeout: DefaultTimeout,
		},
		GitHub: GitHubConfig{APIURL: DefaultGitHubAPI},
		Server: ServerConfig{Address: DefaultListenAddress},
	}
}

// Load reads a YAML (or JSON) config file over the defaults, then applies
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Relays.Read = getEnvList("NOSTRREPOS_READ_RELAYS", c.Relays.Read)
	c.Relays.Search = getEnvList("NOSTRREPOS_SEARCH_RELAYS", c.Relays.Search)
	c.Directory.URL = getEnv("NOSTRREPOS_DIRECTORY_URL", c.Directory.URL)
	c.GitHub.APIURL = getEnv("NOSTRREPOS_GITHUB_API", c.GitHub.APIURL)
	c.GitHub.Token = getEnv("NOSTRREPOS_GITHUB_TOKEN", c.GitHub.Token)
	c.Server.Address = getEnv("NOSTRREPOS_LISTEN", c.Server.Address)
	c.Publisher = getEnv("NOSTRREPOS_PUBLISHER", c.Publisher)

	if v := os.Getenv("NOSTRREPOS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid NOSTRREPOS_TIMEOUT: %w", err)
		}
		c.Relays.Timeout = d
	}
	return nil
}

// Validate reports every problem found, not just the first
func (c *Config) Validate() error {
	var err error

	if len(c.Relays.Read) == 0 {
		err = multierr.Append(err, errors.New("relays.read: at least one relay is required"))
	}
	for _, list := range [][]string{c.Relays.Read, c.Relays.Search} {
		for _, u := range list {
			err = multierr.Append(err, validateRelayURL(u))
		}
	}
	if c.Relays.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("relays.timeout: must be positive, got %s", c.Relays.Timeout))
	}
	if c.Directory.URL != "" {
		err = multierr.Append(err, validateHTTPURL("directory.url", c.Directory.URL))
	}
	err = multierr.Append(err, validateHTTPURL("github.api_url", c.GitHub.APIURL))
	if c.Publisher != "" && !isHexKey(c.Publisher) {
		err = multierr.Append(err, fmt.Errorf("publisher: expected 64 hex characters, got %q", c.Publisher))
	}

	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validateRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("relay %q: %w", raw, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("relay %q: expected a ws:// or wss:// URL", raw)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: expected an http(s) URL, got %q", field, raw)
	}
	return nil
}

func isHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable: wss://a,wss://b
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
