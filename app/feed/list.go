package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyURL     = errors.New("feed URL is required")
	ErrRelativeURL  = errors.New("feed URL must be an absolute http(s) URL")
	ErrDuplicateURL = errors.New("duplicate feed URL")
)

// NormalizeURL validates raw as an absolute http(s) URL and drops its
// fragment, so that the same feed always maps to the same key.
func NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrRelativeURL, raw)
	}

	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// ListCache holds the feed list file loaded from disk. Reload replaces the
// cached list only when the whole file is valid.
type ListCache struct {
	path    string
	sources []Source
	mu      sync.RWMutex
}

func NewListCache(path string) *ListCache {
	return &ListCache{path: path}
}

func (lc *ListCache) Run() error {
	if _, err := os.Stat(lc.path); os.IsNotExist(err) {
		slog.Warn("Feed list file not found, starting with no feeds", "path", lc.path)
		return nil
	}

	sources, err := LoadList(lc.path)
	if err != nil {
		return fmt.Errorf("error loading %s: %w", lc.path, err)
	}

	lc.mu.Lock()
	lc.sources = sources
	lc.mu.Unlock()

	slog.Debug("Feed list loaded", "path", lc.path, "feeds", len(sources))
	return nil
}

func (lc *ListCache) GetSources() []Source {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	sourcesCopy := make([]Source, len(lc.sources))
	copy(sourcesCopy, lc.sources)
	return sourcesCopy
}

func (lc *ListCache) GetEnabledURLs() []string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	var urls []string
	for _, s := range lc.sources {
		if s.IsEnabled() {
			urls = append(urls, s.URL)
		}
	}
	return urls
}

func (lc *ListCache) Count() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return len(lc.sources)
}

// LoadList reads and validates a feed list file. URLs in the result are
// normalized.
func LoadList(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var list List
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateList(&list); err != nil {
		return nil, fmt.Errorf("invalid feed list %s: %w", path, err)
	}

	return list.Feeds, nil
}

func validateList(list *List) error {
	seen := make(map[string]int, len(list.Feeds))

	for i := range list.Feeds {
		normalized, err := NormalizeURL(list.Feeds[i].URL)
		if err != nil {
			return fmt.Errorf("feed at index %d: %w", i, err)
		}
		if prev, ok := seen[normalized]; ok {
			return fmt.Errorf("feed at index %d: %w (same as index %d)", i, ErrDuplicateURL, prev)
		}
		seen[normalized] = i
		list.Feeds[i].URL = normalized
	}

	return nil
}
