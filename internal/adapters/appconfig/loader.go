package appconfig

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"capi-relay/internal/config"
)

// maxProfileBytes caps the size of a fetched profile.
const maxProfileBytes = 1 << 20

// Loader implements ports.PolicyLoader against the AWS AppConfig agent's
// local HTTP endpoint.
type Loader struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
	cache      map[string]*config.Policy
	mu         sync.RWMutex
}

// NewLoader creates a new AppConfig loader.
func NewLoader(cfg config.AppConfigSettings, logger *slog.Logger) *Loader {
	return &Loader{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		endpoint: cfg.Endpoint,
		logger:   logger,
		cache:    make(map[string]*config.Policy),
	}
}

// LoadPolicy loads and validates the normalizer policy stored in profile.
// Successful loads are cached for the life of the process.
func (l *Loader) LoadPolicy(ctx context.Context, profile string) (*config.Policy, error) {
	l.mu.RLock()
	if cached, ok := l.cache[profile]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[profile]; ok {
		return cached, nil
	}

	data, err := l.loadProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", profile, err)
	}

	policy, err := config.ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", profile, err)
	}

	l.cache[profile] = policy
	l.logger.Debug("loaded normalizer policy", "profile", profile)

	return policy, nil
}

// loadProfile fetches a configuration profile from AppConfig.
func (l *Loader) loadProfile(ctx context.Context, profile string) ([]byte, error) {
	u, err := url.JoinPath(l.endpoint, profile+".yaml")
	if err != nil {
		return nil, fmt.Errorf("build profile url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			l.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config not found: %s (status %d)", profile, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
}

// ClearCache clears the policy cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*config.Policy)
}
