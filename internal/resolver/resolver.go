package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/types"
)

// ErrNotFound is returned when the backend has no usable credentials for an
// agent. Empty credential fields count as not found, never as a partial config.
var ErrNotFound = errors.New("agent config not found")

const requestTimeout = 10 * time.Second

// cacheEntry is one cached resolution with its expiry
type cacheEntry struct {
	creds     types.AgentCredentials
	expiresAt time.Time
}

// inflight tracks a lookup in progress so concurrent requests for the same
// agent share one backend round-trip
type inflight struct {
	done  chan struct{}
	creds types.AgentCredentials
	err   error
}

// Resolver resolves agent names to vendor credentials via the backend config
// endpoint, caching successful results for a short TTL
type Resolver struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	cache    map[string]cacheEntry
	inflight map[string]*inflight
}

// New creates a Resolver against the given backend base URL
func New(baseURL string, ttl time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: requestTimeout},
		ttl:      ttl,
		logger:   logger.With().Str("component", "resolver").Logger(),
		cache:    make(map[string]cacheEntry),
		inflight: make(map[string]*inflight),
	}
}

// Resolve returns the vendor credentials for agentID, from cache when fresh
func (r *Resolver) Resolve(ctx context.Context, agentID string) (types.AgentCredentials, error) {
	if agentID == "" {
		return types.AgentCredentials{}, fmt.Errorf("%w: empty agent id", ErrNotFound)
	}

	r.mu.Lock()
	if entry, ok := r.cache[agentID]; ok && time.Now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.creds, nil
	}

	if call, ok := r.inflight[agentID]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.creds, call.err
		case <-ctx.Done():
			return types.AgentCredentials{}, ctx.Err()
		}
	}

	call := &inflight{done: make(chan struct{})}
	r.inflight[agentID] = call
	r.mu.Unlock()

	creds, err := r.fetch(ctx, agentID)

	r.mu.Lock()
	delete(r.inflight, agentID)
	if err == nil {
		r.cache[agentID] = cacheEntry{creds: creds, expiresAt: time.Now().Add(r.ttl)}
	}
	r.mu.Unlock()

	call.creds = creds
	call.err = err
	close(call.done)
	return creds, err
}

// Invalidate drops any cached entry for agentID
func (r *Resolver) Invalidate(agentID string) {
	r.mu.Lock()
	delete(r.cache, agentID)
	r.mu.Unlock()
}

// fetch performs the backend lookup
func (r *Resolver) fetch(ctx context.Context, agentID string) (types.AgentCredentials, error) {
	endpoint := fmt.Sprintf("%s/api/agents/%s/config", r.baseURL, url.PathEscape(agentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.AgentCredentials{}, fmt.Errorf("failed to build config request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return types.AgentCredentials{}, fmt.Errorf("config lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.AgentCredentials{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	if resp.StatusCode != http.StatusOK {
		return types.AgentCredentials{}, fmt.Errorf("config lookup failed: status %d", resp.StatusCode)
	}

	var creds types.AgentCredentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return types.AgentCredentials{}, fmt.Errorf("failed to decode config response: %w", err)
	}

	// A response missing either field is unresolvable, not a usable config
	if !creds.Valid() {
		r.logger.Warn().Str("agent_id", agentID).Msg("backend returned incomplete credentials")
		return types.AgentCredentials{}, fmt.Errorf("%w: incomplete credentials for %s", ErrNotFound, agentID)
	}

	r.logger.Debug().Str("agent_id", agentID).Msg("agent config resolved")
	return creds, nil
}
