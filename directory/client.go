package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hupe1980/nurturemesh/core"
)

// Options configures the HTTP directory client.
type Options struct {
	// HTTPClient performs the requests. Defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each directory call. Applied to the default client
	// only; a caller-supplied client keeps its own timeout.
	Timeout time.Duration

	// FreshnessWindow bounds how long discovery results stay valid. A
	// record older than the window is treated as stale and dropped; the
	// next Discover issues a fresh query.
	FreshnessWindow time.Duration

	// Now supplies the clock; overridden in tests.
	Now func() time.Time
}

// Client talks to an external agent directory service.
//
// Protocol:
//
//	POST {endpoint}/agents/register  {capability, name, address, description}
//	GET  {endpoint}/agents?capability=X  →  {"agents": [...]}
type Client struct {
	endpoint string
	http     *http.Client
	opts     Options

	mu         sync.Mutex
	registered map[string]core.CapabilityRecord // capability|address -> ack
	cache      map[string]cachedDiscovery
}

type cachedDiscovery struct {
	records   []core.CapabilityRecord
	fetchedAt time.Time
}

// NewClient constructs a client for the directory at endpoint. Defaults:
// 10s request timeout, 5 minute freshness window.
func NewClient(endpoint string, optFns ...func(o *Options)) *Client {
	opts := Options{
		Timeout:         10 * time.Second,
		FreshnessWindow: 5 * time.Minute,
		Now:             time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		endpoint:   endpoint,
		http:       opts.HTTPClient,
		opts:       opts,
		registered: make(map[string]core.CapabilityRecord),
		cache:      make(map[string]cachedDiscovery),
	}
}

// Register advertises the capability. Re-registering an identical
// capability and address returns the previous acknowledgement without a
// network call. core.ErrRejected when the directory refuses; transport
// failures and 5xx responses classify as transient.
func (c *Client) Register(ctx context.Context, reg core.Registration) (core.CapabilityRecord, error) {
	key := reg.Capability + "|" + reg.Address
	c.mu.Lock()
	if rec, ok := c.registered[key]; ok {
		c.mu.Unlock()
		return rec, nil
	}
	c.mu.Unlock()

	body, err := json.Marshal(reg)
	if err != nil {
		return core.CapabilityRecord{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/agents/register", bytes.NewReader(body))
	if err != nil {
		return core.CapabilityRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return core.CapabilityRecord{}, core.Transient("directory.register", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var rec core.CapabilityRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return core.CapabilityRecord{}, fmt.Errorf("decode register response: %w", err)
		}
		if rec.FreshAt.IsZero() {
			rec.FreshAt = c.opts.Now()
		}
		c.mu.Lock()
		c.registered[key] = rec
		c.mu.Unlock()
		return rec, nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusForbidden:
		return core.CapabilityRecord{}, fmt.Errorf("%w: %s", core.ErrRejected, resp.Status)
	default:
		return core.CapabilityRecord{}, core.Transient("directory.register", fmt.Errorf("unexpected status %s", resp.Status))
	}
}

// Discover returns current advertisers of the capability. Results fresher
// than the window are served from the last response; anything older
// triggers a new query, and stale records in a response are dropped.
func (c *Client) Discover(ctx context.Context, capability string) ([]core.CapabilityRecord, error) {
	now := c.opts.Now()

	c.mu.Lock()
	if cached, ok := c.cache[capability]; ok && now.Sub(cached.fetchedAt) < c.opts.FreshnessWindow {
		out := append([]core.CapabilityRecord(nil), cached.records...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	u := fmt.Sprintf("%s/agents?capability=%s", c.endpoint, url.QueryEscape(capability))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.Transient("directory.discover", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.Transient("directory.discover", fmt.Errorf("unexpected status %s", resp.Status))
	}

	var payload struct {
		Agents []core.CapabilityRecord `json:"agents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode discover response: %w", err)
	}

	fresh := make([]core.CapabilityRecord, 0, len(payload.Agents))
	for _, rec := range payload.Agents {
		if rec.FreshAt.IsZero() {
			rec.FreshAt = now
		}
		if now.Sub(rec.FreshAt) >= c.opts.FreshnessWindow {
			continue // stale advertiser, must be re-queried later
		}
		fresh = append(fresh, rec)
	}

	c.mu.Lock()
	c.cache[capability] = cachedDiscovery{records: fresh, fetchedAt: now}
	c.mu.Unlock()
	return append([]core.CapabilityRecord(nil), fresh...), nil
}

// Interface compliance (compile-time assertion)
var _ core.DirectoryClient = (*Client)(nil)
