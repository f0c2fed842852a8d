package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hbinjamal/travelhub/internal/cache"
)

// maxInflight caps simultaneous upstream calls across the whole process.
// The limit models a single provider account's rate budget, so there is
// exactly one semaphore shared by every aggregator.
const maxInflight = 3

const httpTimeout = 30 * time.Second

// NewSemaphore returns the process-wide upstream concurrency limiter.
func NewSemaphore() *semaphore.Weighted {
	return semaphore.NewWeighted(maxInflight)
}

// Config carries the collaborators and knobs for a Client.
type Config struct {
	Store   *cache.Store
	Sem     *semaphore.Weighted
	Headers map[string]string
	Logger  *slog.Logger

	// Sleep is the delay function used between retries. Tests inject a
	// recorder; nil means real time.Sleep bounded by the context.
	Sleep func(ctx context.Context, d time.Duration) error

	// Pace spaces out uncached GETs (review-score lookups hammer the
	// provider hardest). Nil means one call per 400ms.
	Pace *rate.Limiter
}

// Client is the cached-HTTP-GET primitive shared by all aggregators.
// Every upstream call acquires a slot from the shared semaphore first.
type Client struct {
	http    *http.Client
	store   *cache.Store
	sem     *semaphore.Weighted
	headers map[string]string
	sleep   func(ctx context.Context, d time.Duration) error
	pace    *rate.Limiter
	log     *slog.Logger
}

// NewClient constructs a Client from cfg, filling in defaults.
func NewClient(cfg Config) *Client {
	c := &Client{
		http:    &http.Client{Timeout: httpTimeout},
		store:   cfg.Store,
		sem:     cfg.Sem,
		headers: cfg.Headers,
		sleep:   cfg.Sleep,
		pace:    cfg.Pace,
		log:     cfg.Logger,
	}
	if c.sem == nil {
		c.sem = NewSemaphore()
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	if c.pace == nil {
		c.pace = rate.NewLimiter(rate.Every(400*time.Millisecond), 1)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cacheKey hashes the URL plus the canonicalized query. url.Values.Encode
// sorts parameter names, so two semantically equal requests always land on
// the same key regardless of parameter ordering.
func cacheKey(rawURL string, params url.Values) string {
	sum := sha256.Sum256([]byte(rawURL + "?" + params.Encode()))
	return "http:" + hex.EncodeToString(sum[:])
}

// CachedGet returns the JSON body for the given URL and params, serving from
// cache within ttl and otherwise fetching upstream under the shared
// concurrency limit. A 429 response is retried once after a fixed delay.
func (c *Client) CachedGet(ctx context.Context, rawURL string, params url.Values, ttl time.Duration) (json.RawMessage, error) {
	key := cacheKey(rawURL, params)

	if cached, err := c.store.Get(ctx, key); err != nil {
		c.log.Warn("cache read failed, falling through to upstream", "url", rawURL, "err", err)
	} else if cached != nil {
		return cached, nil
	}

	body, err := c.getWithPolicy(ctx, rawURL, params, OncePolicy())
	if err != nil {
		return nil, err
	}

	if err := c.store.SetEx(ctx, key, ttl, body); err != nil {
		c.log.Warn("cache write failed", "url", rawURL, "err", err)
	}

	return body, nil
}

// GetWithRetry fetches without caching, retrying 429s with exponential
// backoff up to 6 attempts. Callers own caching of the composed result.
func (c *Client) GetWithRetry(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	return c.getWithPolicy(ctx, rawURL, params, PersistentPolicy())
}

// Get fetches without caching or retrying, paced by the client's rate
// limiter. Used where the caller owns the cache key and a 429 should fail fast.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	if err := c.pace.Wait(ctx); err != nil {
		return nil, err
	}

	body, status, err := c.doGet(ctx, rawURL, params)
	if err != nil {
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		return nil, fmt.Errorf("GET %s: %w", rawURL, ErrRateLimited)
	}
	if status < 200 || status >= 300 {
		return nil, &StatusError{URL: rawURL, StatusCode: status}
	}
	return body, nil
}

func (c *Client) getWithPolicy(ctx context.Context, rawURL string, params url.Values, pol Policy) (json.RawMessage, error) {
	for attempt := 0; attempt < pol.MaxAttempts; attempt++ {
		body, status, err := c.doGet(ctx, rawURL, params)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			c.log.Warn("upstream rate limited", "url", rawURL, "attempt", attempt+1)
			if attempt < pol.MaxAttempts-1 {
				if err := c.sleep(ctx, pol.Backoff(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		if status < 200 || status >= 300 {
			return nil, &StatusError{URL: rawURL, StatusCode: status}
		}

		return body, nil
	}

	return nil, fmt.Errorf("GET %s: %w", rawURL, pol.Exhausted)
}

// doGet performs one upstream GET under the shared semaphore. A transport
// error (including timeouts) is returned as err; HTTP statuses are left for
// the caller's retry policy to interpret.
func (c *Client) doGet(ctx context.Context, rawURL string, params url.Values) ([]byte, int, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, 0, err
	}
	defer c.sem.Release(1)

	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}

	return body, resp.StatusCode, nil
}
