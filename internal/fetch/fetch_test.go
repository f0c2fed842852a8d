package fetch_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hbinjamal/travelhub/internal/cache"
	"github.com/hbinjamal/travelhub/internal/fetch"
)

// sleepRecorder collects requested backoff delays without actually waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestClient(t *testing.T, rec *sleepRecorder) (*fetch.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	cfg := fetch.Config{
		Store:  cache.NewStore(rc),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Pace:   rate.NewLimiter(rate.Inf, 1),
	}
	if rec != nil {
		cfg.Sleep = rec.sleep
	}
	return fetch.NewClient(cfg), mr
}

func TestCachedGet_SecondCallServedFromCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	params := url.Values{"q": {"paris"}}

	first, err := c.CachedGet(ctx, srv.URL, params, time.Hour)
	require.NoError(t, err)

	second, err := c.CachedGet(ctx, srv.URL, params, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "second call must be a cache hit")
}

func TestCachedGet_DistinctParamsMissCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	_, err := c.CachedGet(ctx, srv.URL, url.Values{"q": {"paris"}}, time.Hour)
	require.NoError(t, err)
	_, err = c.CachedGet(ctx, srv.URL, url.Values{"q": {"rome"}}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedGet_RefetchesAfterTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c, mr := newTestClient(t, nil)
	ctx := context.Background()
	params := url.Values{"q": {"paris"}}

	_, err := c.CachedGet(ctx, srv.URL, params, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = c.CachedGet(ctx, srv.URL, params, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedGet_RateLimitRetriedOnceThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	c, _ := newTestClient(t, rec)

	_, err := c.CachedGet(context.Background(), srv.URL, nil, time.Hour)
	require.ErrorIs(t, err, fetch.ErrRateLimited)

	assert.Equal(t, int32(2), calls.Load(), "one retry after the first 429")
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.recorded())
}

func TestCachedGet_RateLimitThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"recovered":true}`))
	}))
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	c, _ := newTestClient(t, rec)

	body, err := c.CachedGet(context.Background(), srv.URL, nil, time.Hour)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recovered":true}`, string(body))

	// The recovered body must now be cached.
	_, err = c.CachedGet(context.Background(), srv.URL, nil, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetWithRetry_ExponentialBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	c, _ := newTestClient(t, rec)

	_, err := c.GetWithRetry(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, rec.recorded())
}

func TestGetWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	c, _ := newTestClient(t, rec)

	_, err := c.GetWithRetry(context.Background(), srv.URL, nil)
	require.ErrorIs(t, err, fetch.ErrExhausted)
	assert.Equal(t, int32(6), calls.Load())
	assert.Len(t, rec.recorded(), 5, "no sleep after the final attempt")
}

func TestGet_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c, _ := newTestClient(t, nil)

	_, err := c.Get(context.Background(), srv.URL, nil)
	var statusErr *fetch.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestGet_RateLimitFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c, _ := newTestClient(t, nil)

	_, err := c.Get(context.Background(), srv.URL, nil)
	require.ErrorIs(t, err, fetch.ErrRateLimited)
}

func TestClient_ConcurrencyBounded(t *testing.T) {
	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Get(ctx, srv.URL, url.Values{"n": {url.QueryEscape(time.Now().String()) + string(rune('a'+i))}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3), "at most three upstream calls in flight")
}
