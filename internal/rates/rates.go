package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hbinjamal/travelhub/internal/cache"
)

// BaseCurrency is the fixed target currency every surfaced price converts into.
const BaseCurrency = "BHD"

const (
	tableTTL    = 24 * time.Hour
	httpTimeout = 10 * time.Second
)

// Table is a wholesale-replaced snapshot of currency→rate for one base
// currency. Rates are expressed as foreign units per 1 unit of base, so
// converting into the base currency divides by the rate.
type Table struct {
	BaseCurrencyCode string             `json:"base_currency"`
	BaseCurrencyDate string             `json:"base_currency_date"`
	Rates            map[string]float64 `json:"rates"`
}

// FetchError reports a non-200 response from the rate provider.
type FetchError struct {
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching exchange rates returned status %d", e.StatusCode)
}

// UnknownCurrencyError reports a conversion request for a currency absent
// from the rate table.
type UnknownCurrencyError struct {
	Currency string
}

func (e *UnknownCurrencyError) Error() string {
	return fmt.Sprintf("exchange rate for %s not found", e.Currency)
}

// Converter maintains a dual-tier cached rate table: an in-process memory
// slot consulted first, then the shared Redis store, then the origin
// provider. Both tiers hold the table for 24 hours.
type Converter struct {
	tiers  []tier
	origin *origin
	log    *slog.Logger
}

// Config carries the collaborators for a Converter.
type Config struct {
	Store   *cache.Store
	URL     string
	Headers map[string]string
	Logger  *slog.Logger

	// Now is the clock used for memory-tier freshness. Nil means time.Now.
	Now func() time.Time
}

// NewConverter constructs a Converter from cfg, filling in defaults.
func NewConverter(cfg Config) *Converter {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Converter{
		tiers: []tier{
			&memoryTier{now: now, ttl: tableTTL},
			&storeTier{store: cfg.Store, ttl: tableTTL, log: log},
		},
		origin: &origin{
			url:     cfg.URL,
			headers: cfg.Headers,
			http:    &http.Client{Timeout: httpTimeout},
		},
		log: log,
	}
}

// Rates returns the rate table for base, reading through the tiers in
// priority order and backfilling every faster tier on the way out.
func (c *Converter) Rates(ctx context.Context, base string) (*Table, error) {
	for i, t := range c.tiers {
		table, err := t.read(ctx, base)
		if err != nil {
			c.log.Warn("rate tier read failed", "tier", i, "err", err)
			continue
		}
		if table != nil {
			c.backfill(ctx, base, table, i)
			return table, nil
		}
	}

	table, err := c.origin.fetch(ctx, base)
	if err != nil {
		return nil, err
	}

	c.backfill(ctx, base, table, len(c.tiers))
	return table, nil
}

// backfill writes table into every tier faster than the one it came from.
func (c *Converter) backfill(ctx context.Context, base string, table *Table, from int) {
	for i := from - 1; i >= 0; i-- {
		if err := c.tiers[i].write(ctx, base, table); err != nil {
			c.log.Warn("rate tier write failed", "tier", i, "err", err)
		}
	}
}

// ConvertToBHD converts amount from the given currency into BHD, rounded to
// 3 decimal places. BHD amounts pass through unchanged apart from rounding.
func (c *Converter) ConvertToBHD(ctx context.Context, amount float64, from string) (float64, error) {
	if from == BaseCurrency {
		return round3(amount), nil
	}

	table, err := c.Rates(ctx, BaseCurrency)
	if err != nil {
		return 0, err
	}

	rate, ok := table.Rates[from]
	if !ok || rate == 0 {
		return 0, &UnknownCurrencyError{Currency: from}
	}

	return round3(amount / rate), nil
}

// Reset clears the memory slot and deletes the Redis entry for base,
// forcing the next read to hit the origin provider.
func (c *Converter) Reset(ctx context.Context, base string) error {
	var firstErr error
	for _, t := range c.tiers {
		if err := t.invalidate(ctx, base); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// ---- tiers ----

// tier is one level of the read-through rate cache. read returns nil, nil
// when the tier has nothing fresh for the base currency.
type tier interface {
	read(ctx context.Context, base string) (*Table, error)
	write(ctx context.Context, base string, table *Table) error
	invalidate(ctx context.Context, base string) error
}

// memoryTier is the process-wide in-memory slot. Replacement is wholesale
// under the mutex; concurrent readers may see a stale-but-valid table.
type memoryTier struct {
	now func() time.Time
	ttl time.Duration

	mu        sync.RWMutex
	table     *Table
	base      string
	fetchedAt time.Time
}

func (m *memoryTier) read(_ context.Context, base string) (*Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.table == nil || m.base != base {
		return nil, nil
	}
	if m.now().Sub(m.fetchedAt) >= m.ttl {
		return nil, nil
	}
	return m.table, nil
}

func (m *memoryTier) write(_ context.Context, base string, table *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = table
	m.base = base
	m.fetchedAt = m.now()
	return nil
}

func (m *memoryTier) invalidate(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = nil
	m.fetchedAt = time.Time{}
	return nil
}

// storeTier keeps the table in Redis under exchange_rates:{base} so rate
// fetches survive process restarts.
type storeTier struct {
	store *cache.Store
	ttl   time.Duration
	log   *slog.Logger
}

func storeKey(base string) string {
	return "exchange_rates:" + base
}

func (s *storeTier) read(ctx context.Context, base string) (*Table, error) {
	raw, err := s.store.Get(ctx, storeKey(base))
	if err != nil || raw == nil {
		return nil, err
	}

	var table Table
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("unmarshaling cached rate table for %s: %w", base, err)
	}
	return &table, nil
}

func (s *storeTier) write(ctx context.Context, base string, table *Table) error {
	b, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("marshaling rate table for %s: %w", base, err)
	}
	return s.store.SetEx(ctx, storeKey(base), s.ttl, b)
}

func (s *storeTier) invalidate(ctx context.Context, base string) error {
	return s.store.Delete(ctx, storeKey(base))
}

// ---- origin ----

type origin struct {
	url     string
	headers map[string]string
	http    *http.Client
}

type providerResponse struct {
	Data struct {
		BaseCurrency     string `json:"base_currency"`
		BaseCurrencyDate string `json:"base_currency_date"`
		ExchangeRates    []struct {
			Currency string  `json:"currency"`
			BuyRate  float64 `json:"exchange_rate_buy"`
		} `json:"exchange_rates"`
	} `json:"data"`
}

func (o *origin) fetch(ctx context.Context, base string) (*Table, error) {
	params := url.Values{"baseCurrency": {base}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating rate request: %w", err)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching exchange rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading rate response: %w", err)
	}

	var raw providerResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding rate response: %w", err)
	}

	table := &Table{
		BaseCurrencyCode: raw.Data.BaseCurrency,
		BaseCurrencyDate: raw.Data.BaseCurrencyDate,
		Rates:            make(map[string]float64, len(raw.Data.ExchangeRates)),
	}
	if table.BaseCurrencyCode == "" {
		table.BaseCurrencyCode = base
	}
	for _, r := range raw.Data.ExchangeRates {
		if r.Currency == "" || r.BuyRate == 0 {
			continue
		}
		table.Rates[r.Currency] = r.BuyRate
	}

	return table, nil
}
