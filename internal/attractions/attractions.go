package attractions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hbinjamal/travelhub/internal/cache"
	"github.com/hbinjamal/travelhub/internal/fetch"
	"github.com/hbinjamal/travelhub/internal/rates"
)

// ErrNoResults means the city did not resolve to any attraction location.
// An empty search for a resolved location is not an error; it yields an
// empty result list.
var ErrNoResults = errors.New("no attractions found")

const cacheTTL = 24 * time.Hour

// URLs holds the attraction provider endpoints.
type URLs struct {
	Autocomplete         string
	Search               string
	AvailabilityCalendar string
	Availability         string
	Detail               string
}

// Aggregator resolves a city to attraction products and assembles each
// product's availability, description, and converted pricing.
type Aggregator struct {
	client *fetch.Client
	store  *cache.Store
	rates  *rates.Converter
	urls   URLs
	log    *slog.Logger
}

// New constructs an Aggregator.
func New(client *fetch.Client, store *cache.Store, conv *rates.Converter, urls URLs, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{client: client, store: store, rates: conv, urls: urls, log: log}
}

// ResolveLocation maps a city name to the provider's first matching product
// id. The resolved id is cached for 24h under the lowercased city name.
func (a *Aggregator) ResolveLocation(ctx context.Context, city string) (string, error) {
	key := "attraction_autocomplete:" + strings.ToLower(city)

	if cached, err := a.store.Get(ctx, key); err != nil {
		a.log.Warn("cache read failed", "key", key, "err", err)
	} else if cached != nil {
		var id string
		if err := json.Unmarshal(cached, &id); err == nil {
			return id, nil
		}
	}

	body, err := a.client.CachedGet(ctx, a.urls.Autocomplete, url.Values{"query": {city}}, cacheTTL)
	if err != nil {
		return "", fmt.Errorf("attraction autocomplete for %s: %w", city, err)
	}

	var raw struct {
		Data struct {
			Products []struct {
				ID flexID `json:"id"`
			} `json:"products"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decoding attraction autocomplete for %s: %w", city, err)
	}
	if len(raw.Data.Products) == 0 {
		return "", fmt.Errorf("resolving city %s: %w", city, ErrNoResults)
	}

	id := string(raw.Data.Products[0].ID)
	if b, err := json.Marshal(id); err == nil {
		if err := a.store.SetEx(ctx, key, cacheTTL, b); err != nil {
			a.log.Warn("cache write failed", "key", key, "err", err)
		}
	}

	return id, nil
}

// Search returns the raw product list for a location and date range.
func (a *Aggregator) Search(ctx context.Context, locationID, startDate, endDate string) ([]Product, error) {
	params := url.Values{
		"id":        {locationID},
		"startDate": {startDate},
		"endDate":   {endDate},
	}
	body, err := a.client.CachedGet(ctx, a.urls.Search, params, cacheTTL)
	if err != nil {
		return nil, fmt.Errorf("attraction search for %s: %w", locationID, err)
	}

	var raw struct {
		Data struct {
			Products []Product `json:"products"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding attraction search for %s: %w", locationID, err)
	}

	return raw.Data.Products, nil
}

// FindByCity is the full pipeline: resolve, search, build.
func (a *Aggregator) FindByCity(ctx context.Context, city, startDate, endDate, date string) ([]Attraction, error) {
	locationID, err := a.ResolveLocation(ctx, city)
	if err != nil {
		return nil, err
	}

	products, err := a.Search(ctx, locationID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return []Attraction{}, nil
	}

	return a.Build(ctx, products, date)
}

// Build assembles normalized attractions for every product. Per-product
// sub-fetches run as one concurrent batch per fetch kind — all calendars,
// then all slot lookups, then all descriptions — so the shared upstream
// limiter, not the pipeline shape, throttles actual concurrency. Results
// re-join by input index, so output order follows the product list.
func (a *Aggregator) Build(ctx context.Context, products []Product, date string) ([]Attraction, error) {
	table, err := a.rates.Rates(ctx, rates.BaseCurrency)
	if err != nil {
		return nil, err
	}

	calendars := make([][]AvailableDate, len(products))
	g, gCtx := errgroup.WithContext(ctx)
	for i, p := range products {
		g.Go(func() error {
			dates, err := a.availabilityCalendar(gCtx, string(p.ID))
			if err != nil {
				return err
			}
			calendars[i] = dates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	timings := make([][]Timing, len(products))
	g, gCtx = errgroup.WithContext(ctx)
	for i, p := range products {
		g.Go(func() error {
			slots, err := a.availabilitySlots(gCtx, string(p.ID), date)
			if err != nil {
				return err
			}
			timings[i] = slots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	descriptions := make([]*string, len(products))
	g, gCtx = errgroup.WithContext(ctx)
	for i, p := range products {
		g.Go(func() error {
			desc, err := a.description(gCtx, p.Slug)
			if err != nil {
				return err
			}
			descriptions[i] = desc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]Attraction, 0, len(products))
	for i, p := range products {
		attr := Attraction{
			ID:               string(p.ID),
			Name:             p.Name,
			Description:      descriptions[i],
			Currency:         rates.BaseCurrency,
			BaseCurrencyCode: table.BaseCurrencyCode,
			BaseCurrencyDate: table.BaseCurrencyDate,
			AvailableDates:   calendars[i],
			DailyTimings:     timings[i],
		}
		if p.ReviewsStats != nil {
			attr.AllReviewsCount = p.ReviewsStats.AllReviewsCount
			attr.PercentageReview = p.ReviewsStats.Percentage
		}
		if p.NumericReviewsStats != nil {
			attr.AverageReview = p.NumericReviewsStats.Average
			attr.TotalReview = p.NumericReviewsStats.Total
		}
		if p.PrimaryPhoto != nil {
			attr.PhotoURL = p.PrimaryPhoto.Small
		}
		if p.RepresentativePrice != nil && p.RepresentativePrice.ChargeAmount != nil {
			currency := p.RepresentativePrice.Currency
			if currency == "" {
				currency = "USD"
			}
			converted, err := a.rates.ConvertToBHD(ctx, *p.RepresentativePrice.ChargeAmount, currency)
			if err != nil {
				return nil, err
			}
			attr.Price = &converted
		}
		result = append(result, attr)
	}

	return result, nil
}

// availabilityCalendar returns the dates on which the product is available.
func (a *Aggregator) availabilityCalendar(ctx context.Context, id string) ([]AvailableDate, error) {
	body, err := a.client.CachedGet(ctx, a.urls.AvailabilityCalendar, url.Values{"id": {id}}, cacheTTL)
	if err != nil {
		return nil, fmt.Errorf("availability calendar for %s: %w", id, err)
	}

	var raw struct {
		Data []struct {
			Date      string          `json:"date"`
			Available json.RawMessage `json:"available"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding availability calendar for %s: %w", id, err)
	}

	dates := make([]AvailableDate, 0, len(raw.Data))
	for _, entry := range raw.Data {
		if isAvailable(entry.Available) {
			dates = append(dates, AvailableDate{Date: entry.Date})
		}
	}
	return dates, nil
}

// isAvailable interprets the provider's available flag, which arrives as a
// bool in some revisions and the strings "true"/"false" in others.
func isAvailable(raw json.RawMessage) bool {
	switch strings.Trim(string(raw), `"`) {
	case "false":
		return false
	}
	return true
}

// availabilitySlots returns the start times offered on a specific date.
func (a *Aggregator) availabilitySlots(ctx context.Context, id, date string) ([]Timing, error) {
	params := url.Values{"id": {id}, "date": {date}}
	body, err := a.client.CachedGet(ctx, a.urls.Availability, params, cacheTTL)
	if err != nil {
		return nil, fmt.Errorf("availability slots for %s on %s: %w", id, date, err)
	}

	var raw struct {
		Data []struct {
			Start string `json:"start"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding availability slots for %s: %w", id, err)
	}

	slots := make([]Timing, 0, len(raw.Data))
	for _, s := range raw.Data {
		slots = append(slots, Timing{StartAt: s.Start})
	}
	return slots, nil
}

// description fetches the long-form description by slug. A product without
// a slug has no description page; that is nil, not an error.
func (a *Aggregator) description(ctx context.Context, slug string) (*string, error) {
	if slug == "" {
		return nil, nil
	}

	body, err := a.client.CachedGet(ctx, a.urls.Detail, url.Values{"slug": {slug}}, cacheTTL)
	if err != nil {
		return nil, fmt.Errorf("attraction detail for %s: %w", slug, err)
	}

	var raw struct {
		Data struct {
			Description *string `json:"description"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding attraction detail for %s: %w", slug, err)
	}

	return raw.Data.Description, nil
}
