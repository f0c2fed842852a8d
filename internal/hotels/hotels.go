package hotels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hbinjamal/travelhub/internal/cache"
	"github.com/hbinjamal/travelhub/internal/fetch"
	"github.com/hbinjamal/travelhub/internal/rates"
)

// ErrNoResults means the city did not resolve to any hotel location.
var ErrNoResults = errors.New("no hotel location found")

const cacheTTL = 24 * time.Hour

// URLs holds the hotel provider endpoints.
type URLs struct {
	Autocomplete string
	Search       string
	ReviewScores string
	Details      string
	Photos       string
}

// Aggregator resolves a city to a hotel location and assembles per-hotel
// review breakdowns, booking details, and converted pricing.
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

// ResolveLocation maps a city name to the provider's location id, cached
// for 24h under the lowercased city name.
func (a *Aggregator) ResolveLocation(ctx context.Context, city string) (string, error) {
	key := "hotel_location_id:" + strings.ToLower(city)

	if cached, err := a.store.Get(ctx, key); err != nil {
		a.log.Warn("cache read failed", "key", key, "err", err)
	} else if cached != nil {
		return string(cached), nil
	}

	body, err := a.client.CachedGet(ctx, a.urls.Autocomplete, url.Values{"query": {city}}, cacheTTL)
	if err != nil {
		return "", fmt.Errorf("hotel autocomplete for %s: %w", city, err)
	}

	var raw struct {
		Data []struct {
			ID json.Number `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decoding hotel autocomplete for %s: %w", city, err)
	}
	if len(raw.Data) == 0 {
		return "", fmt.Errorf("resolving city %s: %w", city, ErrNoResults)
	}

	id := raw.Data[0].ID.String()
	if err := a.store.SetEx(ctx, key, cacheTTL, []byte(id)); err != nil {
		a.log.Warn("cache write failed", "key", key, "err", err)
	}

	return id, nil
}

// Search returns the raw hotel list for a location, date range, page, and
// sort order. An empty page is a legitimate empty result, not an error.
func (a *Aggregator) Search(ctx context.Context, locationID, checkin, checkout string, page, sortBy int) ([]SearchHotel, error) {
	params := url.Values{
		"locationId":   {locationID},
		"checkinDate":  {checkin},
		"checkoutDate": {checkout},
		"units":        {"metric"},
		"page":         {strconv.Itoa(page)},
		"sortBy":       {strconv.Itoa(sortBy)},
	}
	body, err := a.client.CachedGet(ctx, a.urls.Search, params, cacheTTL)
	if err != nil {
		return nil, fmt.Errorf("hotel search for %s: %w", locationID, err)
	}

	var raw struct {
		Data []SearchHotel `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding hotel search for %s: %w", locationID, err)
	}

	return raw.Data, nil
}

// FindByCity is the full pipeline: resolve, search, then per-hotel review
// scores and full detail fetched concurrently across the entire result set.
// Results re-join by input index, so output order follows the search order.
func (a *Aggregator) FindByCity(ctx context.Context, city, checkin, checkout string, page, sortBy int) ([]Hotel, error) {
	locationID, err := a.ResolveLocation(ctx, city)
	if err != nil {
		return nil, err
	}

	found, err := a.Search(ctx, locationID, checkin, checkout, page, sortBy)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return []Hotel{}, nil
	}

	scores := make([][]ScorePercentage, len(found))
	details := make([]*FullDetail, len(found))

	g, gCtx := errgroup.WithContext(ctx)
	for i, h := range found {
		g.Go(func() error {
			s, err := a.ReviewScores(gCtx, h.ID)
			if err != nil {
				return err
			}
			scores[i] = s
			return nil
		})
		g.Go(func() error {
			d, err := a.FullDetail(gCtx, h.ID, checkin, checkout)
			if err != nil {
				return err
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]Hotel, 0, len(found))
	for i, h := range found {
		hotel, err := a.Assemble(ctx, h, scores[i], details[i])
		if err != nil {
			return nil, err
		}
		result = append(result, hotel)
	}

	return result, nil
}

// ReviewScores returns the score-percentage breakdown for one hotel,
// cached for 24h. The uncached call is paced to keep the review endpoint
// under the provider's budget.
func (a *Aggregator) ReviewScores(ctx context.Context, hotelID int64) ([]ScorePercentage, error) {
	key := "hotel_reviews:" + strconv.FormatInt(hotelID, 10)

	body, err := a.store.Get(ctx, key)
	if err != nil {
		a.log.Warn("cache read failed", "key", key, "err", err)
	}
	if body == nil {
		body, err = a.client.Get(ctx, a.urls.ReviewScores, url.Values{"hotelId": {strconv.FormatInt(hotelID, 10)}})
		if err != nil {
			return nil, fmt.Errorf("hotel reviews for %d: %w", hotelID, err)
		}
		if err := a.store.SetEx(ctx, key, cacheTTL, body); err != nil {
			a.log.Warn("cache write failed", "key", key, "err", err)
		}
	}

	var raw struct {
		Data struct {
			ScorePercentage []ScorePercentage `json:"score_percentage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding hotel reviews for %d: %w", hotelID, err)
	}

	return raw.Data.ScorePercentage, nil
}

// FullDetail fetches booking URL, address, and photo for one hotel, cached
// for 24h. The two upstream calls go through the exponential-backoff fetch
// because this endpoint pair is the most rate-limit-sensitive in the system.
func (a *Aggregator) FullDetail(ctx context.Context, hotelID int64, checkin, checkout string) (*FullDetail, error) {
	key := "hotel_full_detail:" + strconv.FormatInt(hotelID, 10)

	if cached, err := a.store.Get(ctx, key); err != nil {
		a.log.Warn("cache read failed", "key", key, "err", err)
	} else if cached != nil {
		var detail FullDetail
		if err := json.Unmarshal(cached, &detail); err == nil {
			return &detail, nil
		}
	}

	id := strconv.FormatInt(hotelID, 10)

	detailsBody, err := a.client.GetWithRetry(ctx, a.urls.Details, url.Values{
		"hotelId":      {id},
		"checkinDate":  {checkin},
		"checkoutDate": {checkout},
	})
	if err != nil {
		return nil, fmt.Errorf("hotel details for %d: %w", hotelID, err)
	}

	var rawDetails struct {
		Data struct {
			URL         string `json:"url"`
			AddressLine string `json:"hotel_address_line"`
		} `json:"data"`
	}
	if err := json.Unmarshal(detailsBody, &rawDetails); err != nil {
		return nil, fmt.Errorf("decoding hotel details for %d: %w", hotelID, err)
	}

	photoBody, err := a.client.GetWithRetry(ctx, a.urls.Photos, url.Values{"hotelId": {id}})
	if err != nil {
		return nil, fmt.Errorf("hotel photos for %d: %w", hotelID, err)
	}

	detail := &FullDetail{
		BookingURL: rawDetails.Data.URL,
		Address:    rawDetails.Data.AddressLine,
		PhotoURL:   extractPhotoURL(photoBody, hotelID),
	}

	if b, err := json.Marshal(detail); err == nil {
		if err := a.store.SetEx(ctx, key, cacheTTL, b); err != nil {
			a.log.Warn("cache write failed", "key", key, "err", err)
		}
	}

	return detail, nil
}

// extractPhotoURL digs the photo suffix out of the provider's nested photo
// payload (data.data.{hotelID}[0][4][5], prefixed by data.url_prefix).
// Every level may be missing or short; any gap degrades to an empty URL.
func extractPhotoURL(body []byte, hotelID int64) string {
	var raw struct {
		Data struct {
			URLPrefix string                     `json:"url_prefix"`
			Data      map[string]json.RawMessage `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ""
	}

	entry, ok := raw.Data.Data[strconv.FormatInt(hotelID, 10)]
	if !ok {
		return ""
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(entry, &rows); err != nil || len(rows) == 0 {
		return ""
	}

	var cells []json.RawMessage
	if err := json.Unmarshal(rows[0], &cells); err != nil || len(cells) < 5 {
		return ""
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(cells[4], &parts); err != nil || len(parts) < 6 {
		return ""
	}

	var suffix string
	if err := json.Unmarshal(parts[5], &suffix); err != nil || suffix == "" {
		return ""
	}

	return raw.Data.URLPrefix + suffix
}

// Assemble merges one search hit with its review breakdown and full detail
// into a normalized hotel. The price is labeled BHD only when conversion
// succeeded; otherwise the original currency is carried explicitly.
func (a *Aggregator) Assemble(ctx context.Context, h SearchHotel, scores []ScorePercentage, detail *FullDetail) (Hotel, error) {
	hotel := Hotel{
		ID:              h.ID,
		Name:            h.Name,
		ReviewScoreWord: h.ReviewScoreWord,
		ReviewScore:     h.ReviewScore,
		Score: ScoreBuckets{
			Wonderful: bucketAt(scores, 0),
			Good:      bucketAt(scores, 1),
			Okay:      bucketAt(scores, 2),
			Poor:      bucketAt(scores, 3),
			VeryPoor:  bucketAt(scores, 4),
		},
	}

	if detail != nil {
		hotel.BookingURL = detail.BookingURL
		hotel.Address = detail.Address
		hotel.PhotoURL = detail.PhotoURL
	}
	if h.Checkin != nil {
		hotel.CheckIn = WindowTimes{From: h.Checkin.FromTime, Until: h.Checkin.UntilTime}
	}
	if h.Checkout != nil {
		hotel.CheckOut = WindowTimes{From: h.Checkout.FromTime, Until: h.Checkout.UntilTime}
	}

	if h.PriceBreakdown != nil && h.PriceBreakdown.GrossPrice != nil {
		gross := h.PriceBreakdown.GrossPrice
		hotel.OriginalPrice = gross.Value
		hotel.OriginalCurrency = gross.Currency
		hotel.Currency = gross.Currency

		if gross.Value != nil && gross.Currency != "" {
			converted, err := a.rates.ConvertToBHD(ctx, *gross.Value, gross.Currency)
			if err != nil {
				return Hotel{}, err
			}
			hotel.LocalPrice = &converted
			hotel.Currency = rates.BaseCurrency
		}
	}

	return hotel, nil
}

// bucketAt returns the i-th score bucket, or a null bucket when the
// upstream array is shorter than five entries.
func bucketAt(scores []ScorePercentage, i int) Bucket {
	if i < len(scores) {
		return Bucket{Percent: scores[i].Percent, Count: scores[i].Count}
	}
	return Bucket{}
}
