package attractions_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hbinjamal/travelhub/internal/attractions"
	"github.com/hbinjamal/travelhub/internal/cache"
	"github.com/hbinjamal/travelhub/internal/fetch"
	"github.com/hbinjamal/travelhub/internal/rates"
)

const rateBody = `{
	"data": {
		"base_currency": "BHD",
		"base_currency_date": "2025-06-01",
		"exchange_rates": [{"currency": "EUR", "exchange_rate_buy": 0.5}]
	}
}`

// newAggregator wires an Aggregator against the given provider mux plus a
// stub rate provider, all sharing one miniredis.
func newAggregator(t *testing.T, mux *http.ServeMux) *attractions.Aggregator {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	store := cache.NewStore(rc)

	mux.HandleFunc("/rates", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rateBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetch.NewClient(fetch.Config{
		Store:  store,
		Logger: log,
		Pace:   rate.NewLimiter(rate.Inf, 1),
	})
	conv := rates.NewConverter(rates.Config{Store: store, URL: srv.URL + "/rates", Logger: log})

	return attractions.New(client, store, conv, attractions.URLs{
		Autocomplete:         srv.URL + "/autocomplete",
		Search:               srv.URL + "/search",
		AvailabilityCalendar: srv.URL + "/calendar",
		Availability:         srv.URL + "/availability",
		Detail:               srv.URL + "/detail",
	}, log)
}

func writeBody(w http.ResponseWriter, body string) {
	_, _ = w.Write([]byte(body))
}

func TestFindByCity_FullPipeline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/autocomplete", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Paris", r.URL.Query().Get("query"))
		writeBody(w, `{"data":{"products":[{"id":42},{"id":"ignored"}]}}`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		writeBody(w, `{"data":{"products":[
			{
				"id": "p1",
				"name": "Louvre Museum",
				"slug": "louvre",
				"reviewsStats": {"allReviewsCount": 120, "percentage": "95%"},
				"numericReviewsStats": {"average": 4.7, "total": 118},
				"primaryPhoto": {"small": "https://img.example/louvre.jpg"},
				"representativePrice": {"chargeAmount": 100, "currency": "EUR"}
			},
			{"id": 7, "name": "Hidden Garden"}
		]}}`)
	})
	mux.HandleFunc("/calendar", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "p1" {
			writeBody(w, `{"data":[
				{"date": "2025-07-01", "available": true},
				{"date": "2025-07-02", "available": "false"},
				{"date": "2025-07-03", "available": "true"}
			]}`)
			return
		}
		writeBody(w, `{"data":[]}`)
	})
	mux.HandleFunc("/availability", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-07-01", r.URL.Query().Get("date"))
		if r.URL.Query().Get("id") == "p1" {
			writeBody(w, `{"data":[{"start": "09:00"},{"start": "14:30"}]}`)
			return
		}
		writeBody(w, `{"data":[]}`)
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "louvre", r.URL.Query().Get("slug"))
		writeBody(w, `{"data":{"description":"World-famous art museum."}}`)
	})

	agg := newAggregator(t, mux)

	got, err := agg.FindByCity(context.Background(), "Paris", "2025-07-01", "2025-07-07", "2025-07-01")
	require.NoError(t, err)
	require.Len(t, got, 2)

	louvre := got[0]
	assert.Equal(t, "p1", louvre.ID)
	assert.Equal(t, "Louvre Museum", louvre.Name)
	assert.Equal(t, 120, louvre.AllReviewsCount)
	assert.Equal(t, "95%", louvre.PercentageReview)
	assert.Equal(t, 4.7, louvre.AverageReview)
	assert.Equal(t, "https://img.example/louvre.jpg", louvre.PhotoURL)
	require.NotNil(t, louvre.Description)
	assert.Equal(t, "World-famous art museum.", *louvre.Description)
	require.NotNil(t, louvre.Price)
	assert.Equal(t, 200.0, *louvre.Price, "100 EUR at a 0.5 buy rate")
	assert.Equal(t, "BHD", louvre.Currency)
	assert.Equal(t, "2025-06-01", louvre.BaseCurrencyDate)
	assert.Equal(t, []attractions.AvailableDate{{Date: "2025-07-01"}, {Date: "2025-07-03"}},
		louvre.AvailableDates, "unavailable dates are filtered out")
	assert.Equal(t, []attractions.Timing{{StartAt: "09:00"}, {StartAt: "14:30"}}, louvre.DailyTimings)

	// The bare product keeps zero-value stats and nil optionals.
	garden := got[1]
	assert.Equal(t, "7", garden.ID)
	assert.Nil(t, garden.Price)
	assert.Nil(t, garden.Description)
	assert.Empty(t, garden.PhotoURL)
	assert.Zero(t, garden.AllReviewsCount)
	assert.Empty(t, garden.AvailableDates)
}

func TestResolveLocation_CachedAcrossCalls(t *testing.T) {
	var autocompleteCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/autocomplete", func(w http.ResponseWriter, r *http.Request) {
		autocompleteCalls++
		writeBody(w, `{"data":{"products":[{"id":"loc-1"}]}}`)
	})

	agg := newAggregator(t, mux)
	ctx := context.Background()

	id, err := agg.ResolveLocation(ctx, "Rome")
	require.NoError(t, err)
	assert.Equal(t, "loc-1", id)

	// Case differences land on the same key.
	id, err = agg.ResolveLocation(ctx, "ROME")
	require.NoError(t, err)
	assert.Equal(t, "loc-1", id)
	assert.Equal(t, 1, autocompleteCalls)
}

func TestFindByCity_UnknownCity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/autocomplete", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, `{"data":{"products":[]}}`)
	})

	agg := newAggregator(t, mux)

	_, err := agg.FindByCity(context.Background(), "Atlantis", "2025-07-01", "2025-07-07", "2025-07-01")
	require.ErrorIs(t, err, attractions.ErrNoResults)
}

func TestFindByCity_EmptySearchIsOk(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/autocomplete", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, `{"data":{"products":[{"id":"loc-1"}]}}`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, `{"data":{"products":[]}}`)
	})

	agg := newAggregator(t, mux)

	got, err := agg.FindByCity(context.Background(), "Quietville", "2025-07-01", "2025-07-07", "2025-07-01")
	require.NoError(t, err, "a resolved city with no products is an empty result, not a failure")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearch_ResultsCached(t *testing.T) {
	var searchCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		searchCalls++
		writeBody(w, `{"data":{"products":[{"id":"p1","name":"One"}]}}`)
	})

	agg := newAggregator(t, mux)
	ctx := context.Background()

	_, err := agg.Search(ctx, "loc-1", "2025-07-01", "2025-07-07")
	require.NoError(t, err)
	_, err = agg.Search(ctx, "loc-1", "2025-07-01", "2025-07-07")
	require.NoError(t, err)
	assert.Equal(t, 1, searchCalls)

	// A different window is a different cache entry.
	_, err = agg.Search(ctx, "loc-1", "2025-08-01", "2025-08-07")
	require.NoError(t, err)
	assert.Equal(t, 2, searchCalls)
}
