package flights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hbinjamal/travelhub/internal/cache"
	"github.com/hbinjamal/travelhub/internal/fetch"
	"github.com/hbinjamal/travelhub/internal/rates"
)

// ErrNoResults means a departure or arrival city resolved to no airport.
var ErrNoResults = errors.New("could not find arrival or departure airport")

const (
	cacheTTL = 24 * time.Hour

	// Flight prices are more volatile than hotel or attraction data, so the
	// raw round-trip search is cached for a shorter window.
	searchTTL = 2 * time.Hour

	// Each extra offer costs one price-detail call; ten bounds the fan-out.
	maxOffers = 10
)

// URLs holds the flight provider endpoints.
type URLs struct {
	Autocomplete string
	RoundTrip    string
	PriceDetail  string
}

// Aggregator resolves cities to airports, fetches round-trip offers with
// per-offer pricing, and normalizes segments into outbound/return sets.
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

// airportResolution is the cached shape for one resolved city.
type airportResolution struct {
	Code     string        `json:"code"`
	Airports []AirportInfo `json:"airports"`
}

// ResolveAirport maps a city name to its primary airport code plus every
// matching airport, cached for 24h. A city with no airports resolves to
// ("", nil) rather than an error.
func (a *Aggregator) ResolveAirport(ctx context.Context, city string) (string, []AirportInfo, error) {
	key := "airport_info:" + city

	if cached, err := a.store.Get(ctx, key); err != nil {
		a.log.Warn("cache read failed", "key", key, "err", err)
	} else if cached != nil {
		var res airportResolution
		if err := json.Unmarshal(cached, &res); err == nil {
			return res.Code, res.Airports, nil
		}
	}

	body, err := a.client.Get(ctx, a.urls.Autocomplete, url.Values{"query": {city}})
	if err != nil {
		return "", nil, fmt.Errorf("flight autocomplete for %s: %w", city, err)
	}

	var raw struct {
		Data []rawAirportEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", nil, fmt.Errorf("decoding flight autocomplete for %s: %w", city, err)
	}

	var res airportResolution
	for _, entry := range raw.Data {
		if entry.Type != "AIRPORT" {
			continue
		}
		if res.Code == "" {
			res.Code = entry.Code
		}
		info := AirportInfo{
			Name:        entry.Name,
			Code:        entry.Code,
			CityName:    entry.CityName,
			CountryName: entry.CountryName,
		}
		if entry.DistanceToCity != nil {
			info.DistanceToCity = entry.DistanceToCity.Value
		}
		res.Airports = append(res.Airports, info)
	}

	if res.Code == "" {
		return "", nil, nil
	}

	if b, err := json.Marshal(res); err == nil {
		if err := a.store.SetEx(ctx, key, cacheTTL, b); err != nil {
			a.log.Warn("cache write failed", "key", key, "err", err)
		}
	}

	return res.Code, res.Airports, nil
}

// Search fetches round-trip offers between two cities and assembles the
// normalized outbound/return sets. The whole assembled response is cached.
func (a *Aggregator) Search(ctx context.Context, arrivalCity, departDate, returnDate, departureCity string) (*RoundTrip, error) {
	key := fmt.Sprintf("flights:%s:%s:%s:%s", arrivalCity, departDate, returnDate, departureCity)

	if cached, err := a.store.Get(ctx, key); err != nil {
		a.log.Warn("cache read failed", "key", key, "err", err)
	} else if cached != nil {
		var trip RoundTrip
		if err := json.Unmarshal(cached, &trip); err == nil {
			return &trip, nil
		}
	}

	arrivalID, arrivalAirports, err := a.ResolveAirport(ctx, arrivalCity)
	if err != nil {
		return nil, err
	}
	departureID, departureAirports, err := a.ResolveAirport(ctx, departureCity)
	if err != nil {
		return nil, err
	}
	if arrivalID == "" || departureID == "" {
		return nil, ErrNoResults
	}

	body, err := a.client.CachedGet(ctx, a.urls.RoundTrip, url.Values{
		"departId":   {departureID},
		"arrivalId":  {arrivalID},
		"departDate": {departDate},
		"returnDate": {returnDate},
	}, searchTTL)
	if err != nil {
		return nil, fmt.Errorf("flight search %s-%s: %w", departureID, arrivalID, err)
	}

	var raw struct {
		Data struct {
			FlightOffers []rawOffer `json:"flightOffers"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding flight search %s-%s: %w", departureID, arrivalID, err)
	}

	offers := raw.Data.FlightOffers
	if len(offers) > maxOffers {
		offers = offers[:maxOffers]
	}

	table, err := a.rates.Rates(ctx, rates.BaseCurrency)
	if err != nil {
		return nil, err
	}

	prices := make([]PriceDetail, len(offers))
	g, gCtx := errgroup.WithContext(ctx)
	for i, offer := range offers {
		g.Go(func() error {
			detail, err := a.PriceDetail(gCtx, offer.Token)
			if err != nil {
				return err
			}
			prices[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trip := &RoundTrip{
		DepartureAirports: departureAirports,
		ArrivalAirports:   arrivalAirports,
		Outbound:          []Segment{},
		Return:            []Segment{},
	}

	for i, offer := range offers {
		travellers := len(offer.Travellers)
		if travellers == 0 {
			travellers = 1
		}

		var priceBHD *float64
		if prices[i].Price != nil && prices[i].Currency != nil {
			converted, err := a.rates.ConvertToBHD(ctx, *prices[i].Price, *prices[i].Currency)
			if err != nil {
				return nil, err
			}
			priceBHD = &converted
		}

		for _, seg := range offer.Segments {
			parsed := parseSegment(seg, offer.Token, priceBHD, table, travellers)

			// A segment departing from a third airport matches neither
			// list and is dropped.
			switch segmentCode(seg) {
			case departureID:
				trip.Outbound = append(trip.Outbound, parsed)
			case arrivalID:
				trip.Return = append(trip.Return, parsed)
			}
		}
	}

	if b, err := json.Marshal(trip); err == nil {
		if err := a.store.SetEx(ctx, key, cacheTTL, b); err != nil {
			a.log.Warn("cache write failed", "key", key, "err", err)
		}
	}

	return trip, nil
}

// PriceDetail fetches the rounded total price for one offer token, cached
// for 24h. Provider refusals (any non-2xx) degrade to null price and
// currency: a missing price must not fail the whole search.
func (a *Aggregator) PriceDetail(ctx context.Context, token string) (PriceDetail, error) {
	key := "flight_price:" + token

	if cached, err := a.store.Get(ctx, key); err != nil {
		a.log.Warn("cache read failed", "key", key, "err", err)
	} else if cached != nil {
		var detail PriceDetail
		if err := json.Unmarshal(cached, &detail); err == nil {
			return detail, nil
		}
	}

	body, err := a.client.Get(ctx, a.urls.PriceDetail, url.Values{"token": {token}})
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) || errors.Is(err, fetch.ErrRateLimited) {
			return PriceDetail{}, nil
		}
		return PriceDetail{}, fmt.Errorf("flight price for token %s: %w", token, err)
	}

	var raw struct {
		Data struct {
			TravellerPrices []struct {
				TravellerPriceBreakdown struct {
					TotalRounded struct {
						Units        *float64 `json:"units"`
						CurrencyCode *string  `json:"currencyCode"`
					} `json:"totalRounded"`
				} `json:"travellerPriceBreakdown"`
			} `json:"travellerPrices"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return PriceDetail{}, fmt.Errorf("decoding flight price for token %s: %w", token, err)
	}
	if len(raw.Data.TravellerPrices) == 0 {
		return PriceDetail{}, nil
	}

	total := raw.Data.TravellerPrices[0].TravellerPriceBreakdown.TotalRounded
	detail := PriceDetail{Price: total.Units, Currency: total.CurrencyCode}

	if b, err := json.Marshal(detail); err == nil {
		if err := a.store.SetEx(ctx, key, cacheTTL, b); err != nil {
			a.log.Warn("cache write failed", "key", key, "err", err)
		}
	}

	return detail, nil
}

func segmentCode(seg rawSegment) string {
	if seg.DepartureAirport == nil {
		return ""
	}
	return seg.DepartureAirport.Code
}

// parseSegment normalizes one provider segment with its legs.
func parseSegment(seg rawSegment, token string, priceBHD *float64, table *rates.Table, travellers int) Segment {
	parsed := Segment{
		Token:            token,
		TravellersCount:  travellers,
		Price:            priceBHD,
		Currency:         rates.BaseCurrency,
		BaseCurrencyCode: table.BaseCurrencyCode,
		BaseCurrencyDate: table.BaseCurrencyDate,
		DepartureTime:    seg.DepartureTime,
		ArrivalTime:      seg.ArrivalTime,
		DurationSeconds:  seg.TotalTime,
		DurationHours:    math.Round(float64(seg.TotalTime)/3600*100) / 100,
		Legs:             make([]Leg, 0, len(seg.Legs)),
	}
	if seg.DepartureAirport != nil {
		parsed.DepartureCity = seg.DepartureAirport.CityName
		parsed.DepartureCountry = seg.DepartureAirport.CountryName
		parsed.DepartureAirport = seg.DepartureAirport.Name
	}
	if seg.ArrivalAirport != nil {
		parsed.ArrivalCity = seg.ArrivalAirport.CityName
		parsed.ArrivalCountry = seg.ArrivalAirport.CountryName
		parsed.ArrivalAirport = seg.ArrivalAirport.Name
	}

	for _, leg := range seg.Legs {
		parsed.Legs = append(parsed.Legs, parseLeg(leg))
	}

	return parsed
}

// parseLeg extracts one hop. The surfaced flight number concatenates the
// operating carrier code with the numeric flight number; carrier name and
// logo come from the first carriersData entry when present.
func parseLeg(leg rawLeg) Leg {
	out := Leg{
		DepartureTime:   leg.DepartureTime,
		ArrivalTime:     leg.ArrivalTime,
		CabinClass:      leg.CabinClass,
		ArrivalTerminal: leg.ArrivalTerminal,
	}
	if leg.DepartureAirport != nil {
		out.DepartureAirport = leg.DepartureAirport.Name
		out.DepartureCity = leg.DepartureAirport.CityName
		out.DepartureCountry = leg.DepartureAirport.CountryName
	}
	if leg.ArrivalAirport != nil {
		out.ArrivalAirport = leg.ArrivalAirport.Name
		out.ArrivalCity = leg.ArrivalAirport.CityName
		out.ArrivalCountry = leg.ArrivalAirport.CountryName
	}
	if leg.FlightInfo != nil {
		carrier := ""
		if leg.FlightInfo.CarrierInfo != nil {
			carrier = leg.FlightInfo.CarrierInfo.OperatingCarrier
		}
		out.FlightNumber = carrier + leg.FlightInfo.FlightNumber.String()
	}
	if len(leg.CarriersData) > 0 {
		name := leg.CarriersData[0].Name
		logo := leg.CarriersData[0].Logo
		out.Carrier = &name
		out.CarrierLogo = &logo
	}
	return out
}
