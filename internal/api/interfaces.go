package api

import (
	"context"
	"encoding/json"

	"github.com/hbinjamal/travelhub/internal/attractions"
	"github.com/hbinjamal/travelhub/internal/flights"
	"github.com/hbinjamal/travelhub/internal/hotels"
	"github.com/hbinjamal/travelhub/internal/rates"
	"github.com/hbinjamal/travelhub/internal/storage"
	"github.com/hbinjamal/travelhub/internal/weather"
)

// UserRepo defines the user storage operations needed by handlers.
type UserRepo interface {
	CreateUser(ctx context.Context, firstName, lastName, email, passwordHash string) (*storage.User, error)
	UserByEmail(ctx context.Context, email string) (*storage.User, error)
	UserByID(ctx context.Context, id int64) (*storage.User, error)
}

// SavedItemRepo defines the saved-item storage operations needed by handlers.
type SavedItemRepo interface {
	SaveItem(ctx context.Context, kind storage.ItemKind, userID int64, name string, data json.RawMessage) (*storage.SavedItem, error)
	ListItems(ctx context.Context, kind storage.ItemKind, userID int64) ([]storage.SavedItem, error)
	DeleteItem(ctx context.Context, kind storage.ItemKind, userID, itemID int64) (bool, error)
}

// HotelFinder is the hotel aggregation pipeline.
type HotelFinder interface {
	FindByCity(ctx context.Context, city, checkin, checkout string, page, sortBy int) ([]hotels.Hotel, error)
}

// AttractionFinder is the attraction aggregation pipeline.
type AttractionFinder interface {
	FindByCity(ctx context.Context, city, startDate, endDate, date string) ([]attractions.Attraction, error)
}

// FlightFinder is the flight aggregation pipeline.
type FlightFinder interface {
	Search(ctx context.Context, arrivalCity, departDate, returnDate, departureCity string) (*flights.RoundTrip, error)
}

// WeatherFetcher is the weather pass-through.
type WeatherFetcher interface {
	Fetch(ctx context.Context, city string) (*weather.Report, error)
}

// RateService exposes the exchange-rate table and its explicit invalidation.
type RateService interface {
	Rates(ctx context.Context, base string) (*rates.Table, error)
	Reset(ctx context.Context, base string) error
}
