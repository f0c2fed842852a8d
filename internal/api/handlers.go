package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hbinjamal/travelhub/internal/attractions"
	"github.com/hbinjamal/travelhub/internal/auth"
	"github.com/hbinjamal/travelhub/internal/fetch"
	"github.com/hbinjamal/travelhub/internal/flights"
	"github.com/hbinjamal/travelhub/internal/hotels"
	"github.com/hbinjamal/travelhub/internal/rates"
	"github.com/hbinjamal/travelhub/internal/storage"
	"github.com/hbinjamal/travelhub/internal/weather"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	users       UserRepo
	saved       SavedItemRepo
	hotels      HotelFinder
	attractions AttractionFinder
	flights     FlightFinder
	weather     WeatherFetcher
	rates       RateService
	jwtSecret   string
	log         *slog.Logger
}

// HandlersConfig carries the collaborators for NewHandlers.
type HandlersConfig struct {
	Users       UserRepo
	Saved       SavedItemRepo
	Hotels      HotelFinder
	Attractions AttractionFinder
	Flights     FlightFinder
	Weather     WeatherFetcher
	Rates       RateService
	JWTSecret   string
	Logger      *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(cfg HandlersConfig) *Handlers {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		users:       cfg.Users,
		saved:       cfg.Saved,
		hotels:      cfg.Hotels,
		attractions: cfg.Attractions,
		flights:     cfg.Flights,
		weather:     cfg.Weather,
		rates:       cfg.Rates,
		jwtSecret:   cfg.JWTSecret,
		log:         log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes the standard success envelope.
func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "Ok", "data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondError maps aggregation errors to user-visible status codes. Empty
// legitimate results become 404s with descriptive text; provider failures
// carry the originating upstream status where known.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("request failed", "path", r.URL.Path, "err", err)

	switch {
	case errors.Is(err, attractions.ErrNoResults),
		errors.Is(err, hotels.ErrNoResults),
		errors.Is(err, flights.ErrNoResults):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fetch.ErrRateLimited), errors.Is(err, fetch.ErrExhausted):
		writeError(w, http.StatusTooManyRequests, "upstream provider rate limited")
	default:
		var statusErr *fetch.StatusError
		var rateErr *rates.FetchError
		var currencyErr *rates.UnknownCurrencyError
		var weatherErr *weather.StatusError
		switch {
		case errors.As(err, &statusErr):
			writeError(w, statusErr.StatusCode, "upstream provider error")
		case errors.As(err, &rateErr):
			writeError(w, rateErr.StatusCode, "failed to fetch exchange rates")
		case errors.As(err, &currencyErr):
			writeError(w, http.StatusBadRequest, currencyErr.Error())
		case errors.As(err, &weatherErr):
			writeError(w, weatherErr.StatusCode, "error fetching weather data")
		default:
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

// ---- auth ----

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type publicUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func toPublicUser(u *storage.User) publicUser {
	return publicUser{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// Register handles POST /api/v1/auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.FirstName, req.LastName, req.Email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "email already registered")
			return
		}
		h.respondError(w, r, err)
		return
	}

	writeOK(w, toPublicUser(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.UserByEmail(r.Context(), req.Email)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}

	token, err := auth.GenerateAccessToken(user.ID, h.jwtSecret)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         toPublicUser(user),
	})
}

// Me handles GET /api/v1/users/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	writeOK(w, toPublicUser(currentUser(r)))
}

// ---- aggregation ----

// Weather handles GET /api/v1/weather?city=.
func (h *Handlers) Weather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}

	report, err := h.weather.Fetch(r.Context(), city)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeOK(w, report)
}

// Hotels handles GET /api/v1/hotels.
func (h *Handlers) Hotels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city := q.Get("city")
	checkin := q.Get("checkin_date")
	checkout := q.Get("checkout_date")
	if city == "" || checkin == "" || checkout == "" {
		writeError(w, http.StatusBadRequest, "city, checkin_date, and checkout_date are required")
		return
	}

	page := intQuery(q.Get("page"), 1)
	sortBy := intQuery(q.Get("sort_by"), 1)

	found, err := h.hotels.FindByCity(r.Context(), city, checkin, checkout, page, sortBy)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeOK(w, found)
}

// Attractions handles GET /api/v1/attractions.
func (h *Handlers) Attractions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city := q.Get("city")
	startDate := q.Get("start_date")
	endDate := q.Get("end_date")
	if city == "" || startDate == "" || endDate == "" {
		writeError(w, http.StatusBadRequest, "city, start_date, and end_date are required")
		return
	}
	date := q.Get("date")
	if date == "" {
		date = startDate
	}

	found, err := h.attractions.FindByCity(r.Context(), city, startDate, endDate, date)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if len(found) == 0 {
		// A resolved city with nothing on sale is an empty success, with
		// the status text naming the outcome.
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "No attractions found",
			"data":   []attractions.Attraction{},
		})
		return
	}

	writeOK(w, found)
}

// Flights handles GET /api/v1/flights.
func (h *Handlers) Flights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	arrivalCity := q.Get("arrival_city")
	departureCity := q.Get("departure_city")
	departDate := q.Get("depart_date")
	returnDate := q.Get("return_date")
	if arrivalCity == "" || departureCity == "" || departDate == "" || returnDate == "" {
		writeError(w, http.StatusBadRequest, "arrival_city, departure_city, depart_date, and return_date are required")
		return
	}

	trip, err := h.flights.Search(r.Context(), arrivalCity, departDate, returnDate, departureCity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeOK(w, trip)
}

// Rates handles GET /api/v1/rates?base=.
func (h *Handlers) Rates(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		base = rates.BaseCurrency
	}

	table, err := h.rates.Rates(r.Context(), base)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeOK(w, table)
}

// ResetRates handles POST /api/v1/rates/reset, forcing a refresh on the
// next rate lookup.
func (h *Handlers) ResetRates(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		base = rates.BaseCurrency
	}

	if err := h.rates.Reset(r.Context(), base); err != nil {
		h.respondError(w, r, err)
		return
	}

	writeOK(w, map[string]string{"reset": base})
}

// ---- saved items ----

type saveItemRequest struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// SaveItem returns a handler that stores one item of the given kind for the
// authenticated user.
func (h *Handlers) SaveItem(kind storage.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if len(req.Data) == 0 {
			req.Data = json.RawMessage("{}")
		}

		item, err := h.saved.SaveItem(r.Context(), kind, currentUser(r).ID, req.Name, req.Data)
		if err != nil {
			h.respondError(w, r, err)
			return
		}

		writeOK(w, item)
	}
}

// ListItems returns a handler that lists the user's saved items of one kind.
// No saved items is a 404 with descriptive text, matching the save flow's
// read-your-writes expectation.
func (h *Handlers) ListItems(kind storage.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.saved.ListItems(r.Context(), kind, currentUser(r).ID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		if len(items) == 0 {
			writeError(w, http.StatusNotFound, "no saved "+string(kind)+"s found for this user")
			return
		}

		writeOK(w, items)
	}
}

// DeleteItem returns a handler that deletes one saved item scoped by owner.
func (h *Handlers) DeleteItem(kind storage.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid item id")
			return
		}

		deleted, err := h.saved.DeleteItem(r.Context(), kind, currentUser(r).ID, itemID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, string(kind)+" not found")
			return
		}

		writeOK(w, map[string]int64{"deleted": itemID})
	}
}

func intQuery(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// ---- health ----

type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "ok"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			redisStatus = "error"
			status = http.StatusServiceUnavailable
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}

		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
