package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/hbinjamal/travelhub/internal/storage"
)

// NewRouter builds and returns the Chi router with all routes configured.
// Health and auth endpoints are unauthenticated; everything else requires a
// bearer token. Rate limiting is applied globally: 60 requests per minute
// per IP.
func NewRouter(handlers *Handlers, jwtSecret string, db dbPinger, redisClient redisPinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(db, redisClient, log))
	r.Post("/api/v1/auth/register", handlers.Register)
	r.Post("/api/v1/auth/login", handlers.Login)

	r.Group(func(r chi.Router) {
		r.Use(JWTAuth(jwtSecret, handlers.users))

		r.Get("/api/v1/users/me", handlers.Me)

		r.Get("/api/v1/weather", handlers.Weather)
		r.Get("/api/v1/hotels", handlers.Hotels)
		r.Get("/api/v1/attractions", handlers.Attractions)
		r.Get("/api/v1/flights", handlers.Flights)
		r.Get("/api/v1/rates", handlers.Rates)
		r.Post("/api/v1/rates/reset", handlers.ResetRates)

		for _, route := range []struct {
			path string
			kind storage.ItemKind
		}{
			{"hotels", storage.KindHotel},
			{"flights", storage.KindFlight},
			{"attractions", storage.KindAttraction},
		} {
			r.Post("/api/v1/saved/"+route.path, handlers.SaveItem(route.kind))
			r.Get("/api/v1/saved/"+route.path, handlers.ListItems(route.kind))
			r.Delete("/api/v1/saved/"+route.path+"/{id}", handlers.DeleteItem(route.kind))
		}
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
