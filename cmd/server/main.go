package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hbinjamal/travelhub/internal/api"
	"github.com/hbinjamal/travelhub/internal/attractions"
	"github.com/hbinjamal/travelhub/internal/cache"
	"github.com/hbinjamal/travelhub/internal/config"
	"github.com/hbinjamal/travelhub/internal/fetch"
	"github.com/hbinjamal/travelhub/internal/flights"
	"github.com/hbinjamal/travelhub/internal/hotels"
	"github.com/hbinjamal/travelhub/internal/rates"
	"github.com/hbinjamal/travelhub/internal/storage"
	"github.com/hbinjamal/travelhub/internal/weather"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	// Connect to PostgreSQL.
	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Run migrations.
	migrationsDir := "migrations"
	if err := storage.RunMigrations(ctx, pool, migrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("migrations applied")

	// Connect to Redis.
	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	// Wire dependencies. All aggregators share one fetch client so the
	// provider-wide concurrency limit holds across pipelines.
	repo := storage.NewRepository(pool)
	store := cache.NewStore(redisClient)

	client := fetch.NewClient(fetch.Config{
		Store:   store,
		Sem:     fetch.NewSemaphore(),
		Headers: cfg.Providers.Headers(),
		Logger:  log,
	})

	converter := rates.NewConverter(rates.Config{
		Store:   store,
		URL:     cfg.Providers.ExchangeRateURL,
		Headers: cfg.Providers.Headers(),
		Logger:  log,
	})

	hotelAgg := hotels.New(client, store, converter, hotels.URLs{
		Autocomplete: cfg.Providers.Hotels.AutocompleteURL,
		Search:       cfg.Providers.Hotels.SearchURL,
		ReviewScores: cfg.Providers.Hotels.ReviewScoresURL,
		Details:      cfg.Providers.Hotels.DetailsURL,
		Photos:       cfg.Providers.Hotels.PhotosURL,
	}, log)

	attractionAgg := attractions.New(client, store, converter, attractions.URLs{
		Autocomplete:         cfg.Providers.Attractions.AutocompleteURL,
		Search:               cfg.Providers.Attractions.SearchURL,
		AvailabilityCalendar: cfg.Providers.Attractions.CalendarURL,
		Availability:         cfg.Providers.Attractions.AvailabilityURL,
		Detail:               cfg.Providers.Attractions.DetailURL,
	}, log)

	flightAgg := flights.New(client, store, converter, flights.URLs{
		Autocomplete: cfg.Providers.Flights.AutocompleteURL,
		RoundTrip:    cfg.Providers.Flights.RoundTripURL,
		PriceDetail:  cfg.Providers.Flights.PriceDetailURL,
	}, log)

	weatherClient := weather.NewClient(cfg.Providers.WeatherURL, cfg.Providers.WeatherKey)

	handlers := api.NewHandlers(api.HandlersConfig{
		Users:       repo,
		Saved:       repo,
		Hotels:      hotelAgg,
		Attractions: attractionAgg,
		Flights:     flightAgg,
		Weather:     weatherClient,
		Rates:       converter,
		JWTSecret:   cfg.JWTSecret,
		Logger:      log,
	})

	// Build router with pingers adapted for health check.
	dbPinger := &pgxPoolPinger{pool: pool}
	redisPinger := &redisPingerAdapter{client: redisClient}

	router := api.NewRouter(handlers, cfg.JWTSecret, dbPinger, redisPinger, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// pgxPoolPinger adapts pgxpool.Pool to the api.dbPinger interface.
type pgxPoolPinger struct {
	pool interface {
		Ping(ctx context.Context) error
	}
}

func (p *pgxPoolPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// redisPingerAdapter adapts redis.Client to the api.redisPinger interface.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
