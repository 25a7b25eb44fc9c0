package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mauv0809/forecast-accuracy/internal/accuracy"
	"github.com/mauv0809/forecast-accuracy/internal/cache"
	"github.com/mauv0809/forecast-accuracy/internal/config"
	"github.com/mauv0809/forecast-accuracy/internal/db"
	"github.com/mauv0809/forecast-accuracy/internal/handlers"
	"github.com/mauv0809/forecast-accuracy/internal/ingest"
	"github.com/mauv0809/forecast-accuracy/internal/reconcile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Could not run migrations")
	}
	log.Info().Msg("Migrations completed")

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Connected to database")

	opts := []accuracy.Option{accuracy.WithThreshold(cfg.AccuracyThreshold)}
	if cfg.RedisAddr != "" {
		lb, err := cache.NewLeaderboards(ctx, cfg.RedisAddr, cfg.LeaderboardTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, leaderboard cache disabled")
		} else {
			defer lb.Close()
			opts = append(opts, accuracy.WithCache(lb))
			log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.LeaderboardTTL).Msg("Leaderboard cache enabled")
		}
	}
	engine := accuracy.NewEngine(db.NewRepository(pool), opts...)

	var handlerOpts []handlers.Option
	if cfg.NasdaqAPIKey != "" {
		sweeper := reconcile.NewSweeper(engine, ingest.NewClient(cfg.NasdaqAPIKey), cfg.SweepLimit)
		handlerOpts = append(handlerOpts, handlers.WithSweeper(sweeper))
		log.Info().Msg("Price source initialized")
		if cfg.SweepInterval > 0 {
			go runSweeps(ctx, sweeper, cfg.SweepInterval)
		}
	} else {
		log.Warn().Msg("NASDAQ_API_KEY not set, due reconciliation disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	handlers.New(engine, handlerOpts...).Register(e)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

// runSweeps reconciles due records every interval until ctx ends.
func runSweeps(ctx context.Context, s *reconcile.Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if _, err := s.Run(ctx, t); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Scheduled sweep failed")
			}
		}
	}
}

func setupLogging(logLevel string) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
