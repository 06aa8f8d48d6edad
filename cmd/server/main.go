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
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/database"
	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/logger"
	"github.com/iliyamo/ticket-reservation/internal/middleware"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/repository/memory"
	"github.com/iliyamo/ticket-reservation/internal/router"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, accounts, ready, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clk := clock.NewSystem()
	opts := []service.BookingOption{
		service.WithCancelWindow(cfg.CancelWindow),
		service.WithMetrics(service.NewMetrics(reg)),
		service.WithLogger(log.With().Str("component", "booking").Logger()),
	}
	if cfg.StoreDriver == config.DriverMySQL {
		opts = append(opts, service.WithRetry(repository.IsRetryable, 3))
	}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer pub.Close()
		opts = append(opts, service.WithPublisher(pub))
	}
	inventory := service.NewInventoryService(store, clk, log.With().Str("component", "inventory").Logger())
	booking := service.NewBookingService(store, clk, opts...)
	auth := service.NewAuthService(accounts, clk, service.AuthConfig{
		Secret:           cfg.JWTSecret,
		AccessTTL:        cfg.AccessTTL,
		RefreshTTL:       cfg.RefreshTTL,
		BcryptCost:       cfg.BcryptCost,
		AllowOwnerSignup: cfg.AllowOwnerSignup,
	}, log.With().Str("component", "auth").Logger())

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable; rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID(), echomw.Recover(), middleware.RequestLogger(log))
	e.RouteNotFound("/*", router.NotFound)

	router.RegisterRoutes(e, ready)
	if cfg.MetricsEnabled {
		router.RegisterMetrics(e, reg)
	}
	cacheCfg := config.LoadCacheConfig()
	router.RegisterTicketTypes(e, handler.NewTicketTypeHandler(inventory), cfg.JWTSecret,
		middleware.NewRedisCache(cacheCfg, rdb), middleware.EvictCache(cacheCfg, rdb))
	rl := config.LoadRateLimitConfig()
	router.RegisterOrders(e, handler.NewOrderHandler(booking), cfg.JWTSecret, middleware.NewTokenBucket(rl, rdb))
	authRL := rl
	authRL.KeyStrategy, authRL.Prefix = config.KeyByIP, rl.Prefix+":auth"
	router.RegisterAuth(e, handler.NewAuthHandler(auth), cfg.JWTSecret, middleware.NewTokenBucket(authRL, rdb))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("driver", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.OrderLogConsumer {
		g.Go(func() error {
			return queue.StartOrderLogConsumer(gctx, cfg.RabbitURL, cfg.OrderLogPath, log)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return
	}
	log.Info().Msg("server stopped")
}

// openStore returns the configured booking and account stores, a readiness
// check and a close function.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (service.Store, service.AccountStore, func(context.Context) error, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.New(), memory.NewAccounts(), nil, func() {}, nil
	}
	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, nil, err
		}
		log.Info().Msg("migrations applied")
	}
	store := repository.NewStore(db)
	return store, store, db.PingContext, func() { _ = db.Close() }, nil
}
