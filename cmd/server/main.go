package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"autoride/internal/app"
	"autoride/internal/chain"
	"autoride/internal/config"
	"autoride/internal/handler"
	"autoride/internal/logger"
	"autoride/internal/mq"
	internalRedis "autoride/internal/redis"
	"autoride/internal/repository"
	"autoride/internal/repository/memory"
	"autoride/internal/repository/postgres"
	"autoride/internal/service"
	"autoride/internal/ws"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	// Ride history archive.
	var db *sql.DB
	if cfg.History.Backend == "postgres" {
		db, err = app.NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()
		log.Info("Connected to PostgreSQL")
	}

	// Redis is optional.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("Connected to Redis")
	}

	// RabbitMQ is optional.
	broker, err := app.NewRabbitMQ(ctx, cfg.RabbitMQ, log)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	if broker != nil {
		defer broker.Close()
		log.Info("Connected to RabbitMQ")
	}

	// Contract gateway.
	var quoteCache chain.QuoteCache
	if redisClient != nil {
		quoteCache = internalRedis.NewCacheStore(redisClient, cfg.Redis.QuoteTTL)
	}
	gateway, closeWallet, err := app.NewGateway(ctx, cfg.Chain, quoteCache, log)
	if err != nil {
		log.Fatalf("failed to create contract gateway: %v", err)
	}
	defer closeWallet()

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := ws.NewHub(log)
	go hub.Run(runCtx)

	if gateway.Available() {
		go reloadAccountOnHangup(runCtx, gateway, log)
	}

	// Wire dependencies.
	bus := newEventBus(log, hub, broker, nrApp, cfg.RabbitMQ.Exchange)
	session := newSession(db, redisClient, bus, gateway, cfg, log)
	server := wireServer(session, gateway, hub, redisClient, nrApp, cfg)

	// Start server in goroutine.
	go func() {
		log.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	// Stop confirmations before the event bus so their transitions are delivered.
	session.Close()
	bus.Close()
	stop()

	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Info("Server exited")
}

// reloadAccountOnHangup switches the wallet to the current WALLET_PRIVATE_KEY
// on every SIGHUP.
func reloadAccountOnHangup(ctx context.Context, gateway *chain.Gateway, log *logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := gateway.SwitchAccount(config.WalletKey()); err != nil {
				log.WithError(err).Warn("wallet account not switched")
				continue
			}
			log.Info("wallet account reloaded")
		}
	}
}

// newEventBus starts the lifecycle event fan-out with every configured sink.
func newEventBus(log *logger.Logger, hub *ws.Hub, broker *mq.RabbitMQ, nrApp *newrelic.Application, exchange string) *service.EventBus {
	sinks := []service.EventSink{
		service.NewNotificationService(log),
		hub,
	}
	if broker != nil {
		sinks = append(sinks, mq.NewRideEventPublisher(broker, exchange))
	}
	if nrApp != nil {
		sinks = append(sinks, service.NewNewRelicSink(nrApp))
	}
	return service.NewEventBus(log, sinks...)
}

// newSession wires the lifecycle controller to the gateway.
func newSession(db *sql.DB, redisClient *redis.Client, bus *service.EventBus, gateway *chain.Gateway, cfg *config.Config, log *logger.Logger) *service.Session {
	var history repository.HistoryRepository = memory.NewHistoryRepository()
	if db != nil {
		history = postgres.NewHistoryRepository(db)
	}

	var locks service.WalletLocker
	if redisClient != nil {
		locks = internalRedis.NewLockStore(redisClient)
	}

	controller := service.NewRideLifecycleController(history, bus, log)
	return service.NewSession(controller, gateway, locks, cfg.Redis.LockTTL, log)
}

// wireServer builds the handlers and returns the HTTP server.
func wireServer(session *service.Session, gateway *chain.Gateway, hub *ws.Hub, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) *http.Server {
	fares := session.Controller().Fares()

	// Initialize handlers.
	rideHandler := handler.NewRideHandler(session, service.NewReceiptService(fares))
	chainHandler := handler.NewChainHandler(gateway, fares)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:  rideHandler,
		ChainHandler: chainHandler,
		Hub:          hub,
		RedisClient:  redisClient,
		NewRelicApp:  nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
