/**
 * @description
 * This is the main entry point for the ledger-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, message broker, the session manager, the ledger engine, and the
 * HTTP server. It wires everything together and starts the service.
 *
 * Key features:
 * - Degrades gracefully: a missing database URL falls back to the in-memory
 *   store, missing RabbitMQ falls back to the no-op publisher, and missing
 *   Redis disables login throttling. The lockout state machine never depends
 *   on any of them.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/auth, internal/config, internal/store:
 *   Internal packages for the service.
 * - pkg/hasher, pkg/rabbitmq: Secret hashing and event publishing.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/frappster/ledger-service/internal/api"
	"github.com/frappster/ledger-service/internal/app"
	"github.com/frappster/ledger-service/internal/auth"
	"github.com/frappster/ledger-service/internal/config"
	"github.com/frappster/ledger-service/internal/store"
	"github.com/frappster/ledger-service/pkg/hasher"
	rmrabbit "github.com/frappster/ledger-service/pkg/rabbitmq"
)

func main() {
	// Load optional .env file before the config layer reads the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment values\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting ledger-service\" port=%s", cfg.ServerPort)

	// Establish the record store: PostgreSQL when configured, in-memory
	// otherwise.
	var recordStore store.Store
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}

		poolConfig.MaxConns = 100
		poolConfig.MinConns = 20
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		// Disable prepared statement caching to prevent conflicts
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()

		pgStore := store.NewPostgresStore(dbpool)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"schema setup failed\" err=%v", err)
		}
		recordStore = pgStore
		log.Println("level=info component=bootstrap msg=\"database connected\"")
	} else {
		recordStore = store.NewMemoryStore()
		log.Println("level=warn component=bootstrap msg=\"no database url configured; using in-memory store\" env=DATABASE_URL")
	}

	// Initialize the RabbitMQ producer to publish ledger events.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis-backed login throttling.
	var redisClient *redis.Client
	if cfg.LoginRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; login throttling disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; login throttling disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; login throttling disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the core collaborators.
	secretHasher := hasher.NewBcrypt(cfg.BcryptCost)
	sessionManager := auth.NewManager(recordStore, secretHasher, auth.Config{
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockoutWindow:    time.Duration(cfg.LoginLockoutSeconds) * time.Second,
	})
	if redisClient != nil {
		sessionManager.SetLoginLimiter(auth.NewRedisLoginLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.LoginRateLimitPerMinute))
	}

	ledgerService := app.NewService(recordStore, sessionManager, producer)
	identityService := app.NewIdentityService(recordStore, sessionManager, secretHasher, int32(cfg.BalanceScale))

	// Create the initial administrator so a fresh deployment can be managed.
	if err := identityService.EnsureBootstrapAdmin(context.Background(), cfg.BootstrapAdminLoginID, cfg.BootstrapAdminSecret); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"bootstrap administrator setup failed\" err=%v", err)
	}

	// Initialize the API layer.
	tokenIssuer := api.NewTokenIssuer(cfg.JWTSecret, sessionManager)
	handlers := api.NewLedgerHandlers(ledgerService, identityService, sessionManager, tokenIssuer)

	router := chi.NewRouter()
	router.Mount("/ledger", api.LedgerRoutes(handlers, tokenIssuer))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
