package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cartcache"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/dedup"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/poller"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/internal/telemetry"
)

func main() {
	cfg := config.Load()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.Setup(cfg.ServiceName, cfg.OTelStdout)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	// Storage for guest carts and OTP session records
	var (
		kv        storage.KV
		snapshots cartcache.CartCache
		closers   []func()
	)
	switch cfg.StorageDriver {
	case config.StorageRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Redis connection failed:", err)
		}
		log.Printf("Redis ping succeeded")
		kv = storage.NewRedisKV(redisClient)
		snapshots = cartcache.NewRedisCache(redisClient)
		closers = append(closers, func() { redisClient.Close() })
	case config.StorageMongo:
		mongoDB, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		mongoKV := storage.NewMongoKV(mongoDB)
		if err := mongoKV.CreateIndexes(ctx); err != nil {
			log.Fatalf("Failed to create MongoDB indexes: %v", err)
		}
		log.Printf("Connected to MongoDB at %s", cfg.MongoURI)
		kv = mongoKV
		snapshots = cartcache.NewKVCache(mongoKV)
		closers = append(closers, func() { mongoDB.Client().Disconnect(context.Background()) })
	case config.StorageMemory:
		memoryKV := storage.NewMemoryKV()
		log.Printf("Using in-memory storage, guest carts are lost on restart")
		kv = memoryKV
		snapshots = cartcache.NewKVCache(memoryKV)
		closers = append(closers, memoryKV.Close)
	default:
		log.Fatalf("Unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	client := remote.NewClient(remote.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout})
	guard := dedup.NewGuard()
	alternates := auth.NewAlternateSessions(kv)

	manager := session.NewManager(session.Deps{
		Client:       client,
		KV:           kv,
		Alternates:   alternates,
		Guard:        guard,
		Snapshots:    snapshots,
		GuestCartTTL: cfg.GuestCartTTL,
		IdleTTL:      cfg.SessionIdleTTL,
	})
	defer manager.Close()

	categories := catalog.NewStore(client.Public(), guard, cfg.CatalogTTL)
	sessions := h.NewSessions(manager, auth.NewProviderVerifier(cfg.ProviderSecret), alternates, h.CookieConfig{
		HashKey:        cfg.SessionSecret,
		BlockKey:       cfg.CookieBlockKey,
		Secure:         cfg.CookieSecure,
		ProviderCookie: cfg.ProviderCookie,
	})

	if len(cfg.KafkaBrokers) > 0 {
		orderEvents := poller.NewPoller(snapshots, manager, cfg.OrderEventsTopic, cfg.KafkaGroupID, cfg.KafkaBrokers...)
		defer orderEvents.Close()
		go orderEvents.Run(ctx)
		log.Printf("Consuming %s from %v", cfg.OrderEventsTopic, cfg.KafkaBrokers)
	}

	router := h.NewRouter(h.RouterConfig{
		Sessions:       sessions,
		Catalog:        categories,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("failed to flush traces: %v", err)
	}
	for _, closeFn := range closers {
		closeFn()
	}

	log.Println("server exited")
}
