// Command gateway runs the REST caching gateway in front of a single Nostr
// relay: cached filter queries, profile/event shorthands, and an
// authenticated publish pipeline with retry and dead-lettering.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/divinevideo/divine-rest-gateway/cachestore"
	"github.com/divinevideo/divine-rest-gateway/health"
	"github.com/divinevideo/divine-rest-gateway/httpapi"
	"github.com/divinevideo/divine-rest-gateway/logging"
	"github.com/divinevideo/divine-rest-gateway/publish"
	"github.com/divinevideo/divine-rest-gateway/query"
	"github.com/divinevideo/divine-rest-gateway/relayexec"
)

func main() {
	startTime := time.Now()
	cfg := LoadConfig()
	logging.SetVerbose(cfg.Verbose)

	if cfg.RelayURL == "" {
		log.Fatalf("RELAY_URL is required")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	local := cachestore.NewLocalStore(time.Minute)
	defer local.Close()
	store := &cachestore.Tiered{Local: local, Remote: cachestore.NewRedisStore(redisClient)}

	execCfg := relayexec.Config{
		RelayURL:       cfg.RelayURL,
		IdleTimeout:    cfg.IdleTimeout,
		EmptyTimeout:   cfg.EmptyTimeout,
		HardTimeout:    cfg.HardTimeout,
		PublishTimeout: cfg.PublishTimeout,
	}
	executor := relayexec.New(execCfg)

	tracker := health.New()

	coordinator := query.New(store, executor)
	coordinator.SetHealth(tracker)
	queue := publish.NewRedisQueue(redisClient)
	enqueuer := publish.NewEnqueuer(store, queue)
	consumer := publish.NewConsumer(queue, store, executor)
	consumer.SetMaxAttempts(cfg.MaxAttempts)
	consumer.SetHealth(tracker)
	consumer.Start()
	defer consumer.Stop()

	server := httpapi.NewServer(coordinator, enqueuer, store)
	server.SetHealth(tracker)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      registerMux(server),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting %s %s on %s (relay=%s, uptime-ref=%s)", ProjectName, Version, cfg.Addr, cfg.RelayURL, startTime.Format(time.RFC3339))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server exited: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during http server shutdown: %v", err)
	}
}

func registerMux(server *httpapi.Server) http.Handler {
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	return mux
}
