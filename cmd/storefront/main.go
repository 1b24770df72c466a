package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/http/handlers"
	applog "storefront/internal/log"
	"storefront/internal/metrics"
	"storefront/internal/repos"
	"storefront/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	applog.Init(cfg.App.LogLevel, cfg.App.LogFile)
	defer applog.Sync()
	lg := applog.L()

	db, err := repos.OpenDB(cfg.DB)
	if err != nil {
		lg.Fatal("db.open", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Idempotency keys need redis; without it checkout ignores the header.
	var idem services.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			lg.Fatal("redis.ping", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
		idem = cache.NewRedisIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
		lg.Info("redis.ready", zap.String("addr", cfg.Redis.Addr))
	}

	// Outbox relay: rabbitmq when configured, log lines otherwise.
	var pub events.Publisher = events.LogPublisher{L: lg}
	if cfg.Rabbit.URL != "" {
		rp, err := events.DialRabbit(cfg.Rabbit.URL, cfg.Rabbit.Exchange, cfg.Rabbit.RoutingKey)
		if err != nil {
			lg.Fatal("rabbitmq.dial", zap.Error(err))
		}
		defer rp.Close()
		pub = rp
		lg.Info("rabbitmq.ready", zap.String("exchange", cfg.Rabbit.Exchange))
	}
	relay := events.NewRelay(db, pub, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, lg)
	relay.OnResult = metrics.ObservePublish
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	deps, err := handlers.NewDeps(db, cfg, idem)
	if err != nil {
		lg.Fatal("deps", zap.Error(err))
	}
	app := handlers.NewApp(deps, cfg)

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(sctx); err != nil {
			lg.Error("server.shutdown", zap.Error(err))
		}
	}()

	lg.Info("server.start", zap.String("addr", cfg.App.HTTPAddr))
	if err := app.Listen(cfg.App.HTTPAddr); err != nil {
		lg.Error("server.listen", zap.Error(err))
	}
	stop()
	<-relayDone
	lg.Info("server.stopped")
}
