package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/toolbay/trade-service/internal/api"
	"github.com/toolbay/trade-service/internal/auth"
	"github.com/toolbay/trade-service/internal/catalog"
	"github.com/toolbay/trade-service/internal/config"
	"github.com/toolbay/trade-service/internal/events"
	"github.com/toolbay/trade-service/internal/kafka"
	"github.com/toolbay/trade-service/internal/logger"
	"github.com/toolbay/trade-service/internal/presence"
	"github.com/toolbay/trade-service/internal/repository"
	"github.com/toolbay/trade-service/internal/service"
	"github.com/toolbay/trade-service/internal/subscription"
	"github.com/toolbay/trade-service/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	zl, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zl.Sync()

	mc, err := repository.NewMongoClient(cfg)
	if err != nil {
		zl.Fatalf("mongo init: %v", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.DB)

	offerRepo := repository.NewOfferRepository(mc, db)
	convRepo := repository.NewConversationRepository(mc, db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pres := presence.NewCache(rdb, offerRepo, convRepo, cfg.Redis.Prefix, zl)

	hub := subscription.NewHub(offerRepo, convRepo, zl)

	pub, err := events.NewPublisher(cfg.NATS.URL, zl)
	if err != nil {
		zl.Fatalf("nats init: %v", err)
	}
	defer pub.Close()

	kprod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	kcons := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, cfg.Kafka.GroupID, zl)

	cat := catalog.NewHTTPCatalog(
		cfg.Catalog.BaseURL,
		time.Duration(cfg.Catalog.TimeoutSec)*time.Second,
		time.Duration(cfg.Catalog.RetryElapsedSec)*time.Second,
	)

	convSvc := service.NewConversationService(convRepo, pub, kprod, zl)
	offerSvc := service.NewOfferService(offerRepo, cat, pub, kprod, zl)
	offerSvc.SetAnnouncer(convSvc)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the hub's live feed: change streams on a replica set, the event
	// bus everywhere else
	if cfg.App.Feed == "nats" {
		sub, err := events.NewSubscriber(cfg.NATS.URL, hub, zl)
		if err != nil {
			zl.Fatalf("nats subscriber init: %v", err)
		}
		if err := sub.Start(); err != nil {
			zl.Fatalf("nats subscribe: %v", err)
		}
		defer sub.Close()
	} else {
		watcher := repository.NewWatcher(db, hub, zl)
		go watcher.Run(rootCtx)
	}

	// audit consumer keeps the cached unread totals fresh for everyone
	// touched by a committed mutation
	go kcons.Start(rootCtx, func(key string, value []byte) {
		var rec service.ActivityRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			zl.Warnw("invalid activity record", "key", key, "err", err)
			return
		}
		for _, uid := range []string{rec.ActorID, rec.CounterpartID} {
			if uid == "" {
				continue
			}
			if _, err := pres.Refresh(rootCtx, uid); err != nil {
				zl.Warnw("unread refresh failed", "user_id", uid, "err", err)
			}
		}
	})

	jv, err := auth.NewJWTValidator(cfg.JWT)
	if err != nil {
		zl.Fatalf("jwt init: %v", err)
	}

	wsrv := ws.NewServer(hub, pres, time.Duration(cfg.App.PopupTTLSec)*time.Second, zl)
	app := api.NewServer(jv, offerSvc, convSvc, pres, wsrv)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			zl.Fatalf("server listen: %v", err)
		}
	}()
	zl.Infof("trade-service started on :%s", cfg.App.PortString())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = app.ShutdownWithContext(ctx)
	cancel()
	_ = kprod.Close(ctx)
	_ = kcons.Close(ctx)
	zl.Info("trade-service stopped")
}
