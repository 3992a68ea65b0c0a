package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"offersync/internal/config"
	"offersync/internal/httpapi"
	"offersync/internal/notify"
	"offersync/internal/offers"
	"offersync/internal/pgstore"
	"offersync/internal/realtime"
	"offersync/internal/snapshot"
	"offersync/internal/state"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := pgstore.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	var snaps *snapshot.Store
	if cfg.Cache.SnapshotPath != "" {
		snaps, err = snapshot.Open(cfg.Cache.SnapshotPath)
		if err != nil {
			log.Fatalf("snapshot store open failed: %v", err)
		}
		defer snaps.Close()
	}

	var feed offers.ChangeFeed
	if cfg.Realtime.Endpoint != "" {
		feed = realtime.New(cfg.Realtime.Endpoint)
	}

	st := state.New()
	engine := offers.New(offers.Config{
		Backend:   pgstore.New(pool),
		State:     st,
		Cart:      pgstore.NewCarts(pool),
		Notifier:  notify.Log{},
		Feed:      feed,
		Snapshots: snaps,

		CacheTTL:      time.Duration(cfg.Cache.TTLMS) * time.Millisecond,
		SWREnabled:    cfg.Cache.SWREnabled,
		ValidationTTL: time.Duration(cfg.Cache.ValidationTTLMS) * time.Millisecond,

		BuyerAttempts:    cfg.Cache.BuyerAttempts,
		SupplierAttempts: cfg.Cache.SupplierAttempts,

		ExpireAcceptedOnDeadline: cfg.Cache.ExpireAcceptedOnDeadline,
	})
	engine.WarmStart()

	h := httpapi.NewHandler(engine)
	srv := httpapi.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("offersd listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	engine.UnsubscribeAll()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
