package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storefront-panel/internal/cache"
	"storefront-panel/internal/config"
	"storefront-panel/internal/db"
	"storefront-panel/internal/events"
	"storefront-panel/internal/httpserver"
	orderlinerepo "storefront-panel/internal/repository/orderline"
	productrepo "storefront-panel/internal/repository/product"
	checkoutsvc "storefront-panel/internal/service/checkout"
	"storefront-panel/internal/service/panel"
	productsvc "storefront-panel/internal/service/product"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	store := cache.New(cfg.RedisAddr, cfg.LineCacheTTL, logger)
	if cfg.RedisAddr == "" {
		logger.Printf("redis disabled: line cache and checkout idempotency are off")
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, 1024, logger)
		producer.Start()
		defer producer.Close()
		publisher = producer
	} else {
		logger.Printf("kafka disabled: order events are not published")
	}

	productRepo := productrepo.NewPostgres(dbpool, logger)
	lineRepo := orderlinerepo.NewPostgres(dbpool, logger)

	productService := productsvc.New(productRepo)
	checkoutService := checkoutsvc.New(lineRepo, productRepo, checkoutsvc.Options{
		Cache:          store,
		Events:         publisher,
		WhatsAppNumber: cfg.WhatsAppNumber,
		Logger:         logger,
	})
	panelState := panel.New(lineRepo, panel.Options{
		Mode:   cfg.BasketUpdateMode,
		Cache:  store,
		Events: publisher,
		Logger: logger,
	})

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		ProductSvc:  productService,
		CheckoutSvc: checkoutService,
		Panel:       panelState,
		JWTSecret:   cfg.PanelJWTSecret,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s (basket mode %s)", cfg.HTTPAddr, cfg.BasketUpdateMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
