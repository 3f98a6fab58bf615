package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"storefront-panel/internal/cache"
	"storefront-panel/internal/config"
	"storefront-panel/internal/events"
	"storefront-panel/internal/notifier"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := log.New(os.Stderr, "[notifier] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	feed := log.New(os.Stdout, "", log.LstdFlags|log.LUTC)

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatalf("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n := notifier.New(feed, cache.NewDeduper(cfg.RedisAddr, cfg.KafkaGroupID), logger)

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range events.Topics {
		consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, topic, logger)
		g.Go(func() error {
			logger.Printf("consumer started: group=%s topic=%s", cfg.KafkaGroupID, topic)
			return consumer.Run(gctx, n.Handle)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("consumer exit: %v", err)
	}
	logger.Println("notifier stopped")
}
