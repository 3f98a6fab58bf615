package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"storefront-panel/internal/config"
	"storefront-panel/internal/db"
	orderlinerepo "storefront-panel/internal/repository/orderline"
	productrepo "storefront-panel/internal/repository/product"
	"storefront-panel/internal/seed"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := seed.Apply(ctx, productrepo.NewPostgres(pool, logger), orderlinerepo.NewPostgres(pool, logger)); err != nil {
		logger.Fatalf("seed apply: %v", err)
	}

	logger.Println("seed applied")
}
