package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"storefront-panel/internal/cache"
	"storefront-panel/internal/config"
	"storefront-panel/internal/db"
	"storefront-panel/internal/importer"
	orderlinerepo "storefront-panel/internal/repository/orderline"
	productrepo "storefront-panel/internal/repository/product"
)

func main() {
	var (
		filePath string
		kind     string
	)
	flag.StringVar(&filePath, "file", "", "Path to the CSV export")
	flag.StringVar(&kind, "kind", "lines", "What the file holds: products or lines")
	flag.Parse()

	if filePath == "" || (kind != "products" && kind != "lines") {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := log.New(os.Stderr, "[importer] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatalf("open file: %v", err)
	}
	defer f.Close()

	start := time.Now()
	var count int
	switch kind {
	case "products":
		count, err = importer.NewProductImporter(f, productrepo.NewPostgres(pool, nil)).Run(ctx)
	case "lines":
		count, err = importer.NewLineImporter(f, orderlinerepo.NewPostgres(pool, nil)).Run(ctx)
	}
	if err != nil {
		logger.Fatalf("import failed after %d rows: %v", count, err)
	}

	// panels would otherwise serve cached lists without the imported rows
	if err := cache.New(cfg.RedisAddr, cfg.LineCacheTTL, logger).InvalidateLines(ctx); err != nil {
		logger.Printf("invalidate line cache: %v", err)
	}

	fmt.Printf("Imported %d %s in %s\n", count, kind, time.Since(start).Truncate(time.Millisecond))
}
