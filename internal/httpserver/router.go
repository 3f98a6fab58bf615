package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-panel/internal/domain"
	checkoutsvc "storefront-panel/internal/service/checkout"
	"storefront-panel/internal/service/panel"
)

type productService interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, idOrSlug string) (*domain.Product, error)
}

type checkoutService interface {
	Place(ctx context.Context, in checkoutsvc.PlaceInput) (*checkoutsvc.Receipt, error)
}

// Deps are the services behind the routes.
type Deps struct {
	ProductSvc  productService
	CheckoutSvc checkoutService
	Panel       *panel.Panel
	// JWTSecret guards the panel routes; empty disables the check.
	JWTSecret   string
	CORSOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if deps.ProductSvc == nil || deps.CheckoutSvc == nil || deps.Panel == nil {
		return nil, errors.New("httpserver: product, checkout and panel services are required")
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.Use(corsMiddleware(deps.CORSOrigins))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	router.GET("/products", listProductsHandler(deps.ProductSvc, logger))
	router.GET("/products/:id", getProductHandler(deps.ProductSvc, logger))
	router.POST("/checkout", checkoutHandler(deps.CheckoutSvc, logger))

	if deps.JWTSecret == "" {
		logger.Printf("panel auth disabled: PANEL_JWT_SECRET is empty")
	}
	p := router.Group("/panel", panelAuth(deps.JWTSecret))
	p.GET("/baskets", listBasketsHandler(deps.Panel))
	p.GET("/lines", listLinesHandler(deps.Panel))
	p.POST("/lines/:id/processed", markLineProcessedHandler(deps.Panel, logger))
	p.POST("/lines/:id/hidden", toggleLineHiddenHandler(deps.Panel, logger))
	p.POST("/baskets/processed", markBasketProcessedHandler(deps.Panel, logger))

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// writeError maps service errors onto status codes. Anything that is not a
// caller mistake is reported as a failed upstream write.
func writeError(c *gin.Context, logger *log.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		logger.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
