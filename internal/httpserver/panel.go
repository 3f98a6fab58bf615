package httpserver

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-panel/internal/basket"
	"storefront-panel/internal/domain"
	"storefront-panel/internal/service/panel"
)

type basketsResponse struct {
	ProductID string          `json:"productId,omitempty"`
	Baskets   []domain.Basket `json:"baskets"`
	Degraded  bool            `json:"degraded"`
	LoadedAt  *time.Time      `json:"loadedAt,omitempty"`
}

type linesResponse struct {
	ProductID string             `json:"productId,omitempty"`
	Lines     []domain.OrderLine `json:"lines"`
	Degraded  bool               `json:"degraded"`
}

type markBasketRequest struct {
	Key string `json:"key"`
}

func toBasketsResponse(s panel.Snapshot) basketsResponse {
	resp := basketsResponse{
		ProductID: s.ProductID,
		Baskets:   basket.Sorted(s.Baskets),
		Degraded:  s.Degraded,
	}
	if !s.LoadedAt.IsZero() {
		loaded := s.LoadedAt
		resp.LoadedAt = &loaded
	}
	return resp
}

// listBasketsHandler always answers 200; a failed load is reported through
// the degraded flag alongside the last known baskets.
func listBasketsHandler(p *panel.Panel) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := p.View(c.Query("productId")).Load(c.Request.Context())
		c.JSON(http.StatusOK, toBasketsResponse(snap))
	}
}

func listLinesHandler(p *panel.Panel) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := p.View(c.Query("productId")).Load(c.Request.Context())
		lines := snap.Lines
		if lines == nil {
			lines = []domain.OrderLine{}
		}
		c.JSON(http.StatusOK, linesResponse{ProductID: snap.ProductID, Lines: lines, Degraded: snap.Degraded})
	}
}

func markLineProcessedHandler(p *panel.Panel, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := p.View(c.Query("productId"))
		id := c.Param("id")
		if err := view.MarkLineProcessed(c.Request.Context(), id); err != nil {
			writeError(c, logger, err)
			return
		}
		logger.Printf("panel: line processed id=%s by=%s", id, operator(c))
		c.JSON(http.StatusOK, toBasketsResponse(view.Snapshot()))
	}
}

func toggleLineHiddenHandler(p *panel.Panel, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := p.View(c.Query("productId"))
		id := c.Param("id")
		if err := view.ToggleLineHidden(c.Request.Context(), id); err != nil {
			writeError(c, logger, err)
			return
		}
		logger.Printf("panel: line hidden toggled id=%s by=%s", id, operator(c))
		c.JSON(http.StatusOK, toBasketsResponse(view.Snapshot()))
	}
}

func markBasketProcessedHandler(p *panel.Panel, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req markBasketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, logger, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
			return
		}
		key := strings.TrimSpace(req.Key)
		if key == "" {
			writeError(c, logger, fmt.Errorf("%w: basket key required", domain.ErrInvalidInput))
			return
		}
		view := p.View(c.Query("productId"))
		if err := view.MarkBasketProcessed(c.Request.Context(), key); err != nil {
			writeError(c, logger, err)
			return
		}
		logger.Printf("panel: basket processed key=%s mode=%s by=%s", key, p.Mode(), operator(c))
		c.JSON(http.StatusOK, toBasketsResponse(view.Snapshot()))
	}
}
