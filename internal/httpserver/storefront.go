package httpserver

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-panel/internal/domain"
	checkoutsvc "storefront-panel/internal/service/checkout"
)

func listProductsHandler(svc productService, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := svc.List(c.Request.Context())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		if products == nil {
			products = []domain.Product{}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(products), "results": products})
	}
}

func getProductHandler(svc productService, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func checkoutHandler(svc checkoutService, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in checkoutsvc.PlaceInput
		if err := c.ShouldBindJSON(&in); err != nil {
			writeError(c, logger, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
			return
		}
		if key := c.GetHeader("Idempotency-Key"); key != "" && in.SubmissionID == "" {
			in.SubmissionID = key
		}
		receipt, err := svc.Place(c.Request.Context(), in)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		status := http.StatusCreated
		if receipt.Duplicate {
			status = http.StatusOK
		}
		c.JSON(status, receipt)
	}
}
