package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	productdomain "github.com/smallbiznis/creditrail/internal/product/domain"
)

type createProductRequest struct {
	Name           string   `json:"name"`
	BillingType    string   `json:"billing_type"`
	UnitDivisor    *float64 `json:"unit_divisor,omitempty"`
	UnitsPerCredit *float64 `json:"units_per_credit,omitempty"`
	Active         *bool    `json:"active,omitempty"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.Create(c.Request.Context(), orgFromContext(c), productdomain.CreateRequest{
		Name:           strings.TrimSpace(req.Name),
		BillingType:    strings.TrimSpace(req.BillingType),
		UnitDivisor:    req.UnitDivisor,
		UnitsPerCredit: req.UnitsPerCredit,
		Active:         req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProducts(c *gin.Context) {
	resp, err := s.productSvc.List(c.Request.Context(), orgFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProduct(c *gin.Context) {
	resp, err := s.productSvc.GetByID(c.Request.Context(), orgFromContext(c), c.Param("product_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
