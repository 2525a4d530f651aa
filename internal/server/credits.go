package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	creditsdomain "github.com/smallbiznis/creditrail/internal/credits/domain"
	"github.com/smallbiznis/creditrail/pkg/db/pagination"
)

type createCreditTransactionRequest struct {
	Type     string         `json:"type"`
	Amount   float64        `json:"amount"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) CreateCreditTransaction(c *gin.Context) {
	var req createCreditTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	txnReq := creditsdomain.TransactionRequest{
		CustomerID: c.Param("customer_id"),
		ProductID:  c.Param("product_id"),
		Amount:     req.Amount,
		Reason:     strings.TrimSpace(req.Reason),
		Metadata:   req.Metadata,
	}

	orgID := orgFromContext(c)
	ctx := c.Request.Context()

	var (
		resp *creditsdomain.TransactionResponse
		err  error
	)
	switch strings.TrimSpace(req.Type) {
	case string(creditsdomain.TransactionTypeGrant):
		resp, err = s.creditsSvc.Grant(ctx, orgID, txnReq)
	case string(creditsdomain.TransactionTypeDeduct):
		resp, err = s.creditsSvc.Deduct(ctx, orgID, txnReq)
	case string(creditsdomain.TransactionTypeRefund):
		resp, err = s.creditsSvc.Refund(ctx, orgID, txnReq)
	default:
		AbortWithError(c, newValidationError("type", "invalid_transaction_type", "invalid transaction type"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCreditBalance(c *gin.Context) {
	resp, err := s.creditsSvc.GetBalance(
		c.Request.Context(),
		orgFromContext(c),
		c.Param("customer_id"),
		c.Param("product_id"),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCreditTransactions(c *gin.Context) {
	var query struct {
		PageToken string `form:"page_token"`
		PageSize  int    `form:"page_size,default=10"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.creditsSvc.ListTransactions(c.Request.Context(), orgFromContext(c), creditsdomain.ListTransactionsRequest{
		CustomerID: c.Param("customer_id"),
		ProductID:  c.Param("product_id"),
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
