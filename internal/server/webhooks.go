package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/creditrail/internal/webhook/domain"
)

type createWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
}

type updateWebhookRequest struct {
	URL        *string   `json:"url,omitempty"`
	Events     *[]string `json:"events,omitempty"`
	IsDisabled *bool     `json:"is_disabled,omitempty"`
}

func (s *Server) CreateWebhook(c *gin.Context) {
	var req createWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.webhookSvc.Create(c.Request.Context(), orgFromContext(c), webhookdomain.CreateRequest{
		URL:    strings.TrimSpace(req.URL),
		Events: req.Events,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListWebhooks(c *gin.Context) {
	resp, err := s.webhookSvc.List(c.Request.Context(), orgFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetWebhook(c *gin.Context) {
	resp, err := s.webhookSvc.GetByID(c.Request.Context(), orgFromContext(c), c.Param("webhook_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateWebhook(c *gin.Context) {
	var req updateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.webhookSvc.Update(c.Request.Context(), orgFromContext(c), c.Param("webhook_id"), webhookdomain.UpdateRequest{
		URL:        req.URL,
		Events:     req.Events,
		IsDisabled: req.IsDisabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteWebhook(c *gin.Context) {
	if err := s.webhookSvc.Delete(c.Request.Context(), orgFromContext(c), c.Param("webhook_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) RotateWebhookSecret(c *gin.Context) {
	resp, err := s.webhookSvc.RotateSecret(c.Request.Context(), orgFromContext(c), c.Param("webhook_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SendWebhookTest(c *gin.Context) {
	resp, err := s.webhookSvc.SendTest(c.Request.Context(), orgFromContext(c), c.Param("webhook_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListWebhookLogs(c *gin.Context) {
	var query struct {
		Limit int `form:"limit,default=50"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.webhookSvc.ListLogs(c.Request.Context(), orgFromContext(c), c.Param("webhook_id"), query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
