package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/creditrail/internal/balancelock"
	"github.com/smallbiznis/creditrail/internal/config"
	"github.com/smallbiznis/creditrail/internal/credits"
	creditsdomain "github.com/smallbiznis/creditrail/internal/credits/domain"
	"github.com/smallbiznis/creditrail/internal/events"
	"github.com/smallbiznis/creditrail/internal/observability"
	obsmiddleware "github.com/smallbiznis/creditrail/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditrail/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creditrail/internal/observability/tracing"
	"github.com/smallbiznis/creditrail/internal/product"
	productdomain "github.com/smallbiznis/creditrail/internal/product/domain"
	"github.com/smallbiznis/creditrail/internal/webhook"
	webhookdomain "github.com/smallbiznis/creditrail/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	balancelock.Module,
	events.Module,
	product.Module,
	credits.Module,
	webhook.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	creditsSvc creditsdomain.Service
	productSvc productdomain.Service
	webhookSvc webhookdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	CreditsSvc creditsdomain.Service
	ProductSvc productdomain.Service
	WebhookSvc webhookdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		creditsSvc: p.CreditsSvc,
		productSvc: p.ProductSvc,
		webhookSvc: p.WebhookSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(RequireOrganization())

	v1.POST("/products", s.CreateProduct)
	v1.GET("/products", s.ListProducts)
	v1.GET("/products/:product_id", s.GetProduct)

	v1.POST("/customers/:customer_id/credits/:product_id/transaction", s.CreateCreditTransaction)
	v1.GET("/customers/:customer_id/credits/:product_id", s.GetCreditBalance)
	v1.GET("/customers/:customer_id/credits/:product_id/transactions", s.ListCreditTransactions)

	v1.POST("/webhooks", s.CreateWebhook)
	v1.GET("/webhooks", s.ListWebhooks)
	v1.GET("/webhooks/:webhook_id", s.GetWebhook)
	v1.PATCH("/webhooks/:webhook_id", s.UpdateWebhook)
	v1.DELETE("/webhooks/:webhook_id", s.DeleteWebhook)
	v1.POST("/webhooks/:webhook_id/rotate", s.RotateWebhookSecret)
	v1.POST("/webhooks/:webhook_id/test", s.SendWebhookTest)
	v1.GET("/webhooks/:webhook_id/logs", s.ListWebhookLogs)
}
