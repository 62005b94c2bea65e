package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/casedesk-backend/internal/http/handlers"
	httpMW "github.com/yungbote/casedesk-backend/internal/http/middleware"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	HealthHandler *httpH.HealthHandler
	OutboxHandler *httpH.OutboxHandler
	OpsHandler    *httpH.OpsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	name := cfg.ServiceName
	if name == "" {
		name = "casedesk-ops"
	}
	r.Use(otelgin.Middleware(name))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(httpMW.CORS(cfg.CORSOrigins))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	ops := r.Group("/ops")
	{
		if cfg.OutboxHandler != nil {
			ops.GET("/outbox/stats", cfg.OutboxHandler.Stats)
			ops.GET("/outbox/dead-letters", cfg.OutboxHandler.DeadLetters)
			ops.POST("/outbox/dead-letters/:id/requeue", cfg.OutboxHandler.Requeue)
			ops.POST("/outbox/process", cfg.OutboxHandler.Process)
		}
		if cfg.OpsHandler != nil {
			ops.POST("/sla/sweep", cfg.OpsHandler.SweepSLA)
			ops.GET("/metrics", cfg.OpsHandler.Metrics)
		}
	}

	return r
}
