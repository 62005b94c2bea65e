package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/casedesk-backend/internal/http/response"
	"github.com/yungbote/casedesk-backend/internal/observability"
	"github.com/yungbote/casedesk-backend/internal/services"
)

type SLASweeper interface {
	SweepOnce(ctx context.Context) services.SLASweepResult
}

type MetricsSource interface {
	Snapshot(ctx context.Context) ([]observability.MetricPoint, error)
}

type OpsHandler struct {
	sweeper SLASweeper
	metrics MetricsSource
}

func NewOpsHandler(sweeper SLASweeper, metrics MetricsSource) *OpsHandler {
	return &OpsHandler{sweeper: sweeper, metrics: metrics}
}

// POST /ops/sla/sweep
func (h *OpsHandler) SweepSLA(c *gin.Context) {
	if h.sweeper == nil {
		response.Fail(c, "sla.sweep", response.CodeNotImplemented, errors.New("sla sweeper is not configured"))
		return
	}
	response.OK(c, h.sweeper.SweepOnce(c.Request.Context()))
}

// GET /ops/metrics
func (h *OpsHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		response.Fail(c, "metrics", response.CodeNotImplemented, errors.New("metrics reader is not configured"))
		return
	}
	points, err := h.metrics.Snapshot(c.Request.Context())
	if err != nil {
		response.Fail(c, "metrics", response.CodeInternal, err)
		return
	}
	response.OK(c, gin.H{"metrics": points})
}
