package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/casedesk-backend/internal/data/repos"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/http/response"
	"github.com/yungbote/casedesk-backend/internal/jobs/outbox"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

// OutboxOps is implemented by *outbox.Dispatcher.
type OutboxOps interface {
	Stats(ctx context.Context) (repos.OutboxStats, error)
	DeadLetters(ctx context.Context, limit int) ([]*events.OutboxRecord, error)
	Requeue(ctx context.Context, eventID string) (bool, error)
	ProcessOnce(ctx context.Context) (outbox.Result, error)
}

type OutboxHandler struct {
	log *logger.Logger
	ops OutboxOps
}

func NewOutboxHandler(baseLog *logger.Logger, ops OutboxOps) *OutboxHandler {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &OutboxHandler{log: baseLog.With("handler", "OutboxHandler"), ops: ops}
}

// GET /ops/outbox/stats
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.ops.Stats(c.Request.Context())
	if err != nil {
		response.Fail(c, "outbox.stats", response.CodeInternal, err)
		return
	}
	response.OK(c, stats)
}

// GET /ops/outbox/dead-letters?limit=50
func (h *OutboxHandler) DeadLetters(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			response.Fail(c, "outbox.dead_letters", response.CodeBadRequest, fmt.Errorf("limit must be an integer in [1,500], got %q", raw))
			return
		}
		limit = n
	}
	rows, err := h.ops.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		response.Fail(c, "outbox.dead_letters", response.CodeInternal, err)
		return
	}
	response.OK(c, gin.H{"dead_letters": rows})
}

// POST /ops/outbox/dead-letters/:id/requeue
func (h *OutboxHandler) Requeue(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	ok, err := h.ops.Requeue(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, "outbox.requeue", response.CodeInternal, err)
		return
	}
	if !ok {
		response.Fail(c, "outbox.requeue", response.CodeNotFound, fmt.Errorf("event %s is not dead-lettered", id))
		return
	}
	h.log.Info("Dead letter requeued via ops API", "event_id", id)
	response.OK(c, gin.H{"event_id": id, "requeued": true})
}

// POST /ops/outbox/process
func (h *OutboxHandler) Process(c *gin.Context) {
	res, err := h.ops.ProcessOnce(c.Request.Context())
	if err != nil {
		response.Fail(c, "outbox.process", response.CodeInternal, err)
		return
	}
	response.OK(c, res)
}
