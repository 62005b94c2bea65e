package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	httpMW "github.com/yungbote/casedesk-backend/internal/http/middleware"
)

func TestFailClassifiesAggregateErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name     string
		err      error
		fallback Code
		status   int
		code     Code
	}{
		{"not found", domainagg.NotFound("task.load", "task", "t-1"), CodeInternal, http.StatusNotFound, CodeNotFound},
		{"validation", domainagg.Invalid("task.new", "title is required"), CodeInternal, http.StatusBadRequest, CodeBadRequest},
		{"invalid state", domainagg.InvalidState("task.start", "task t-1 is completed"), CodeInternal, http.StatusConflict, CodeConflict},
		{"wrapped conflict", fmt.Errorf("requeue: %w", domainagg.ConcurrencyConflict("task.save", "task", "t-1", 2, 3)), CodeInternal, http.StatusConflict, CodeConflict},
		{"plain error", errors.New("connection refused"), CodeUnavailable, http.StatusServiceUnavailable, CodeUnavailable},
		{"no error", nil, CodeNotImplemented, http.StatusNotImplemented, CodeNotImplemented},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(httpMW.AttachTraceContext())
			r.GET("/x", func(c *gin.Context) { Fail(c, "test.op", tc.fallback, tc.err) })

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("X-Request-Id", "req-42")
			r.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status: want=%d got=%d", tc.status, rec.Code)
			}
			var body ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tc.code || body.Error.Op != "test.op" || body.Error.RequestID != "req-42" || body.Error.Message == "" {
				t.Fatalf("envelope: %+v", body.Error)
			}
		})
	}
}

func TestUnknownCodeIsInternal(t *testing.T) {
	if got := Code("teapot").Status(); got != http.StatusInternalServerError {
		t.Fatalf("status: want=500 got=%d", got)
	}
}
