package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	httpMW "github.com/yungbote/casedesk-backend/internal/http/middleware"
)

// Code is the machine-readable reason carried by every ops error body.
type Code string

const (
	CodeBadRequest     Code = "bad_request"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeUnavailable    Code = "unavailable"
	CodeNotImplemented Code = "not_implemented"
	CodeInternal       Code = "internal"
)

var statusOf = map[Code]int{
	CodeBadRequest:     http.StatusBadRequest,
	CodeNotFound:       http.StatusNotFound,
	CodeConflict:       http.StatusConflict,
	CodeUnavailable:    http.StatusServiceUnavailable,
	CodeNotImplemented: http.StatusNotImplemented,
	CodeInternal:       http.StatusInternalServerError,
}

func (c Code) Status() int {
	if s, ok := statusOf[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

type APIError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Op        string `json:"op,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// CodeFor classifies err by its aggregate error code, falling back when err
// carries none.
func CodeFor(err error, fallback Code) Code {
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation:
		return CodeBadRequest
	case domainagg.CodeNotFound:
		return CodeNotFound
	case domainagg.CodeConflict, domainagg.CodeInvariantViolation, domainagg.CodePreconditionFailed:
		return CodeConflict
	case domainagg.CodeRetryable:
		return CodeUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeUnavailable
	}
	return fallback
}

// Fail aborts the request with an error envelope. op names the ops action
// that failed.
func Fail(c *gin.Context, op string, fallback Code, err error) {
	code := CodeFor(err, fallback)
	msg := http.StatusText(code.Status())
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(code.Status(), ErrorEnvelope{
		Error: APIError{
			Code:      code,
			Message:   msg,
			Op:        op,
			RequestID: c.GetString(httpMW.KeyRequestID),
		},
	})
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
