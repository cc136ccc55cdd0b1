package errs

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// internalDetail is the only detail ever shown for a 500.
const internalDetail = "Internal server error"

// Problem represents an RFC 7807 problem document.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"traceId,omitempty"`
}

// WriteProblem emits a problem+json response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	resp := Problem{
		Type:    "about:blank",
		Title:   http.StatusText(status),
		Status:  status,
		Detail:  detail,
		TraceID: middleware.GetReqID(r.Context()),
	}
	if r.URL != nil {
		resp.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Write classifies err and writes it as a problem. Internal errors are
// logged with their cause and rendered with a generic detail.
func Write(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	e := From(err)
	status := e.Kind.Status()

	if e.Kind == KindInternal {
		if logger != nil {
			logger.Error("internal error",
				zap.Error(err),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}
		WriteProblem(w, r, status, internalDetail)
		return
	}

	if e.Kind == KindTooManyRequests && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	WriteProblem(w, r, status, e.Message)
}
