package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/paycast/pkg/logger"
	"github.com/okian/paycast/pkg/metrics"
)

// Headers set on every API response. Error responses also carry the
// machine-readable code of the body so the middleware can label metrics
// without decoding it.
const (
	requestIDHeader = "X-Request-ID"
	errorCodeHeader = "X-Error-Code"
)

// MetricsMiddleware wraps an API route. It assigns a request id, records
// request counts and latency under endpoint, and counts failed requests by
// their error code, so a missing model and a full ingestion queue stay
// apart even though both answer 503.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	l := logger.Named("http")
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		elapsed := time.Since(start)
		status := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(elapsed.Milliseconds()))

		if wrapped.statusCode < http.StatusBadRequest {
			return
		}
		kind := errorKind(wrapped.statusCode, wrapped.Header().Get(errorCodeHeader))
		metrics.RecordErrorByComponent("http", kind)
		fields := []logger.Field{
			logger.String("endpoint", endpoint),
			logger.String("request_id", id),
			logger.Int("status", wrapped.statusCode),
			logger.String("error_code", kind),
			logger.Duration("elapsed", elapsed),
		}
		if entity := r.PathValue("entity"); entity != "" {
			fields = append(fields, logger.String("entity_id", entity))
		}
		l.Debug(r.Context(), "request failed", fields...)
	}
}

// errorKind prefers the code written by the handler and falls back to a
// label derived from the status.
func errorKind(status int, code string) string {
	if code != "" {
		return code
	}
	switch {
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusRequestEntityTooLarge:
		return "body_too_large"
	case status == http.StatusNotFound:
		return "not_found"
	default:
		return "client_error"
	}
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
