package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/PauloHFS/guidebot/internal/contextkeys"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
)

// requestIDPattern bounds what a caller may put in our logs.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

type responseWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger emits one wide event per request and records it in prometheus.
// It must wrap the mux directly so the matched route pattern is visible.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := requestIDFrom(r)
		w.Header().Set("X-Request-ID", requestID)

		ctx, event := logging.NewEventContext(r.Context())
		ctx = contextkeys.WithRequestID(ctx, requestID)

		event.Add(
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
		)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(ctx)

		next.ServeHTTP(rw, req)
		elapsed := time.Since(start)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}

		event.Add(
			slog.String("route", route),
			slog.Int("status", rw.status),
			slog.Int("size", rw.size),
			durationMS(elapsed),
		)
		if errors.Is(ctx.Err(), context.Canceled) {
			event.Add(slog.Bool("client_gone", true))
		}

		status := strconv.Itoa(rw.status)
		metrics.HttpRequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		metrics.HttpRequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

		logging.Get().Log(ctx, levelFor(rw.status), "request completed", event.Attrs()...)
	})
}

func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); requestIDPattern.MatchString(id) {
		return id
	}
	return uuid.NewString()
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func durationMS(d time.Duration) slog.Attr {
	return slog.Float64("duration_ms", float64(d.Nanoseconds())/1e6)
}
