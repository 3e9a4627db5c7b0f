package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PauloHFS/guidebot/internal/contextkeys"
	"github.com/PauloHFS/guidebot/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter(&buf)
	t.Cleanup(logging.Init)

	var seenID string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		seenID = contextkeys.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	Logger(mux).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-123", seenID)
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"route":"GET /health"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestLogger_GeneratesRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	Logger(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, rr.Header().Get("X-Request-ID"), 36)
}

func TestLogger_ReplacesUnsafeRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "evil\n{\"level\":\"ERROR\"}")
	Logger(okHandler()).ServeHTTP(rr, req)

	assert.Len(t, rr.Header().Get("X-Request-ID"), 36)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, levelFor(http.StatusOK))
	assert.Equal(t, slog.LevelWarn, levelFor(http.StatusTooManyRequests))
	assert.Equal(t, slog.LevelError, levelFor(http.StatusBadGateway))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter(&buf)
	t.Cleanup(logging.Init)

	h := Recovery(Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ask", nil)
	req.Header.Set("X-Request-ID", "req-panic")
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
	assert.Contains(t, buf.String(), `"request_id":"req-panic"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestRateLimiter(t *testing.T) {
	t.Run("BlocksAfterBurst", func(t *testing.T) {
		h := NewRateLimiter(60, 2).Middleware(okHandler())

		codes := make([]int, 0, 3)
		for range 3 {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/ask", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			h.ServeHTTP(rr, req)
			codes = append(codes, rr.Code)
		}
		assert.Equal(t, []int{200, 200, 429}, codes)
	})

	t.Run("SeparateBucketsPerIP", func(t *testing.T) {
		h := NewRateLimiter(60, 1).Middleware(okHandler())

		for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/ask", nil)
			req.RemoteAddr = ip
			h.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code, ip)
		}
	})

	t.Run("ConcurrentFirstRequests", func(t *testing.T) {
		rl := NewRateLimiter(1, 5)
		h := rl.Middleware(okHandler())

		var (
			wg    sync.WaitGroup
			ok    atomic.Int32
			start = make(chan struct{})
		)
		for range 64 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				rr := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodPost, "/ask", nil)
				req.RemoteAddr = "10.0.0.9:1234"
				h.ServeHTTP(rr, req)
				if rr.Code == http.StatusOK {
					ok.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(5), ok.Load())
		assert.Equal(t, 1, rl.clients.Len())
	})

	t.Run("Disabled", func(t *testing.T) {
		rl := NewRateLimiter(0, 0)
		h := rl.Middleware(okHandler())
		for range 20 {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rr.Code)
		}
	})
}

func TestCORS(t *testing.T) {
	h := CORS(DefaultCORSConfig([]string{"https://*.anotherclass.co.kr"}))(okHandler())

	t.Run("Preflight", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
		req.Header.Set("Origin", "https://guide.anotherclass.co.kr")
		req.Header.Set("Access-Control-Request-Method", "POST")
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://guide.anotherclass.co.kr", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("UnknownOrigin", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/ask", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(true)(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestTimeout(t *testing.T) {
	t.Run("SetsDeadline", func(t *testing.T) {
		var hasDeadline bool
		h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasDeadline = r.Context().Deadline()
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ask", nil))
		assert.True(t, hasDeadline)
	})

	t.Run("ZeroDisables", func(t *testing.T) {
		var hasDeadline bool
		h := Timeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasDeadline = r.Context().Deadline()
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ask", nil))
		assert.False(t, hasDeadline)
	})
}
