package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
)

// Recovery turns a panicking handler into a 500 JSON envelope. Aborted
// handlers are re-panicked so net/http can drop the connection. It sits
// outside Logger, so the request id comes from the response header.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			metrics.PanicsRecovered.Inc()
			logging.Get().ErrorContext(r.Context(), "panic recovered",
				slog.String("error", fmt.Sprint(rec)),
				slog.String("request_id", w.Header().Get("X-Request-ID")),
				slog.String("path", r.URL.Path),
				slog.String("stack", string(debug.Stack())),
			)

			writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
