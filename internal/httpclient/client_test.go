package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PauloHFS/guidebot/internal/contextkeys"
	"github.com/PauloHFS/guidebot/internal/logging"
)

func TestRedactURL(t *testing.T) {
	u, err := url.Parse("https://guide.example.com/ghost/api/v3/content/posts/?key=secret&page=2")
	require.NoError(t, err)

	got := redactURL(u)
	assert.NotContains(t, got, "secret")
	assert.Contains(t, got, "key=REDACTED")
	assert.Contains(t, got, "page=2")
	assert.Equal(t, "secret", u.Query().Get("key"), "original URL must stay untouched")

	plain, _ := url.Parse("https://api.openai.com/v1/embeddings")
	assert.Equal(t, "https://api.openai.com/v1/embeddings", redactURL(plain))
}

func TestClient_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter(&buf)
	t.Cleanup(logging.Init)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c := New(Config{Name: "ghost", Timeout: time.Second})
	assert.Equal(t, "ghost", c.Name())

	resp, err := c.Get(srv.URL + "/?key=secret")
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, `"http_client":"ghost"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.NotContains(t, out, "secret")
}

func TestClient_ForwardsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter(&buf)
	t.Cleanup(logging.Init)

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		w.Header().Set("X-Ratelimit-Remaining-Requests", "499")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := contextkeys.WithRequestID(context.Background(), "req-42")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/v1/embeddings", nil)
	require.NoError(t, err)

	resp, err := New(Config{Name: "openai", Timeout: time.Second}).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "req-42", seen)
	assert.Empty(t, req.Header.Get("X-Request-ID"), "caller's request must not be mutated")
	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-42"`)
	assert.Contains(t, out, `"ratelimit_remaining_requests":"499"`)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusOK))
	assert.Equal(t, "4xx", statusClass(http.StatusTooManyRequests))
	assert.Equal(t, "5xx", statusClass(http.StatusBadGateway))
}
