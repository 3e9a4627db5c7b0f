package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PauloHFS/guidebot/internal/ingest"
	"github.com/PauloHFS/guidebot/internal/llm"
	"github.com/PauloHFS/guidebot/internal/middleware"
	"github.com/PauloHFS/guidebot/internal/rag"
	"github.com/PauloHFS/guidebot/internal/vector"
	"github.com/PauloHFS/guidebot/internal/web"
	"github.com/PauloHFS/guidebot/internal/worker"
)

const answerText = "마이페이지 > 결제 내역에서 환불을 신청할 수 있습니다."

// fakeOpenAI embeds by keyword into three axes and answers every completion
// with answerText, keeping the last completion request.
type fakeOpenAI struct {
	mu          sync.Mutex
	lastRequest llm.CompletionRequest
	embedCalls  int
}

func keywordVector(text string) []float32 {
	switch {
	case strings.Contains(text, "환불"):
		return []float32{1, 0.1, 0}
	case strings.Contains(text, "배송"):
		return []float32{0, 1, 0.1}
	default:
		return []float32{0.1, 0, 1}
	}
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/v1/embeddings":
		var req struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.embedCalls++
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(llm.EmbeddingResponse{
			Object: "list",
			Data:   []llm.Embedding{{Object: "embedding", Embedding: keywordVector(req.Input)}},
			Model:  "text-embedding-3-large",
		})
	case "/v1/chat/completions":
		var req llm.CompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.lastRequest = req
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(llm.CompletionResponse{
			ID:      "chatcmpl-test",
			Object:  "chat.completion",
			Model:   req.Model,
			Choices: []llm.Choice{{Message: &llm.Message{Role: llm.RoleAssistant, Content: answerText}}},
		})
	default:
		http.NotFound(w, r)
	}
}

type TestServer struct {
	Server *httptest.Server
	OpenAI *fakeOpenAI
	Index  *vector.SQLiteIndex
}

func setupTestServer(t *testing.T) *TestServer {
	t.Helper()
	ctx := context.Background()

	fake := &fakeOpenAI{}
	openai := httptest.NewServer(fake)
	t.Cleanup(openai.Close)

	client, err := llm.NewClient(
		llm.WithBaseURL(openai.URL),
		llm.WithAPIKey("sk-test"),
		llm.WithEmbeddingModel("text-embedding-3-large"),
		llm.WithHTTPClient(openai.Client()),
	)
	require.NoError(t, err)

	db, err := vector.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	index, err := vector.NewSQLiteIndex(db, vector.Config{EmbeddingDimension: 3})
	require.NoError(t, err)
	require.NoError(t, index.EnsureSchema(ctx))

	embedder := vector.NewEmbedder(client, "text-embedding-3-large", vector.WithDimension(3))
	seedIndex(t, embedder, index)

	svc := rag.NewService(embedder, index, client, rag.DefaultOptions())

	mux := http.NewServeMux()
	web.RegisterRoutes(mux, web.HandlerDeps{Answerer: svc})

	handler := middleware.Recovery(
		middleware.SecurityHeaders(false)(
			middleware.Logger(mux),
		),
	)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &TestServer{Server: server, OpenAI: fake, Index: index}
}

// seedIndex runs the embed job over three stored posts.
func seedIndex(t *testing.T, embedder ingest.Embedder, index *vector.SQLiteIndex) {
	t.Helper()
	updated := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	storage := ingest.NewStorage(t.TempDir())
	posts := []ingest.PostFile{
		{Slug: "refund-policy", Title: "환불 정책", Content: "결제 후 7일 이내 환불 가능합니다.", UpdatedAt: updated},
		{Slug: "shipping", Title: "배송 안내", Content: "배송은 2-3일 소요됩니다.", UpdatedAt: updated},
		{Slug: "account", Title: "계정 설정", Content: "비밀번호는 설정 메뉴에서 변경합니다.", UpdatedAt: updated},
	}
	entries := make([]ingest.PostEntry, 0, len(posts))
	for _, p := range posts {
		require.NoError(t, storage.SavePost(p))
		entries = append(entries, ingest.PostEntry{Slug: p.Slug, Title: p.Title, UpdatedAt: p.UpdatedAt})
	}
	require.NoError(t, storage.SaveIndex(entries))

	pool, err := worker.NewPool("test", worker.RateConfig{Concurrency: 2})
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	report, err := ingest.NewEmbedJob(storage, embedder, index, pool, ingest.EmbedOptions{}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Embedded)
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := ts.Server.Client().Get(ts.Server.URL + web.Health)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAskEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := ts.Server.Client().Post(ts.Server.URL+web.Ask, "application/json",
		strings.NewReader(`{"question":"환불은 어떻게 받나요?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Answer     string `json:"answer"`
		References []struct {
			Title      string  `json:"title"`
			Slug       string  `json:"slug"`
			Similarity float64 `json:"similarity"`
		} `json:"references"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, answerText, body.Answer)
	require.Len(t, body.References, 3)
	assert.Equal(t, "refund-policy", body.References[0].Slug)
	assert.Equal(t, "환불 정책", body.References[0].Title)
	assert.InDelta(t, 1.0, body.References[0].Similarity, 1e-5)
	assert.GreaterOrEqual(t, body.References[0].Similarity, body.References[1].Similarity)
	assert.GreaterOrEqual(t, body.References[1].Similarity, body.References[2].Similarity)

	ts.OpenAI.mu.Lock()
	req := ts.OpenAI.lastRequest
	ts.OpenAI.mu.Unlock()

	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "[환불 정책]")
	assert.Contains(t, req.Messages[1].Content, "[질문]\n환불은 어떻게 받나요?")
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.3, *req.Temperature, 1e-9)
}

func TestAskEndpoint_BadRequest(t *testing.T) {
	ts := setupTestServer(t)

	for _, body := range []string{`{}`, `{"question":"   "}`, `not json`} {
		resp, err := ts.Server.Client().Post(ts.Server.URL+web.Ask, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestSeededIndex(t *testing.T) {
	ts := setupTestServer(t)

	count, err := ts.Index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	ts.OpenAI.mu.Lock()
	calls := ts.OpenAI.embedCalls
	ts.OpenAI.mu.Unlock()
	assert.Equal(t, 3, calls)
}
