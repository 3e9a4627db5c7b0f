package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/rag"
	"github.com/PauloHFS/guidebot/internal/validator"
)

const (
	maxBodyBytes = 64 << 10

	msgQuestionRequired = "Question is required and must be a non-empty string"
	msgInvalidJSON      = "Request body must be valid JSON"
	msgInternal         = "Internal server error"
)

// Answerer is satisfied by *rag.Service.
type Answerer interface {
	Answer(ctx context.Context, question string) (*rag.Answer, error)
}

type HandlerDeps struct {
	Answerer Answerer
	// ExposeErrors returns the underlying error text on 500s instead of a
	// generic message.
	ExposeErrors bool
}

// AppHandler é um tipo customizado que permite retornar erros dos handlers
type AppHandler func(deps HandlerDeps, w http.ResponseWriter, r *http.Request) error

// HTTPError carries a status and a client-safe message.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

func badRequest(msg string, err error) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Message: msg, Err: err}
}

// Handle envolve nosso AppHandler para conformidade com http.HandlerFunc
func Handle(deps HandlerDeps, h AppHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(deps, w, r)
		if err == nil {
			return
		}

		var he *HTTPError
		if errors.As(err, &he) && he.Status < http.StatusInternalServerError {
			logging.AddToEvent(r.Context(), slog.String("rejected", he.Error()))
			writeJSON(w, he.Status, errorResponse{Error: he.Message})
			return
		}

		logging.Get().ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)

		msg := msgInternal
		if deps.ExposeErrors {
			msg = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
	}
}

func RegisterRoutes(mux *http.ServeMux, deps HandlerDeps) {
	mux.HandleFunc("GET "+Health, handleHealth)
	mux.HandleFunc("POST "+Ask, Handle(deps, handleAsk))
}

type errorResponse struct {
	Error string `json:"error"`
}

type reference struct {
	Title      string  `json:"title"`
	Slug       string  `json:"slug"`
	Similarity float64 `json:"similarity"`
}

type askResponse struct {
	Answer     string      `json:"answer"`
	References []reference `json:"references"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleAsk(deps HandlerDeps, w http.ResponseWriter, r *http.Request) error {
	var req validator.AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	if res := validator.Check(req); !res.Valid {
		return badRequest(res.Errors[0].Message, nil)
	}

	question := strings.TrimSpace(req.Question)
	logging.AddToEvent(r.Context(), slog.Int("question_len", len([]rune(question))))

	ans, err := deps.Answerer.Answer(r.Context(), question)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			return badRequest(msgQuestionRequired, err)
		}
		return err
	}

	refs := make([]reference, 0, len(ans.Sources))
	for _, s := range ans.Sources {
		refs = append(refs, reference{Title: s.Title, Slug: s.Slug, Similarity: s.Similarity})
	}

	writeJSON(w, http.StatusOK, askResponse{Answer: ans.Text, References: refs})
	return nil
}

// decodeJSON reports a question of the wrong JSON type like a missing one.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return badRequest(msgQuestionRequired, err)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &HTTPError{Status: http.StatusRequestEntityTooLarge, Message: "Request body too large", Err: err}
		}
		return badRequest(msgInvalidJSON, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get().Warn("failed to write response", slog.Any("error", err))
	}
}
