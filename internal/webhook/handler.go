package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PauloHFS/guidebot/internal/contextkeys"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/validator"
	"github.com/PauloHFS/guidebot/internal/worker"
)

const (
	JobSyncPost   = "sync_post"
	JobRemovePost = "remove_post"

	SignatureHeader = "X-Ghost-Signature"

	maxPayloadBytes    = 1 << 20
	signatureTolerance = 5 * time.Minute
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleSignature   = errors.New("webhook signature expired")
)

// Queue receives the jobs a webhook produces.
type Queue interface {
	Enqueue(job worker.Job) error
}

type postRef struct {
	Slug   string `json:"slug" validate:"omitempty,max=191"`
	Status string `json:"status"`
}

// ghostPayload is the body Ghost sends for post.* events. Deleted and
// unpublished posts arrive with an empty current object.
type ghostPayload struct {
	Post struct {
		Current  postRef `json:"current"`
		Previous postRef `json:"previous"`
	} `json:"post"`
}

// Handler turns Ghost post webhooks into sync jobs.
type Handler struct {
	queue  Queue
	secret []byte
	now    func() time.Time
}

// NewHandler verifies payload signatures when secret is non-empty.
func NewHandler(q Queue, secret string) *Handler {
	return &Handler{
		queue:  q,
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}

	if len(h.secret) > 0 {
		if err := h.verify(r.Header.Get(SignatureHeader), payload); err != nil {
			logging.AddToEvent(r.Context(), slog.String("webhook_rejected", err.Error()))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
	}

	var input ghostPayload
	if err := json.Unmarshal(payload, &input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := validator.Validate(input); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "validation failed"})
		return
	}

	jobs := jobsFor(input)
	if len(jobs) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "payload names no post"})
		return
	}

	requestID := contextkeys.RequestID(r.Context())
	for _, job := range jobs {
		job.RequestID = requestID
		if err := h.queue.Enqueue(job); err != nil {
			logging.Get().ErrorContext(r.Context(), "failed to enqueue webhook job",
				slog.String("job_type", job.Type),
				slog.String("slug", job.Key),
				slog.Any("error", err),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "failed to enqueue job"})
			return
		}
	}

	logging.AddToEvent(r.Context(), slog.Int("webhook_jobs", len(jobs)))
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "jobs": len(jobs)})
}

// jobsFor maps a post event onto jobs. A published post is synced, anything
// else is removed. A renamed post also drops its previous slug.
func jobsFor(p ghostPayload) []worker.Job {
	cur, prev := p.Post.Current, p.Post.Previous

	var jobs []worker.Job
	switch {
	case cur.Slug != "" && (cur.Status == "" || cur.Status == "published"):
		jobs = append(jobs, worker.Job{Type: JobSyncPost, Key: cur.Slug})
		if prev.Slug != "" && prev.Slug != cur.Slug {
			jobs = append(jobs, worker.Job{Type: JobRemovePost, Key: prev.Slug})
		}
	case cur.Slug != "":
		jobs = append(jobs, worker.Job{Type: JobRemovePost, Key: cur.Slug})
	case prev.Slug != "":
		jobs = append(jobs, worker.Job{Type: JobRemovePost, Key: prev.Slug})
	}
	return jobs
}

// verify checks a "sha256=<hex>, t=<unix ms>" header against
// HMAC-SHA256(secret, body+t).
func (h *Handler) verify(header string, body []byte) error {
	if header == "" {
		return ErrMissingSignature
	}

	var sig, ts string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "sha256":
			sig = v
		case "t":
			ts = v
		}
	}
	if sig == "" || ts == "" {
		return ErrInvalidSignature
	}

	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if age := h.now().Sub(time.UnixMilli(ms)); age > signatureTolerance || age < -signatureTolerance {
		return ErrStaleSignature
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, Sign(h.secret, body, ts)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature Ghost sends for body at timestamp ts.
func Sign(secret, body []byte, ts string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	mac.Write([]byte(ts))
	return mac.Sum(nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
