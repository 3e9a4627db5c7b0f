package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/PauloHFS/guidebot/internal/config"
	"github.com/PauloHFS/guidebot/internal/ingest"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/middleware"
	"github.com/PauloHFS/guidebot/internal/web"
	"github.com/PauloHFS/guidebot/internal/webhook"
	"github.com/PauloHFS/guidebot/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves GET /health, POST /ask and GET /metrics until SIGINT or SIGTERM.
With a Ghost content key configured, POST /webhooks/ghost refreshes single
posts in the background.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	logger := logging.Get()

	p, err := newPipeline(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	answerer, err := p.answerer(cfg)
	if err != nil {
		return err
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	var hooks http.Handler
	if cfg.GhostAPIKey != "" {
		proc, err := newSyncProcessor(cfg, p)
		if err != nil {
			return err
		}
		proc.Start(workerCtx)
		defer func() {
			cancelWorker()
			proc.Wait()
			if dlq := proc.DeadLetters(); dlq.Len() > 0 {
				logger.Warn("sync jobs left in dead letter queue",
					"count", dlq.Len(), "by_type", dlq.Stats())
			}
		}()
		hooks = webhook.NewHandler(proc, cfg.GhostWebhookSecret)
	} else {
		logger.Warn("GHOST_CMS_CONTENT_API_KEY not set, webhooks disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newHandler(cfg, answerer, hooks),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "port", cfg.Port, "backend", cfg.VectorBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			return err
		}
	case <-done:
	case <-cmd.Context().Done():
	}
	logger.Info("server stopping")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}

	logger.Info("server exited properly")
	return nil
}

// newSyncProcessor queues webhook jobs that refresh single posts. The Ghost
// client and the embedder already retry, so a failed job goes straight to the
// dead letter queue and comes back on the requeue timer.
func newSyncProcessor(cfg *config.Config, p *pipeline) (*worker.Processor, error) {
	client, err := newGhostClient(cfg)
	if err != nil {
		return nil, err
	}
	syncer := ingest.NewSyncer(client, ingest.NewStorage(cfg.PostsDir), p.embedder, p.index)

	policy := retryPolicy(cfg, "sync_post")
	policy.MaxRetries = 0
	proc := worker.NewProcessor(logging.Get(), policy,
		worker.WithRequeue(cfg.SyncRequeueInterval, cfg.SyncMaxRequeues),
	)
	proc.Handle(webhook.JobSyncPost, func(ctx context.Context, job worker.Job) error {
		return syncer.SyncPost(ctx, job.Key)
	})
	proc.Handle(webhook.JobRemovePost, func(ctx context.Context, job worker.Job) error {
		return syncer.RemovePost(ctx, job.Key)
	})
	return proc, nil
}

// newHandler assembles the routes and the middleware chain. Logger wraps the
// mux directly so it can read the matched route pattern. A nil hooks leaves
// the webhook route unregistered.
func newHandler(cfg *config.Config, answerer web.Answerer, hooks http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+web.Metrics, promhttp.Handler())
	if hooks != nil {
		mux.Handle("POST "+web.GhostWebhook, hooks)
	}
	web.RegisterRoutes(mux, web.HandlerDeps{
		Answerer:     answerer,
		ExposeErrors: !cfg.IsProd(),
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, 0)

	handler := middleware.Recovery(
		middleware.Timeout(cfg.RequestTimeout)(
			limiter.Middleware(
				middleware.SecurityHeaders(cfg.IsProd())(
					middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins))(
						middleware.Logger(mux),
					),
				),
			),
		),
	)

	return gzhttp.GzipHandler(otelhttp.NewHandler(handler, "guidebot"))
}
