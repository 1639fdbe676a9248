package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/autoprocess"
	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/internal/monitoring"
	"github.com/sells-group/transcript-sync/internal/store"
	"github.com/sells-group/transcript-sync/internal/workflow"
)

var servePort int

// jobGetter reads tracked jobs for the status endpoint.
type jobGetter interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// api serves the HTTP endpoints. Only one auto-process run executes at a
// time.
type api struct {
	ctx      context.Context
	runner   workflow.AutoProcessor
	jobs     jobGetter
	running  atomic.Bool
	inFlight sync.WaitGroup
	onDone   func(model.RunSummary)
}

// wait blocks until every background run has returned.
func (a *api) wait() {
	a.inFlight.Wait()
}

// buildRouter wires the HTTP routes. ctx bounds background runs.
func buildRouter(ctx context.Context, runner workflow.AutoProcessor, jobs jobGetter, gatherer prometheus.Gatherer, origins []string) (http.Handler, *api) {
	a := &api{ctx: ctx, runner: runner, jobs: jobs}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/autoprocess", a.handleAutoProcess)
	r.Get("/jobs/{id}", a.handleGetJob)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r, a
}

// handleAutoProcess starts a run. With ?wait=true the summary is returned
// once the run completes; otherwise the run continues in the background.
func (a *api) handleAutoProcess(w http.ResponseWriter, r *http.Request) {
	var p autoprocess.Params
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	if a.runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
		return
	}
	if !a.running.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "auto-process already running"})
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		defer a.running.Store(false)
		summary, err := a.runner.RunAutoProcess(r.Context(), p)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		a.done(summary)
		writeJSON(w, http.StatusOK, summary)
		return
	}

	a.inFlight.Add(1)
	go func() {
		defer a.inFlight.Done()
		defer a.running.Store(false)
		summary, err := a.runner.RunAutoProcess(a.ctx, p)
		if err != nil {
			zap.L().Error("auto-process request rejected", zap.Error(err))
			return
		}
		a.done(summary)
		zap.L().Info("auto-process request complete",
			zap.String("run_id", summary.RunID),
			zap.Int("processed", summary.Processed),
			zap.Int("errored", summary.Errored),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"dry_run": p.DryRun,
	})
}

func (a *api) done(summary model.RunSummary) {
	if a.onDone != nil {
		a.onDone(summary)
	}
}

func (a *api) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if a.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not configured"})
		return
	}
	job, err := a.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "job lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the background alert checker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(env.Collector, env.Alerter, env.Metrics, cfg.Monitoring)
		go checker.Run(ctx)

		handler, a := buildRouter(ctx, env.Runner, env.Store, env.Registry, cfg.Server.CORSOrigins)
		if cfg.Export.FTPAddr != "" {
			a.onDone = func(summary model.RunSummary) {
				if summary.DryRun {
					return
				}
				if err := deliverReport(context.WithoutCancel(ctx), defaultReportPath(summary), summary); err != nil {
					zap.L().Warn("report delivery failed", zap.Error(err))
				}
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		err = srv.ListenAndServe()
		// The store is closed on return; background runs finish their batch first.
		a.wait()
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
