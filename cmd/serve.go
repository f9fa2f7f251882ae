package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadfactor/enrich-cli/internal/enrich"
	"github.com/leadfactor/enrich-cli/internal/model"
	"github.com/leadfactor/enrich-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger API for enrichment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.ValidatePipeline(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		runner := enrich.NewRunner(st, initLookup(), initReachability(), enrich.Config{
			BatchSize:   cfg.Enrich.BatchSize,
			RecordDelay: cfg.Enrich.RecordDelay(),
			MaxErrors:   cfg.Enrich.MaxErrors,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(ctx, st, runner),
		}

		go gracefulShutdown(ctx, srv)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// triggerRunner is the part of the orchestrator the trigger API needs.
type triggerRunner interface {
	Run(ctx context.Context, scope enrich.Scope) (*model.BatchOutcome, error)
}

// buildRouter assembles the trigger API routes. Triggered runs execute
// asynchronously against ctx, the server's lifetime context.
func buildRouter(ctx context.Context, st store.Store, runner triggerRunner) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), 50)
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Post("/runs", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			OwnerID int64 `json:"owner_id"`
			Limit   int   `json:"limit"`
			Force   bool  `json:"force"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.OwnerID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id is required"})
			return
		}

		scope := enrich.Scope{OwnerID: body.OwnerID, Limit: body.Limit, Force: body.Force}

		// Run asynchronously; the run row carries progress and outcome.
		go func() {
			out, err := runner.Run(ctx, scope)
			if err != nil {
				zap.L().Error("triggered run failed",
					zap.Int64("owner_id", scope.OwnerID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("triggered run complete",
				zap.Int64("owner_id", scope.OwnerID),
				zap.Int("succeeded", out.Succeeded),
				zap.Int("failed", out.Failed),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "accepted",
			"owner_id": body.OwnerID,
		})
	})

	return r
}

// shutdownGrace bounds how long in-flight requests may drain on shutdown.
const shutdownGrace = 10 * time.Second

// gracefulShutdown waits for ctx to be cancelled, then drains the server
// on a fresh context: the signal context is already dead and would abort
// in-flight requests immediately.
func gracefulShutdown(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	srv.Shutdown(drainCtx) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
