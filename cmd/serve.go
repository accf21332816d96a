package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/export"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/monitoring"
	"github.com/sells-group/leadscout/internal/progress"
	"github.com/sells-group/leadscout/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for launching and watching runs",
	Long:  "Serves a small JSON API: POST /runs starts a scrape, GET /runs/{id}/events polls its progress, POST /runs/{id}/stop stops it. One run executes at a time because runs share a single browser.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Store != nil {
			recoverOrphans(ctx, env.Store)
			if cfg.Monitoring.WebhookURL != "" {
				checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
				go checker.Run(ctx)
			}
		}

		formats, err := export.ParseFormats(cfg.Output.Formats)
		if err != nil {
			return err
		}

		srv := newServer(ctx, env.Store, func(events progress.Sink, dropped func() int64, ts time.Time) runner {
			return env.pipelineFor(events, dropped, ts)
		}, serverOptions{
			EventBuffer:    cfg.Server.EventBuffer,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			OutputDir:      cfg.Output.Dir,
			Formats:        formats,
			Params:         func(p runParams) (model.RunRequest, error) { return p.request(cfg) },
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		srv.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// recoverOrphans marks runs left "running" by a previous process as failed.
func recoverOrphans(ctx context.Context, st store.Store) {
	runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusRunning, Limit: 1000})
	if err != nil {
		zap.L().Warn("serve: orphan check failed", zap.Error(err))
		return
	}
	for _, r := range runs {
		if err := st.UpdateRunStatus(ctx, r.ID, model.RunStatusFailed); err != nil {
			zap.L().Warn("serve: could not mark orphaned run", zap.String("run_id", r.ID), zap.Error(err))
			continue
		}
		zap.L().Info("serve: marked orphaned run failed", zap.String("run_id", r.ID))
	}
}
