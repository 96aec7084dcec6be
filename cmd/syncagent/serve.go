package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/photosync/syncagent/internal/handlers"
	"github.com/photosync/syncagent/internal/middleware"
	"github.com/photosync/syncagent/internal/observability"
	"github.com/photosync/syncagent/internal/services"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "run",
	Short:   "Run the HTTP API, websocket feed and periodic sync",
	Long: `Run the agent in the foreground.

Serves the sync API under /api/sync, streams progress on /ws and, when
sync.periodicAutoStart is set, runs the periodic tick loop. With
gallery.watch set, new photos in the gallery trigger a tick right away.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		return a.serve(ctx)
	},
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger.WithField("component", "server")
	hub := services.NewWebSocketHub()

	a.scan.SetOnFinished(func(r services.ScanResult) {
		hub.BroadcastToTopic(services.TopicEvents, services.WSMessage{
			Type:    services.WSTypeScanComplete,
			Payload: handlers.ScanSummary(r),
		})
	})
	a.periodic.SetOnTick(func(r services.TickResult) {
		hub.BroadcastToTopic(services.TopicEvents, services.WSMessage{
			Type:    services.WSTypeTickComplete,
			Payload: handlers.TickSummary(r),
		})
	})

	router, err := a.router(hub)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         a.cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // POST /api/sync/tick waits for the tick
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		hub.ForwardProgress(ctx, "full_scan", a.scan.Progress())
		return nil
	})
	g.Go(func() error {
		hub.ForwardProgress(ctx, "periodic", a.periodic.Progress())
		return nil
	})

	if a.cfg.Sync.PeriodicAutoStart {
		a.periodic.Start()
	}

	if a.cfg.Gallery.Watch {
		watcher := services.NewGalleryWatcher(
			a.gallery.RootPath(),
			a.gallery.IsImageFile,
			time.Duration(a.cfg.Gallery.WatchDebounceMs)*time.Millisecond,
			func(ctx context.Context) { a.periodic.RunTick(ctx) },
		)
		g.Go(func() error {
			if err := watcher.Run(ctx); err != nil {
				// The API stays useful without the watcher
				logger.Warnf("Gallery watcher stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")

		a.periodic.Stop()
		a.scan.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.scan.Wait(shutdownCtx); err != nil {
			logger.Warnf("Full scan did not stop in time: %v", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logger.Infof("PhotoSync agent starting on %s", a.cfg.ServerAddress)
		logger.Infof("Gallery: %s, uploader: %s", a.gallery.RootPath(), a.cfg.Uploader.Kind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Agent stopped")
	return err
}

func (a *app) router(hub *services.WebSocketHub) (http.Handler, error) {
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		return nil, err
	}

	verify, err := middleware.NewKeyVerifier(a.cfg.Security.APIKey, a.cfg.Security.APIKeyHash)
	if err != nil {
		return nil, fmt.Errorf("api key: %w", err)
	}

	healthHandler := handlers.NewHealthHandler()
	syncHandler := handlers.NewSyncHandler(a.store, a.scan, a.periodic)
	wsHandler := handlers.NewWebSocketHandler(hub)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(observability.TracingMiddleware())
	r.Use(observability.MetricsMiddleware(httpMetrics))
	r.Use(middleware.APIKeyAuth(verify, a.cfg.Security.APIKeyHeader))

	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/version", healthHandler.Version)

	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/status", syncHandler.GetStatus)
		r.Get("/intervals", syncHandler.GetIntervals)
		r.Post("/scan", syncHandler.StartScan)
		r.Post("/scan/stop", syncHandler.StopScan)
		r.Post("/tick", syncHandler.RunTick)
		r.Post("/anchor", syncHandler.EnableAnchor)
		r.Delete("/anchor", syncHandler.DisableAnchor)
		r.Post("/merge", syncHandler.MergeIntervals)
	})

	r.Get("/ws", wsHandler.HandleConnection)

	return r, nil
}
