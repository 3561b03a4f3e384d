// Package api exposes the campaign engine over HTTP/JSON.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/benchwire/hotlist/internal/analytics"
	"github.com/benchwire/hotlist/internal/campaign"
	"github.com/benchwire/hotlist/internal/config"
	"github.com/benchwire/hotlist/internal/dispatch"
	"github.com/benchwire/hotlist/internal/metrics"
	"github.com/benchwire/hotlist/internal/repository"
)

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	http   *http.Server
}

// Deps collects everything the HTTP layer talks to
type Deps struct {
	Campaigns *campaign.Service
	Engine    *dispatch.Engine
	Recorder  *analytics.Recorder
	Directory *repository.DirectoryRepository
	Metrics   *metrics.Metrics
}

func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "api"),
	}

	h := newHandlers(deps, s.logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.HTTPMiddleware)
	}

	r.Get("/health", h.health)
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.createCampaign)
			r.Get("/", h.listCampaigns)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getCampaign)
				r.Patch("/", h.updateCampaign)
				r.Delete("/", h.deleteCampaign)

				r.Post("/candidates", h.selectCandidates)
				r.Delete("/candidates/{ref}", h.removeCandidate)
				r.Patch("/candidates/{ref}/work-authorization", h.setWorkAuth)
				r.Post("/candidates/{ref}/reject", h.rejectCandidate)

				r.Post("/schedule", h.scheduleCampaign)
				r.Post("/send", h.sendCampaign)
				r.Post("/cancel", h.cancelCampaign)
				r.Post("/unlock", h.unlockCampaign)
				r.Post("/dispatch", h.dispatchCampaign)

				r.Get("/metrics", h.campaignMetrics)
				r.Get("/events", h.listEvents)
				r.Post("/events", h.recordEvent)
			})
		})

		r.Route("/candidates", func(r chi.Router) {
			r.Get("/", h.listDirectory)
			r.Put("/{ref}", h.upsertDirectory)
			r.Get("/{ref}", h.getDirectory)
		})
	})

	s.http = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server", "addr", s.cfg.Server.ListenAddr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		return nil
	}
}
