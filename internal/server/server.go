// Package server exposes stored studies and their tuning-curve
// reports over http.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opda-dev/opda/internal/auth"
	"github.com/opda-dev/opda/internal/config"
	"github.com/opda-dev/opda/internal/logging"
	"github.com/opda-dev/opda/internal/observability"
	"github.com/opda-dev/opda/internal/report"
	"github.com/opda-dev/opda/internal/store"
)

const version = "0.1.0"

// Service is the http front end over a study store.
type Service struct {
	cfg       config.ServiceConfig
	store     *store.Store
	analyzer  *report.Analyzer
	router    *gin.Engine
	startedAt time.Time
}

func New(cfg config.ServiceConfig, st *store.Store) *Service {
	observability.RegisterMetrics()

	s := &Service{
		cfg:       cfg,
		store:     st,
		analyzer:  report.NewAnalyzer(st),
		startedAt: time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Service) buildRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logging.For("http")))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.Name))
	if len(s.cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	if s.cfg.AuthToken != "" {
		api.Use(auth.Middleware(auth.StaticToken{Token: s.cfg.AuthToken}))
	}
	api.GET("/studies", s.handleListStudies)
	api.GET("/studies/:id", s.handleGetStudy)
	api.GET("/studies/:id/curve", s.handleCurve)

	return r
}

// Router exposes the handler, mainly for tests.
func (s *Service) Router() http.Handler { return s.router }

// Run serves until the context is done, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		logger := logging.For("http")
		logger.Info().Str("addr", s.cfg.Addr).Msg("serving api")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
