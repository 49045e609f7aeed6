// Package server exposes the AutoDQ dashboard, tracker and rule assistant
// as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/refresh"
	"github.com/alexanderjulianmartinez/autodq/internal/rules"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/internal/tracker"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 5 * time.Second
	sessionName     = "autodq"
)

// Deps are the components the API serves. Rules may be nil when no job is
// configured.
type Deps struct {
	Config   *config.Config
	Reader   *source.Reader
	Cache    *refresh.Cache
	Catalog  config.RuleCatalog
	Tracker  *tracker.Store
	Rules    *rules.Manager
	Registry *prometheus.Registry
	Log      zerolog.Logger
}

type Server struct {
	Deps
	sessions *sessions.CookieStore
	router   chi.Router
	now      func() time.Time
}

func New(d Deps) *Server {
	secret := d.Config.Server.SessionSecret
	if secret == "" {
		secret = "autodq-development-session-secret"
		d.Log.Warn().Msg("server.session_secret not set; using a development secret")
	}
	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(86400 * 30)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode

	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	s := &Server{Deps: d, sessions: store, now: time.Now}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.Server.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
		}),
	)

	r.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Post("/refresh", s.refresh)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", s.dashboard)
			r.Get("/options", s.dashboardOptions)
			r.Get("/export.csv", s.dashboardExport)
		})
		r.Route("/intelligence", func(r chi.Router) {
			r.Get("/", s.intelligence)
			r.Get("/summary.csv", s.intelligenceSummary)
		})
		r.Get("/coverage", s.coverage)
		r.Get("/alerts", s.alerts)
		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/columns", s.anomalyColumns)
			r.Post("/", s.anomalies)
		})
		r.Get("/schema", s.schema)
		r.Post("/cleaning", s.cleaning)

		r.Route("/tracker", func(r chi.Router) {
			r.Get("/", s.trackerList)
			r.Get("/options", s.trackerOptions)
			r.Post("/import", s.trackerImport)
			r.Post("/bulk", s.trackerBulk)
			r.Delete("/resolved", s.trackerClearResolved)
			r.Get("/metrics", s.trackerMetrics)
			r.Get("/export.csv", s.trackerExport)
			r.Get("/summary", s.trackerSummary)
			r.Get("/{id}", s.trackerGet)
			r.Patch("/{id}", s.trackerUpdate)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/saved", s.rulesSaved)
			r.Get("/examples", s.rulesExamples)
			r.Post("/execute", s.rulesExecute)
			r.Get("/executions", s.rulesList)
			r.Route("/executions/{id}", func(r chi.Router) {
				r.Get("/", s.rulesGet)
				r.Get("/rows", s.rulesRows)
				r.Post("/stop", s.rulesStop)
				r.Post("/save", s.rulesSave)
				r.Post("/discard", s.rulesDiscard)
			})
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.settingsStatus)
			r.Get("/refresh", s.settingsRefresh)
			r.Put("/refresh", s.updateSettingsRefresh)
			r.Put("/scope", s.updateScope)
			r.Post("/test-connection", s.testConnection)
			r.Get("/schemas", s.listSchemas)
			r.Get("/tables", s.listTables)
		})
	})
	return r
}

// requestLogger logs one line per request at debug, or warn for 5xx.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		ev := s.Log.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			ev = s.Log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// Serve listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Config.Server.Port)
	s.Log.Info().Str("addr", fmt.Sprintf("http://localhost:%d", s.Config.Server.Port)).Msg("starting server")

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.Log.Debug().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
