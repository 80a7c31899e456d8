// Package api exposes the telescope control facade over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/unklstewy/skytrack/internal/auth"
	"github.com/unklstewy/skytrack/internal/history"
	"github.com/unklstewy/skytrack/internal/telescope"
)

// Options configures a Server. History and Auth are optional.
type Options struct {
	// History serves GET /history; nil disables it.
	History *history.Store

	// Auth protects every non-public route; nil leaves the API open.
	Auth *auth.Service

	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server holds the HTTP router and its dependencies
type Server struct {
	router  *chi.Mux
	control *telescope.Control
	history *history.Store
	authSvc *auth.Service
	log     zerolog.Logger
	origins []string
	started time.Time
}

// NewServer builds the router for control.
func NewServer(control *telescope.Control, opts Options) *Server {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &Server{
		router:  chi.NewRouter(),
		control: control,
		history: opts.History,
		authSvc: opts.Auth,
		log:     opts.Logger.With().Str("component", "api").Logger(),
		origins: origins,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleToken)

		// Read-only routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleViewer))

			r.Get("/telescope/target", s.handleCurrentTarget)
			r.Get("/activities", s.handleListActivities)
			r.Get("/activities/{id}", s.handleGetActivity)
			r.Get("/history", s.handleHistory)
		})

		// Mount control routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleObserver))

			r.Post("/calibrate", s.handleCalibrate)
			r.Post("/calibrate/by_name", s.handleCalibrateByName)
			r.Post("/calibrate/solar_system_object", s.handleCalibrateSolarSystem)
			r.Post("/calibrate/bump", s.handleBump)

			r.Post("/goto", s.handleGoto)
			r.Post("/goto/by_name", s.handleGotoByName)
			r.Post("/goto/mpc", s.handleGotoMinorPlanet)
			r.Post("/goto/solar_system_object", s.handleGotoSolarSystem)

			r.Post("/activities/{id}/cancel", s.handleCancel)
		})
	})
}

// requestLogger logs each request with zerolog once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
