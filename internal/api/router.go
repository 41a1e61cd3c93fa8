package api

import (
	"log/slog"
	"net/http"
	"time"

	_ "library-api/docs"
	"library-api/internal/api/handler"
	mw "library-api/internal/api/middleware"
	"library-api/internal/config"
	"library-api/internal/library"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

const apiPrefix = "/api/v1"

func SetupRouter(svc library.Service, limiter mw.Limiter, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, limiter, cfg, logger)
	setupMetricsEndpoint(router, cfg, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	setupSwaggerEndpoint(router, logger)

	router.Route(apiPrefix, func(r chi.Router) {
		setupAuthRoutes(r, cfg, logger)
		r.Group(func(r chi.Router) {
			r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
			setupBookRoutes(r, svc, logger)
			setupLoanRoutes(r, svc, logger)
		})
	})

	return router
}

func setupMiddleware(router *chi.Mux, limiter mw.Limiter, cfg *config.Config, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(mw.NewRateLimiterMiddleware(cfg.Server.RateLimit, limiter, logger).Middleware)
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupSwaggerEndpoint(router *chi.Mux, logger *slog.Logger) {
	logger.Info("Setting up Swagger UI endpoint", "path", "/swagger/")
	router.Get("/swagger/*", httpSwagger.WrapHandler)
	router.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
}

func setupAuthRoutes(r chi.Router, cfg *config.Config, logger *slog.Logger) {
	authHandler := handler.NewAuthHandler(cfg.Server.Auth, logger)
	r.Post("/auth/token", authHandler.GenerateBearerToken)
}

func setupBookRoutes(r chi.Router, svc library.Service, logger *slog.Logger) {
	h := handler.NewBookHandler(svc, logger)

	r.Route("/books", func(r chi.Router) {
		r.Post("/", h.CreateBook)
		r.Get("/", h.FindBooks)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetBook)
			r.Put("/", h.UpdateBook)
			r.Delete("/", h.DeleteBook)
			r.Get("/loans", h.BookLoans)
			r.Get("/availability", h.Availability)
		})
	})
}

func setupLoanRoutes(r chi.Router, svc library.Service, logger *slog.Logger) {
	h := handler.NewLoanHandler(svc, logger)

	r.Route("/loans", func(r chi.Router) {
		r.Post("/", h.CreateLoan)
		r.Get("/", h.FindLoans)
		r.Patch("/{id}", h.ReturnLoan)
	})
}
