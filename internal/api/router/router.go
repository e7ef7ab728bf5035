package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// HealthCheck probes a dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	SchedulingHandler  *scheduling.Handler
	ClinicHandler      *clinic.Handler
	ClinicDashboard    *clinic.DashboardHandler
	FeedHandler        http.Handler
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		// Browsers cannot attach headers to a websocket upgrade, so the feed
		// takes the clinic from its query string instead.
		if cfg.FeedHandler != nil {
			public.Handle("/feed/appointments", cfg.FeedHandler)
		}
	})

	// Clinic-scoped endpoints
	r.Group(func(tenant chi.Router) {
		tenant.Use(requireClinicID)
		if cfg.RateLimiter != nil {
			tenant.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		tenant.Use(middleware.AllowContentType("application/json"))
		if cfg.SchedulingHandler != nil {
			cfg.SchedulingHandler.RegisterRoutes(tenant)
		}
		if cfg.ClinicHandler != nil {
			cfg.ClinicHandler.RegisterRoutes(tenant)
		}
		if cfg.ClinicDashboard != nil {
			tenant.Get("/clinics/dashboard", cfg.ClinicDashboard.GetDashboard)
		}
	})

	return r
}

// healthHandler reports "ok" when every probe passes and "degraded" with
// a 503 otherwise.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		resp := map[string]string{}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				resp[name] = err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp[name] = "ok"
		}
		resp["status"] = status

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
