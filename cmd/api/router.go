package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/expense-importer/pkg/interceptors"
	"github.com/FACorreiaa/expense-importer/pkg/metrics"
)

// NewRouter builds the HTTP routes. Everything under /api except health
// requires a bearer token.
func NewRouter(d *Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if d.Config.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(interceptors.RequestLogger(d.Logger))
	r.Use(interceptors.CORS(d.Config.Server.CORSOrigins))
	r.Use(d.HTTPMetrics.Middleware)

	if d.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler(d.Registry))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", d.health)

		r.Group(func(r chi.Router) {
			r.Use(d.RateLimiter.Middleware)
			r.Use(interceptors.Auth(d.TokenValidator, d.Logger))
			d.ImportHandler.Register(r)
		})
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func (d *Dependencies) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if d.DB != nil && d.DB.Pool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.DB.Pool.Ping(ctx); err != nil {
			d.Logger.Warn("health check database ping failed", slog.Any("error", err))
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
