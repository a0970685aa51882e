// Package api serves the AFM measurement endpoints over HTTP.
package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/afm-api/internal/config"
	"github.com/sells-group/afm-api/internal/service"
)

// Handler holds the dependencies of the HTTP endpoints.
type Handler struct {
	svc     *service.Service
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewHandler creates a Handler. Rebuild requests are limited to one per
// cfg.RebuildMinIntervalSecs; zero or less disables the limit.
func NewHandler(svc *service.Service, cfg config.ServerConfig) *Handler {
	limit := rate.Inf
	if cfg.RebuildMinIntervalSecs > 0 {
		limit = rate.Every(time.Duration(cfg.RebuildMinIntervalSecs) * time.Second)
	}
	return &Handler{
		svc:     svc,
		limiter: rate.NewLimiter(limit, 1),
		log:     zap.L().With(zap.String("component", "api")),
	}
}

// NewRouter builds the HTTP routes.
func NewRouter(svc *service.Service, cfg config.ServerConfig) http.Handler {
	h := NewHandler(svc, cfg)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Route("/afm-files", func(r chi.Router) {
			r.Get("/", h.listFiles)
			r.Get("/search", h.searchFiles)
			r.Get("/detail/{filename}", h.detail)
			r.Get("/availability/{filename}", h.availability)
			r.Get("/export/{filename}", h.exportFile)
			r.Get("/profile/{filename}/{point}", h.profile)
			r.Get("/image/{filename}/{point}", h.image)
			r.Get("/image-file/{filename}/{point}", h.imageFile)
			r.Get("/image-file/{filename}/{point}/{type}/{name}", h.typedImageFile)
			r.Get("/images/{type}", h.images)
			r.Get("/cache", h.cacheInfo)
			r.Post("/cache/rebuild", h.rebuild)
		})
	})
	return r
}

// pathParam returns a URL parameter, decoding it when the router matched
// on the escaped path.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}
