package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imageprompt/internal/http/handlers"
	"imageprompt/internal/infra"
	"imageprompt/internal/metrics"
	"imageprompt/internal/middleware"
)

// Options carries the cross-cutting pieces the router needs besides the handlers.
type Options struct {
	Logger         infra.Logger
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
	AllowedOrigins []string
	RateLimit      int
	Metrics        *metrics.Collector

	// TrustProxyHeaders installs chimw.RealIP so RemoteAddr follows
	// X-Forwarded-For. Leave it off when clients reach the API directly.
	TrustProxyHeaders bool
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	// Middlewares dasar
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(
		chimw.Recoverer,
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	// Health
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Get("/v1/stats/24h", app.Stats24h)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = 30
	}
	limiter := middleware.NewRateLimiter(limit, time.Minute)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Post("/api/image-to-prompt", app.ImageToPrompt)
		r.Post("/v1/image-to-prompt", app.ImageToPrompt)
	})

	return r
}
