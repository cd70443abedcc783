package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"scaler-service/middleware"
)

type RouterConfig struct {
	Shortener LinkShortener
	Resolver  LinkResolver
	Links     LinkFinder
	Dashboard DashboardReader
	Clicks    ClickRecorder
	Broker    *SSEBroker

	Checks   map[string]Pinger
	Metrics  map[string]MetricsSource
	Requests *middleware.RequestCounter

	BaseURL        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Broker == nil {
		cfg.Broker = NewSSEBroker()
	}
	if cfg.Requests == nil {
		cfg.Requests = &middleware.RequestCounter{}
	}

	metrics := map[string]MetricsSource{
		"requests":    func() any { return cfg.Requests.Stats() },
		"sse_clients": func() any { return cfg.Broker.ClientCount() },
	}
	for name, source := range cfg.Metrics {
		metrics[name] = source
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(cfg.Requests.Count)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/", Root())
	r.Get("/health", Health())
	r.Get("/ready", Readiness(cfg.Checks))
	r.Get("/metrics", Metrics(metrics))

	r.Post("/shorten", CreateLink(cfg.Shortener, cfg.BaseURL, cfg.Logger))

	r.Route("/api", func(api chi.Router) {
		api.Post("/links", CreateLink(cfg.Shortener, cfg.BaseURL, cfg.Logger))
		api.Get("/links/{code}", GetLink(cfg.Links, cfg.BaseURL, cfg.Logger))
		api.Get("/links/{code}/qr", LinkQR(cfg.Links, cfg.BaseURL, cfg.Logger))
		api.Get("/links/{code}/stream", StreamClicks(cfg.Links, cfg.Broker, cfg.Logger))
		api.Get("/urls", ListLinks(cfg.Dashboard, cfg.BaseURL, cfg.Logger))
		api.Get("/analytics", GetAnalytics(cfg.Dashboard, cfg.Logger))
		api.Post("/track/{code}", TrackClick(cfg.Links, cfg.Clicks, cfg.Logger))
	})

	r.Get("/{code}", HandleRedirect(cfg.Resolver, cfg.Logger))

	return r
}
