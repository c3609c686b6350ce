package api

import (
	"net/http"
	"time"

	"gitevents/internal"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	WebhookPath        string
	Webhook            http.Handler
	Events             *RecentEvents
	Logger             *logrus.Entry
	CORSAllowedOrigins []string
	RateLimitRPS       int64
	RateLimitBurst     int64
	MetricsEnabled     bool
	MetricsPath        string
	Now                func() time.Time
}

// NewRouter builds the chi router serving the dashboard, webhook, events,
// health and optional metrics endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = internal.NewLogger("api")
	}
	webhookPath := cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhook"
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(cors.New(corsOptions(cfg.CORSAllowedOrigins)).Handler)

	r.Method(http.MethodGet, "/", internal.InstrumentHandler("/", IndexHandler()))
	r.Method(http.MethodGet, "/health", internal.InstrumentHandler("/health", HealthHandler(cfg.Now)))
	r.Method(http.MethodGet, "/api/events", internal.InstrumentHandler("/api/events", &EventsHandler{
		Events: cfg.Events,
		Logger: logger,
	}))

	if cfg.Webhook != nil {
		webhook := cfg.Webhook
		if cfg.RateLimitRPS > 0 {
			webhook = internal.NewRateLimitHandler(webhook, cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
		}
		r.Method(http.MethodPost, webhookPath, internal.InstrumentHandler(webhookPath, webhook))
	}

	if cfg.MetricsEnabled {
		metricsPath := cfg.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.Method(http.MethodGet, metricsPath, promhttp.Handler())
	}
	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}
}
