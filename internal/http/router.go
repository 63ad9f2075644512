package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sweth/internal/observability"
)

// RouterConfig configures middleware on routes that reach the weather source.
type RouterConfig struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration
}

// NewRouter registers all routes. Search, history selection and weather routes are
// rate limited and bounded by the request timeout; history listing, health and
// metrics are not.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/history", h.GetHistory).Methods(http.MethodGet)

	weather := router.NewRoute().Subrouter()
	weather.Use(RateLimitMiddleware(cfg.Limiter, h.traffic))
	if cfg.RequestTimeout > 0 {
		weather.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	weather.HandleFunc("/search", h.PostSearch).Methods(http.MethodPost)
	weather.HandleFunc("/history/select", h.PostHistorySelect).Methods(http.MethodPost)
	weather.HandleFunc("/weather/{city}", h.GetWeather).Methods(http.MethodGet)

	return router
}
