package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/sweth/internal/lifecycle"
	"github.com/kjstillabower/sweth/internal/models"
	"github.com/kjstillabower/sweth/internal/observability"
	"github.com/kjstillabower/sweth/internal/traffic"
	"github.com/kjstillabower/sweth/internal/validation"
	"github.com/kjstillabower/sweth/internal/view"
)

// SessionHeader identifies the client whose weather view generations are compared.
const SessionHeader = "X-Session-ID"

// HistoryStore is the search history used by the search and history routes.
type HistoryStore interface {
	Record(ctx context.Context, city string) []string
	Select(city string) string
	Entries() []string
}

// ScreenProvider returns the weather screen for a session.
type ScreenProvider interface {
	Screen(sessionID string) *view.Screen
}

// APIKeyValidator checks upstream credentials for the health endpoint.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context) error
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	Window               time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
	DegradedErrorPct     int
	// CachePing and HistoryPing, when set, report backend reachability.
	CachePing   func() error
	HistoryPing func() error
}

// CityLimits bounds accepted city names in runes.
type CityLimits struct {
	Min int
	Max int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	history      HistoryStore
	screens      ScreenProvider
	validator    APIKeyValidator
	healthConfig *HealthConfig
	state        *lifecycle.State
	traffic      *traffic.Tracker
	limits       CityLimits
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil to check only the API key.
func NewHandler(
	history HistoryStore,
	screens ScreenProvider,
	validator APIKeyValidator,
	healthConfig *HealthConfig,
	state *lifecycle.State,
	tracker *traffic.Tracker,
	limits CityLimits,
	logger *zap.Logger,
) *Handler {
	if state == nil {
		state = lifecycle.New()
	}
	if tracker == nil {
		tracker = traffic.NewTracker(0)
	}
	return &Handler{
		history:      history,
		screens:      screens,
		validator:    validator,
		healthConfig: healthConfig,
		state:        state,
		traffic:      tracker,
		limits:       limits,
		logger:       logger,
	}
}

type cityRequest struct {
	City string `json:"city"`
}

type historyResponse struct {
	History []string `json:"history"`
}

type searchResponse struct {
	History []string           `json:"history"`
	View    models.WeatherView `json:"view"`
}

// PostSearch handles POST /search. The city is validated before any upstream call;
// an invalid city leaves the history untouched.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	city, ok := h.decodeCity(w, r)
	if !ok {
		return
	}
	entries := h.history.Record(r.Context(), city)
	v := h.openView(r, city)
	writeJSON(w, viewStatusCode(v.Status), searchResponse{History: entries, View: v})
}

// GetHistory handles GET /history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, historyResponse{History: h.history.Entries()})
}

// PostHistorySelect handles POST /history/select. Opens the weather view for an
// existing entry without reordering the history.
func (h *Handler) PostHistorySelect(w http.ResponseWriter, r *http.Request) {
	var req cityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a city field")
		return
	}
	if !slices.Contains(h.history.Entries(), req.City) {
		writeError(w, r, http.StatusNotFound, "HISTORY_ENTRY_NOT_FOUND", "city is not in the search history")
		return
	}
	v := h.openView(r, h.history.Select(req.City))
	writeJSON(w, viewStatusCode(v.Status), searchResponse{History: h.history.Entries(), View: v})
}

// GetWeather handles GET /weather/{city}. Opens the weather view without touching history.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.limits.Min, h.limits.Max)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	v := h.openView(r, city)
	writeJSON(w, viewStatusCode(v.Status), v)
}

func (h *Handler) decodeCity(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req cityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a city field")
		return "", false
	}
	city, err := validation.ValidateCity(req.City, h.limits.Min, h.limits.Max)
	if err != nil {
		writeValidationError(w, r, err)
		return "", false
	}
	return city, true
}

func (h *Handler) openView(r *http.Request, city string) models.WeatherView {
	v := h.screens.Screen(r.Header.Get(SessionHeader)).Open(r.Context(), city)
	if v.Status == models.ViewUnavailable {
		h.traffic.Record(traffic.Failure)
	} else {
		h.traffic.Record(traffic.Success)
	}
	return v
}

// viewStatusCode maps a view outcome to the response status.
func viewStatusCode(s models.ViewStatus) int {
	switch s {
	case models.ViewReady:
		return http.StatusOK
	case models.ViewNotFound:
		return http.StatusNotFound
	case models.ViewStale:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "api_key_invalid" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil {
		if h.healthConfig.CachePing != nil {
			checks["cache"] = pingStatus(h.healthConfig.CachePing)
		}
		if h.healthConfig.HistoryPing != nil {
			checks["history"] = pingStatus(h.healthConfig.HistoryPing)
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "sweth",
		"version":   "dev",
		"checks":    checks,
		"uptime":    h.state.Uptime().String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

func pingStatus(ping func() error) string {
	if ping() == nil {
		return "healthy"
	}
	return "unhealthy"
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if h.state.ShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.validator.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig == nil || h.healthConfig.Window <= 0 {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	counts := h.traffic.Counts(h.healthConfig.Window)

	// Denials past the threshold share of the window's rate-limit capacity.
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadThresholdPct > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.Window.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if counts.Denied > 0 && float64(counts.Total()) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.DegradedErrorPct > 0 && counts.FailurePct() >= float64(h.healthConfig.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body with code, message and requestId (correlation ID).
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeValidationError writes 400 INVALID_CITY with a message for the validation failure.
func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "invalid city name"
	switch {
	case errors.Is(err, validation.ErrCityEmpty):
		msg = "Please enter a city name"
	case errors.Is(err, validation.ErrCityTooShort), errors.Is(err, validation.ErrCityTooLong),
		errors.Is(err, validation.ErrCityInvalidChars):
		msg = err.Error()
	}
	writeError(w, r, http.StatusBadRequest, "INVALID_CITY", msg)
}
