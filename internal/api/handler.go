package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/spiritx/internal/auth"
	"github.com/opensource-finance/spiritx/internal/bus"
	"github.com/opensource-finance/spiritx/internal/chatbot"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/live"
	"github.com/opensource-finance/spiritx/internal/metrics"
	"github.com/opensource-finance/spiritx/internal/query"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	auth     *auth.Service
	query    *query.Engine
	bot      *chatbot.Bot
	hub      *live.Hub
	metrics  *metrics.Recorder
	validate *validator.Validate
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		auth:     deps.Auth,
		query:    deps.Query,
		bot:      deps.Chatbot,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		validate: validator.New(),
		version:  version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := h.ping(r); err != nil {
		status = "degraded"
	}

	resp := map[string]any{
		"status":  status,
		"version": h.version,
	}
	if h.hub != nil {
		resp["liveClients"] = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether every backend answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r); err != nil {
		slog.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready": false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ping(r *http.Request) error {
	ctx := r.Context()
	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			return fmt.Errorf("repository: %w", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			return fmt.Errorf("event bus: %w", err)
		}
	}
	return nil
}

// decode reads a JSON body into dst and runs its validate tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON request body", domain.ErrInvalidInput)
	}
	if err := h.validate.StructCtx(r.Context(), dst); err != nil {
		return fmt.Errorf("%w: validation failed: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// publish announces a player change. Delivery is best effort.
func (h *Handler) publish(r *http.Request, topic string, ev domain.PlayerEvent) {
	if h.bus == nil {
		return
	}
	if err := bus.PublishEvent(r.Context(), h.bus, topic, ev); err != nil {
		slog.Warn("failed to publish player event", "topic", topic, "type", ev.Type, "error", err)
	}
}

// claims returns the caller's claims. Routes using it sit behind RequireUser.
func claims(r *http.Request) *auth.Claims {
	c, _ := auth.ClaimsFrom(r.Context())
	return c
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrTeamFull),
		errors.Is(err, domain.ErrInsufficientBudget),
		errors.Is(err, domain.ErrNotInTeam):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyInTeam):
		return http.StatusConflict
	case errors.Is(err, domain.ErrThrottled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Unmapped errors are logged
// and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
