// Package server exposes the local store to the dashboard as a read-only
// JSON API. Nothing here mutates state; every write path stays on the CLI.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/model"
	"github.com/hnv-commerce/adpilot/internal/store"
)

const (
	defaultDays = 30
	maxDays     = 90
	maxLogs     = 500
)

// Handler serves the dashboard endpoints from the store.
type Handler struct {
	store store.Store
	now   func() time.Time
}

// NewRouter builds the chi router with CORS open for the local dashboard.
func NewRouter(st store.Store) http.Handler {
	h := &Handler{store: st, now: time.Now}
	return h.routes()
}

func (h *Handler) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", h.handleHealthz)
	r.Route("/api", func(api chi.Router) {
		api.Get("/status", h.handleStatus)
		api.Get("/logs", h.handleLogs)
		api.Get("/trend", h.handleTrend)
		api.Get("/performance/campaigns", h.handleCampaignPerformance)
		api.Get("/performance/products", h.handleProductPerformance)
		api.Get("/settings/products", h.handleProductSettings)
		api.Get("/negatives", h.handleNegatives)
	})
	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// statusKeys are the system-state entries the dashboard surfaces.
var statusKeys = []string{
	model.KeySyncStatus, model.KeySyncError, model.KeySyncDays,
	model.KeyAutoSyncTS, model.KeyAutoEnabled, model.KeyAutoLive,
	model.KeyAutoLastRun, model.KeyAutoTargetACOS, model.KeyAutoMaxBid,
	model.KeyAutoStopLoss, model.KeyNegativeEnabled, model.KeyNegativeLastRun,
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string, len(statusKeys))
	for _, key := range statusKeys {
		val, err := h.store.GetState(r.Context(), key)
		if err != nil {
			h.fail(w, "read status", err)
			return
		}
		out[key] = val
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 200)
	if limit > maxLogs {
		limit = maxLogs
	}
	logs, err := h.store.AutomationLogs(r.Context(), limit)
	if err != nil {
		h.fail(w, "read automation logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	start, end := h.window(r)
	trend, err := h.store.TrendByDate(r.Context(), start, end)
	if err != nil {
		h.fail(w, "read trend", err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (h *Handler) handleCampaignPerformance(w http.ResponseWriter, r *http.Request) {
	start, end := h.window(r)
	perf, err := h.store.CampaignPerformance(r.Context(), start, end)
	if err != nil {
		h.fail(w, "read campaign performance", err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (h *Handler) handleProductPerformance(w http.ResponseWriter, r *http.Request) {
	start, end := h.window(r)
	perf, err := h.store.ProductPerformance(r.Context(), start, end)
	if err != nil {
		h.fail(w, "read product performance", err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (h *Handler) handleProductSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.ProductSettingsList(r.Context())
	if err != nil {
		h.fail(w, "read product settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) handleNegatives(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.NegativeKeywords(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		h.fail(w, "read negative keywords", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// window resolves the ?days=N query into an inclusive date range ending
// yesterday.
func (h *Handler) window(r *http.Request) (start, end string) {
	days := queryInt(r, "days", defaultDays)
	if days < 1 {
		days = 1
	}
	if days > maxDays {
		days = maxDays
	}
	end = h.now().AddDate(0, 0, -1).Format("2006-01-02")
	start = h.now().AddDate(0, 0, -days).Format("2006-01-02")
	return start, end
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	zap.L().Error("dashboard api error", zap.String("action", action), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": action + " failed"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
