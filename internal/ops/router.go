// Package ops serves the read-only operations API: health probes, Prometheus metrics
// and JSON views of the catalog, the lanes and recently issued receipts.
package ops

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/checkout-lane/internal/common"
	"github.com/noah-isme/checkout-lane/internal/health"
	"github.com/noah-isme/checkout-lane/internal/lane"
	"github.com/noah-isme/checkout-lane/internal/obs"
	"github.com/noah-isme/checkout-lane/internal/ratelimit"
	"github.com/noah-isme/checkout-lane/internal/receipt"
	"github.com/noah-isme/checkout-lane/internal/store"
)

// Config wires the ops router.
type Config struct {
	Store    *store.Store
	Receipts *receipt.MemorySink
	Health   health.Handler
	Logger   zerolog.Logger
	Metrics  *obs.HTTPMetrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Tracing wraps the router with otelhttp.
	Tracing bool
	// RateLimit throttles /api/v1 per client; the zero value does not limit.
	RateLimit ratelimit.Handler
}

// NewRouter builds the ops HTTP handler.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: cfg.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: cfg.Logger}.Middleware)
	r.Use(secureHeaders)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", cfg.Health.Live)
	r.Get("/health/ready", cfg.Health.Ready)

	h := handler{store: cfg.Store, receipts: cfg.Receipts}
	r.Route("/api/v1", func(v chi.Router) {
		v.Use(cfg.RateLimit.Middleware)
		v.Get("/inventory", h.inventory)
		v.Get("/lanes", h.lanes)
		v.Get("/lanes/{id}", h.lane)
		v.Get("/receipts", h.recentReceipts)
	})

	if !cfg.Tracing {
		return r
	}
	return otelhttp.NewHandler(r, "ops")
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type handler struct {
	store    *store.Store
	receipts *receipt.MemorySink
}

func (h handler) inventory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, errNotConfigured("store"))
		return
	}
	items, err := h.store.Catalog().Items(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h handler) lanes(w http.ResponseWriter, _ *http.Request) {
	if h.store == nil {
		writeError(w, errNotConfigured("store"))
		return
	}
	lanes := h.store.Lanes()
	views := make([]lane.View, 0, len(lanes))
	for _, l := range lanes {
		views = append(views, l.Snapshot())
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"lanes": views})
}

func (h handler) lane(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, errNotConfigured("store"))
		return
	}
	l, err := h.store.Lane(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, l.Snapshot())
}

// recentReceipts lists buffered receipts, newest last. ?lane= filters by lane and
// ?limit= keeps only the most recent n.
func (h handler) recentReceipts(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		common.WriteJSON(w, http.StatusOK, map[string]any{"receipts": []receipt.Receipt{}})
		return
	}
	laneID := strings.TrimSpace(r.URL.Query().Get("lane"))
	out := make([]receipt.Receipt, 0)
	for _, rc := range h.receipts.Recent() {
		if laneID != "" && rc.LaneID() != laneID {
			continue
		}
		out = append(out, rc)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, common.NewAPIError(http.StatusBadRequest, "BAD_REQUEST", "limit must be a non-negative integer", err))
			return
		}
		if n < len(out) {
			out = out[len(out)-n:]
		}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"receipts": out})
}

func errNotConfigured(what string) error {
	return common.NewAPIError(http.StatusServiceUnavailable, "UNAVAILABLE", what+" not configured", nil)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUnknownLane) {
		err = common.NewAPIError(http.StatusNotFound, "NOT_FOUND", err.Error(), err)
	}
	common.WriteError(w, err)
}
