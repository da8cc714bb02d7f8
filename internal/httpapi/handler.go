// Package httpapi exposes the service over HTTP: fetch-and-store, search,
// top-word definitions, rebuild, and status. It owns request decoding,
// validation, error-to-status mapping, and per-request metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"parasearch/internal/paragraphs"
	"parasearch/internal/ratelimit"
	"parasearch/internal/search"
	apperrors "parasearch/pkg/errors"
	"parasearch/pkg/logger"
	"parasearch/pkg/metrics"
)

// SearchRequest is the JSON body accepted by the search endpoint.
type SearchRequest struct {
	Words    []string `json:"words"`
	Operator string   `json:"operator"`
}

// DictionaryResponse wraps the ranked words of the dictionary endpoint.
type DictionaryResponse struct {
	TopWords []paragraphs.RankedWord `json:"top_words"`
	Path     search.Path             `json:"path"`
}

// Handler holds the HTTP endpoints.
type Handler struct {
	svc            *paragraphs.Service
	metrics        *metrics.Metrics
	limiter        *ratelimit.Limiter
	fetchPerMinute int
	logger         *slog.Logger
}

// New creates a Handler. metrics may be nil in tests.
func New(svc *paragraphs.Service, m *metrics.Metrics, fetchPerMinute int) *Handler {
	return &Handler{
		svc:            svc,
		metrics:        m,
		limiter:        ratelimit.New(time.Minute),
		fetchPerMinute: fetchPerMinute,
		logger:         slog.Default().With("component", "http-handler"),
	}
}

// Register attaches all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /fetch", h.Fetch)
	mux.HandleFunc("POST /search", h.Search)
	mux.HandleFunc("GET /dictionary", h.Dictionary)
	mux.HandleFunc("POST /rebuild", h.Rebuild)
	mux.HandleFunc("GET /status", h.Status)
}

// Fetch pulls a paragraph from the generator, stores and indexes it.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.fetchPerMinute > 0 && !h.limiter.Allow(clientKey(r), h.fetchPerMinute) {
		h.writeError(w, http.StatusTooManyRequests, "fetch rate limit exceeded")
		return
	}

	result, err := h.svc.FetchAndStore(ctx)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("fetch failed", "error", err, "status_code", status)
		h.writeError(w, status, "fetching paragraph failed")
		return
	}
	if h.metrics != nil {
		h.metrics.ParagraphsStored.Inc()
		if result.Indexed {
			h.metrics.IndexWritesTotal.WithLabelValues("ok").Inc()
		} else {
			h.metrics.IndexWritesTotal.WithLabelValues("failed").Inc()
		}
		h.setAvailabilityGauge()
	}
	log.Info("paragraph stored",
		"paragraph_id", result.Paragraph.ID,
		"indexed", result.Indexed,
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Search evaluates a multi-word AND/OR query.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := ValidateSearchRequest(&req); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := h.svc.Search(ctx, req.Words, req.Operator)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed", "error", err, "status_code", status)
		h.writeError(w, status, "search failed")
		return
	}
	if h.metrics != nil {
		h.metrics.SearchesTotal.WithLabelValues(string(result.Path), req.Operator).Inc()
		h.metrics.SearchLatency.WithLabelValues(string(result.Path)).Observe(time.Since(start).Seconds())
		h.setAvailabilityGauge()
	}
	log.Info("search served",
		"words", len(req.Words),
		"operator", req.Operator,
		"path", result.Path,
		"hits", result.Count,
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Dictionary returns the top-N frequent words with definitions.
func (h *Handler) Dictionary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	ranked, path, err := h.svc.TopWords(ctx, n)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("dictionary request failed", "error", err, "status_code", status)
		h.writeError(w, status, "ranking words failed")
		return
	}
	if h.metrics != nil {
		h.metrics.TopWordsTotal.WithLabelValues(string(path)).Inc()
		h.setAvailabilityGauge()
	}
	if ranked == nil {
		ranked = []paragraphs.RankedWord{}
	}
	h.writeJSON(w, http.StatusOK, DictionaryResponse{TopWords: ranked, Path: path})
}

// Rebuild reconstructs the index from the authoritative store.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	start := time.Now()
	if err := h.svc.Rebuild(ctx); err != nil {
		if h.metrics != nil {
			h.metrics.RebuildsTotal.WithLabelValues("failed").Inc()
		}
		status := apperrors.HTTPStatusCode(err)
		log.Error("rebuild failed", "error", err, "status_code", status)
		h.writeError(w, status, "rebuild failed")
		return
	}
	duration := time.Since(start)
	if h.metrics != nil {
		h.metrics.RebuildsTotal.WithLabelValues("ok").Inc()
		h.metrics.RebuildDuration.Observe(duration.Seconds())
		h.setAvailabilityGauge()
	}
	log.Info("rebuild complete", "duration", duration.Round(time.Millisecond))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"duration_ms": duration.Milliseconds(),
	})
}

// Status reports store size, index stats, and cache availability.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Status(r.Context())
	if err != nil {
		code := apperrors.HTTPStatusCode(err)
		h.writeError(w, code, "status unavailable")
		return
	}
	if h.metrics != nil {
		h.setAvailabilityGauge()
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) setAvailabilityGauge() {
	if h.svc.CacheAvailable() {
		h.metrics.CacheAvailable.Set(1)
	} else {
		h.metrics.CacheAvailable.Set(0)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
