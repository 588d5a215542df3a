// Package ingest serves the HTTP surface: event ingestion, alert listing,
// health and metrics.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/detection"
	"fleet-sentinel/internal/queue"
	"fleet-sentinel/internal/schema"
)

// Engine is the part of the detection engine the handler drives.
type Engine interface {
	InstrumentEnvelope(env schema.Envelope) *alerting.Alert
	Stats() detection.Stats
}

// Check probes a dependency for the health endpoint.
type Check func(ctx context.Context) error

type namedCheck struct {
	name  string
	check Check
}

// Handler handles HTTP event ingestion and alert queries.
type Handler struct {
	engine      Engine
	validator   *schema.Validator
	sink        *alerting.Sink
	outbox      *queue.RingBuffer[alerting.Alert]
	logger      *slog.Logger
	checks      []namedCheck
	maxPayload  int
	maxBatch    int
	startTime   time.Time
	eventsTotal atomic.Uint64
}

// NewHandler creates a new ingest Handler.
func NewHandler(engine Engine, validator *schema.Validator, sink *alerting.Sink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:     engine,
		validator:  validator,
		sink:       sink,
		logger:     logger.With("component", "ingest"),
		maxPayload: 10 * 1024 * 1024,
		maxBatch:   1000,
		startTime:  time.Now(),
	}
}

// WithMaxPayload sets the maximum request body size in bytes.
func (h *Handler) WithMaxPayload(size int) *Handler {
	h.maxPayload = size
	return h
}

// WithMaxBatch sets the maximum number of events per request.
func (h *Handler) WithMaxBatch(size int) *Handler {
	h.maxBatch = size
	return h
}

// WithOutbox reports the alert outbox depth on /health.
func (h *Handler) WithOutbox(outbox *queue.RingBuffer[alerting.Alert]) *Handler {
	h.outbox = outbox
	return h
}

// WithCheck adds a named dependency probe to /health.
func (h *Handler) WithCheck(name string, check Check) *Handler {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
	return h
}

// Routes registers the handler's endpoints. /metrics serves gatherer.
func (h *Handler) Routes(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", h.HandleEvents)
	mux.HandleFunc("GET /v1/alerts", h.HandleAlerts)
	mux.HandleFunc("GET /health", h.HealthCheck)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// IngestRequest is the request body for event ingestion.
type IngestRequest struct {
	Events []schema.Envelope `json:"events"`
}

// IngestResponse is the response for event ingestion.
type IngestResponse struct {
	Success   bool             `json:"success"`
	Accepted  int              `json:"accepted"`
	Rejected  int              `json:"rejected"`
	Alerts    []alerting.Alert `json:"alerts"`
	Errors    []string         `json:"errors,omitempty"`
	RequestID string           `json:"request_id"`
}

// HandleEvents handles POST /v1/events. Each valid envelope is evaluated
// in request order; alerts raised by the batch are returned inline.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
		return
	}

	var req IngestRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return
	}

	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "no events provided", requestID)
		return
	}
	if len(req.Events) > h.maxBatch {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("batch size exceeds maximum of %d", h.maxBatch), requestID)
		return
	}

	resp := IngestResponse{
		Alerts:    []alerting.Alert{},
		RequestID: requestID,
	}

	for i := range req.Events {
		env := &req.Events[i]
		if err := h.validator.Validate(env); err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, fmt.Sprintf("event[%d]: %s", i, err.Error()))
			continue
		}

		if alert := h.engine.InstrumentEnvelope(*env); alert != nil {
			resp.Alerts = append(resp.Alerts, *alert)
		}
		resp.Accepted++
		h.eventsTotal.Add(1)
	}

	resp.Success = resp.Rejected == 0

	if resp.Rejected > 0 {
		h.logger.Debug("events rejected",
			"request_id", requestID,
			"accepted", resp.Accepted,
			"rejected", resp.Rejected,
		)
	}

	status := http.StatusOK
	if resp.Accepted == 0 {
		status = http.StatusBadRequest
	} else if resp.Rejected > 0 {
		status = http.StatusMultiStatus
	}

	respondJSON(w, status, resp)
}

// AlertsResponse is the response for alert queries.
type AlertsResponse struct {
	Alerts []alerting.Alert `json:"alerts"`
	Count  int              `json:"count"`
	Next   int              `json:"next"`
}

// HandleAlerts handles GET /v1/alerts. "since" is a log index returned as
// "next" by a previous call; "category" filters the result.
func (h *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since := 0
	if s := q.Get("since"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "since must be a non-negative integer", "")
			return
		}
		since = n
	}

	var category alerting.Category
	if c := q.Get("category"); c != "" {
		category = alerting.Category(c)
		if !slices.Contains(alerting.Categories(), category) {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown category: %s", c), "")
			return
		}
	}

	alerts, next := h.sink.Since(since)
	if category != "" {
		filtered := alerts[:0]
		for _, a := range alerts {
			if a.Category == category {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}

	respondJSON(w, http.StatusOK, AlertsResponse{
		Alerts: alerts,
		Count:  len(alerts),
		Next:   next,
	})
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status        string              `json:"status"`
	Detection     detection.Stats     `json:"detection"`
	EventsTotal   uint64              `json:"events_total"`
	AlertsTotal   int                 `json:"alerts_total"`
	Outbox        *queue.QueueMetrics `json:"outbox,omitempty"`
	Checks        map[string]string   `json:"checks,omitempty"`
	UptimeSeconds int                 `json:"uptime_seconds"`
}

// HealthCheck handles GET /health. A failing dependency check reports
// "unhealthy" with 503; a nearly full outbox reports "degraded".
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Detection:     h.engine.Stats(),
		EventsTotal:   h.eventsTotal.Load(),
		AlertsTotal:   h.sink.Len(),
		UptimeSeconds: int(time.Since(h.startTime).Seconds()),
	}

	if h.outbox != nil {
		m := h.outbox.Metrics()
		resp.Outbox = &m
		if m.Depth > int(float64(m.Capacity)*0.9) {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := c.check(ctx); err != nil {
				resp.Checks[c.name] = err.Error()
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = "ok"
		}
	}

	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, requestID string) {
	resp := map[string]any{
		"success": false,
		"error":   message,
	}
	if requestID != "" {
		resp["request_id"] = requestID
	}
	respondJSON(w, status, resp)
}
