package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gosight/gosight/engagement/internal/beacon"
	"github.com/gosight/gosight/engagement/internal/pageview"
)

// maxBodyBytes bounds a request body.
const maxBodyBytes = 1 << 20

// KeyValidator resolves project keys and applies per-project rate limits.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (string, error)
	CheckRateLimit(ctx context.Context, projectID string) bool
}

// ClientEnricher describes the visitor from the request.
type ClientEnricher interface {
	Enrich(userAgent, clientIP string) beacon.Client
}

type HTTPHandler struct {
	registry  *pageview.Registry
	validator KeyValidator
	enricher  ClientEnricher
}

func NewHTTPHandler(r *pageview.Registry, v KeyValidator, e ClientEnricher) *HTTPHandler {
	return &HTTPHandler{
		registry:  r,
		validator: v,
		enricher:  e,
	}
}

// Routes registers the page view endpoints on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)
	r.Route("/v1/pageviews", func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Get("/{pageViewID}", h.HandleGet)
		r.Post("/{pageViewID}/signals", h.HandleSignals)
		r.Post("/{pageViewID}/unload", h.HandleUnload)
	})
}

type StartRequest struct {
	ProjectKey               string  `json:"project_key"`
	SessionID                string  `json:"session_id"`
	URL                      string  `json:"url"`
	Referrer                 string  `json:"referrer"`
	EnableHeartbeats         *bool   `json:"enable_heartbeats"`
	SecondsBetweenHeartbeats float64 `json:"seconds_between_heartbeats"`
	ActiveTimeout            float64 `json:"active_timeout"`
}

type StartResponse struct {
	Success             bool     `json:"success"`
	PageViewID          string   `json:"page_view_id,omitempty"`
	HeartbeatsEnabled   bool     `json:"heartbeats_enabled"`
	HeartbeatIntervalMs int64    `json:"heartbeat_interval_ms,omitempty"`
	ActiveTimeoutMs     int64    `json:"active_timeout_ms,omitempty"`
	SampleIntervalMs    int64    `json:"sample_interval_ms,omitempty"`
	Errors              []string `json:"errors,omitempty"`
}

func (h *HTTPHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// Validate API key
	projectID, err := h.validator.ValidateAPIKey(r.Context(), req.ProjectKey)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, StartResponse{Errors: []string{"Invalid API key"}})
		return
	}

	// Rate limiting
	if !h.validator.CheckRateLimit(r.Context(), projectID) {
		writeJSON(w, http.StatusTooManyRequests, StartResponse{Errors: []string{"Rate limit exceeded"}})
		return
	}

	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	pv := h.registry.Start(pageview.StartRequest{
		ProjectID:                projectID,
		SessionID:                req.SessionID,
		URL:                      req.URL,
		Referrer:                 req.Referrer,
		Client:                   h.enricher.Enrich(r.Header.Get("User-Agent"), clientIP(r)),
		EnableHeartbeats:         req.EnableHeartbeats,
		SecondsBetweenHeartbeats: req.SecondsBetweenHeartbeats,
		ActiveTimeout:            req.ActiveTimeout,
	})

	cfg := pv.Tracker().Config()
	writeJSON(w, http.StatusCreated, StartResponse{
		Success:             true,
		PageViewID:          pv.ID,
		HeartbeatsEnabled:   cfg.HeartbeatsEnabled,
		HeartbeatIntervalMs: cfg.HeartbeatInterval.Milliseconds(),
		ActiveTimeoutMs:     cfg.ActiveTimeout.Milliseconds(),
		SampleIntervalMs:    cfg.SampleInterval.Milliseconds(),
	})
}

type SignalBatchRequest struct {
	Signals []pageview.Signal `json:"signals"`
}

type SignalResponse struct {
	Success bool `json:"success"`
	pageview.Result
}

func (h *HTTPHandler) HandleSignals(w http.ResponseWriter, r *http.Request) {
	pv, ok := h.pageView(w, r)
	if !ok {
		return
	}

	var req SignalBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if !h.validator.CheckRateLimit(r.Context(), pv.Identity.ProjectID) {
		writeJSON(w, http.StatusTooManyRequests, SignalResponse{Result: pageview.Result{Errors: []string{"Rate limit exceeded"}}})
		return
	}

	res, err := h.registry.Apply(pv.ID, req.Signals)
	if err != nil {
		writeJSON(w, http.StatusNotFound, SignalResponse{Result: pageview.Result{Errors: []string{err.Error()}}})
		return
	}

	writeJSON(w, http.StatusOK, SignalResponse{Success: res.Rejected == 0, Result: res})
}

type UnloadResponse struct {
	Success bool `json:"success"`
	Emitted bool `json:"emitted"`
	Inc     int  `json:"inc"`
}

// HandleUnload accepts navigator.sendBeacon requests; the body is ignored.
func (h *HTTPHandler) HandleUnload(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, io.LimitReader(r.Body, maxBodyBytes))
	r.Body.Close()

	d, err := h.registry.Unload(chi.URLParam(r, "pageViewID"))
	if errors.Is(err, pageview.ErrPageViewNotFound) {
		http.Error(w, "Page view not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, UnloadResponse{Success: true, Emitted: d.Emit, Inc: d.Inc})
}

func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	pv, ok := h.pageView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pv.Snapshot())
}

func (h *HTTPHandler) pageView(w http.ResponseWriter, r *http.Request) (*pageview.PageView, bool) {
	pv, err := h.registry.Get(chi.URLParam(r, "pageViewID"))
	if err != nil {
		http.Error(w, "Page view not found", http.StatusNotFound)
		return nil, false
	}
	return pv, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	// Read body
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-IP")
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return ip
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Project-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
