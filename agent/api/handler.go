package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

const maxRequestBodySize = 1 << 20

// Service is the orchestrator surface the HTTP layer needs.
type Service interface {
	HandleMessage(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error)
	Stream(ctx context.Context, req contractx.ChatRequest) (iter.Seq[contractx.StreamEvent], error)
	IsReady() bool
}

type AgentLister interface {
	List() []string
}

type Info struct {
	Service     string
	Description string
	Version     string
}

type Handler struct {
	svc    Service
	agents AgentLister
	info   Info
}

func NewHandler(svc Service, agents AgentLister, info Info) *Handler {
	if info.Service == "" {
		info.Service = "a2a-host-orchestrator"
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return &Handler{svc: svc, agents: agents, info: info}
}

// Router builds the chi router with the global middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(CORS([]string{"*"}))

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleInfo)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Post("/chat", h.HandleChat)
	r.Post("/chat/stream", h.HandleChatStream)
}

func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	var agents []string
	if h.agents != nil {
		agents = h.agents.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     h.info.Service,
		"description": h.info.Description,
		"version":     h.info.Version,
		"agents":      agents,
		"endpoints": map[string]string{
			"health":      "/health",
			"ready":       "/ready",
			"chat":        "/chat",
			"chat_stream": "/chat/stream",
		},
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.info.Service,
		"version": h.info.Version,
	})
}

func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if !h.svc.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.HandleMessage(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.svc.Stream(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Warn().Err(err).Str("request_id", ev.RequestID).Msg("failed to marshal stream event")
			data, _ = json.Marshal(contractx.StreamEvent{Type: contractx.EventError, Seq: ev.Seq, RequestID: ev.RequestID, Error: "failed to serialize event"})
		}
		if err := writeSSE(w, string(ev.Type), string(data)); err != nil {
			log.Warn().Err(err).Str("request_id", ev.RequestID).Msg("failed to write SSE event")
			return
		}
		flusher.Flush()
	}
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (contractx.ChatRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req contractx.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, contractx.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Error().Err(err).Str("request_id", chiMiddleware.GetReqID(r.Context())).Msg("chat request failed")
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("error processing request: %v", err))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write json response")
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Str("req_id", chiMiddleware.GetReqID(r.Context())).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
