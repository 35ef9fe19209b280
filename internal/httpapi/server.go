// Package httpapi exposes the bridge over a local HTTP API: handshake
// control, the OAuth completion callback, connection management, and tool
// operations.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/connect"
	"github.com/n8n-bridge/bridged-go/internal/discovery"
	"github.com/n8n-bridge/bridged-go/internal/gateway"
	"github.com/n8n-bridge/bridged-go/internal/reqcontext"
	"github.com/n8n-bridge/bridged-go/internal/server"
	"github.com/n8n-bridge/bridged-go/internal/storage"
)

const apiTimeout = 60 * time.Second

// Server provides the HTTP surface over a bridge with a chi router.
type Server struct {
	bridge *server.Bridge
	logger *zap.Logger
	router *chi.Mux
}

// NewServer creates the HTTP API server and wires its routes.
func NewServer(bridge *server.Bridge, logger *zap.Logger) *Server {
	s := &Server{
		bridge: bridge,
		logger: logger.Named("httpapi"),
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Use(s.correlationIDMiddleware())
	s.router.Use(s.requestLoggingMiddleware())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Handle("/metrics", s.bridge.Metrics().Handler())

	// The completion callback sits outside /api so the broker's redirect
	// target stays short.
	s.router.Post("/oauth/callback", s.handleOAuthCallback)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))

		r.Post("/connect", s.handleConnectStart)
		r.Post("/connect/cancel", s.handleConnectCancel)
		r.Get("/connect/status", s.handleConnectStatus)

		r.Get("/connections", s.handleListConnections)
		r.Post("/connections", s.handleSaveConnection)
		r.Delete("/connections/{connectionID}", s.handleDeleteConnection)

		r.Get("/tools", s.handleListTools)
		r.Get("/tools/search", s.handleSearchTools)
		r.Post("/execute", s.handleExecuteTool)

		r.Post("/discovery", s.handleDiscovery)
	})
}

// correlationIDMiddleware reuses a valid client-supplied correlation ID or
// generates one, and echoes it on the response.
func (s *Server) correlationIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := reqcontext.GetOrGenerate(r.Header.Get(reqcontext.CorrelationIDHeader))
			ctx := reqcontext.WithCorrelationID(r.Context(), correlationID)
			w.Header().Set(reqcontext.CorrelationIDHeader, correlationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLoggingMiddleware logs every request with latency and status.
func (s *Server) requestLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			s.logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("correlation_id", reqcontext.GetCorrelationID(r.Context())),
				zap.Duration("elapsed", elapsed))
			// The route pattern keeps the metric label set bounded;
			// path parameters would mint a series per connection id.
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			s.bridge.Metrics().RecordHTTPRequest(r.Method, route, strconv.Itoa(ww.Status()), elapsed)
		})
	}
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":          true,
		"uptime_seconds": int(s.bridge.Uptime().Seconds()),
	})
}

func (s *Server) handleConnectStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseURL string `json:"base_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, err := s.bridge.StartHandshake(r.Context(), req.BaseURL)
	switch {
	case errors.Is(err, connect.ErrEmptyBaseURL):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, connect.ErrHandshakeInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

func (s *Server) handleConnectCancel(w http.ResponseWriter, _ *http.Request) {
	if err := s.bridge.CancelHandshake(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.bridge.HandshakeStatus())
}

func (s *Server) handleConnectStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bridge.HandshakeStatus())
}

// handleOAuthCallback receives the completion message the authorization
// page posts after the user finishes. The Origin header is forwarded to the
// orchestrator, which drops messages from unexpected origins.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	var msg connect.CompletionMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid callback payload")
		return
	}

	s.bridge.DeliverCallback(r.Header.Get("Origin"), msg)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	connections, err := s.bridge.Connections()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if connections == nil {
		connections = []*storage.ConnectionInfo{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"connections": connections})
}

func (s *Server) handleSaveConnection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseURL  string `json:"base_url"`
		ClientID string `json:"client_id"`
		APIKey   string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BaseURL == "" {
		s.writeError(w, http.StatusBadRequest, "base_url is required")
		return
	}

	info, err := s.bridge.SaveConnection(req.BaseURL, req.ClientID, req.APIKey)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connectionID")
	if err := s.bridge.DeleteConnection(connectionID); err != nil {
		if errors.Is(err, storage.ErrConnectionNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.bridge.ListTools(r.Context())
	if err != nil {
		if errors.Is(err, gateway.ErrNoActiveConnection) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if tools == nil {
		tools = []gateway.ToolDescriptor{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

func (s *Server) handleSearchTools(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	results, err := s.bridge.SearchTools(query, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results, "total": len(results)})
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tool string          `json:"tool"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tool == "" {
		s.writeError(w, http.StatusBadRequest, "tool is required")
		return
	}

	// Execution failures ride inside the envelope with a 200, so consumers
	// only handle one shape.
	result := s.bridge.ExecuteTool(r.Context(), req.Tool, string(req.Args))
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseURL string `json:"base_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BaseURL == "" {
		s.writeError(w, http.StatusBadRequest, "base_url is required")
		return
	}

	result, err := s.bridge.Discover(r.Context(), req.BaseURL)
	if err != nil && !errors.Is(err, discovery.ErrNoMetadata) {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
