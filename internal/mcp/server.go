// ABOUTME: MCP-facing server exposing the aggregated tool surface to clients.
// ABOUTME: Implements the Streamable HTTP transport with session management.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/mcp-hub/internal/dedupe"
	"github.com/2389/mcp-hub/internal/registry"
	"github.com/2389/mcp-hub/internal/router"
	"github.com/2389/mcp-hub/internal/session"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
}

// latestProtocolVersion is the version advertised in initialize responses
const latestProtocolVersion = "2025-06-18"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// ServerName identifies the gateway in initialize responses.
const ServerName = "mcp-hub"

// ServerVersion is reported alongside ServerName.
const ServerVersion = "1.0.0"

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// ToolInfo is one tool in a tools/list response.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ProfileSwitcher is the control surface the server exposes over the
// admin routes. *profile.Manager satisfies it.
type ProfileSwitcher interface {
	Activate(ctx context.Context, name string) error
	CurrentProfile() (string, error)
	Available() ([]string, error)
	ConnectedBackends() []string
}

// Server exposes the aggregated tool surface over the Streamable HTTP
// transport, the legacy SSE transport, and stdio. All transports share
// one session registry and dispatch into the same router.
type Server struct {
	router   *router.Router
	profiles ProfileSwitcher
	sessions *session.Registry
	dedupe   *dedupe.Cache
	usage    UsageReporter
	logger   *slog.Logger
}

// NewServer creates a server over the given router and profile control.
func NewServer(rt *router.Router, profiles ProfileSwitcher, sessions *session.Registry, logger *slog.Logger) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router is required")
	}
	if profiles == nil {
		return nil, errors.New("profile switcher is required")
	}
	if sessions == nil {
		sessions = session.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		router:   rt,
		profiles: profiles,
		sessions: sessions,
		dedupe:   dedupe.New(dedupeTTL, dedupeSize),
		logger:   logger.With("component", "mcp"),
	}, nil
}

// SetUsageReporter enables /api/usage. Leave unset when auditing is
// disabled; the route then answers 404.
func (s *Server) SetUsageReporter(u UsageReporter) {
	s.usage = u
}

// Sessions returns the server's session registry, for shutdown handling.
func (s *Server) Sessions() *session.Registry {
	return s.sessions
}

// Close ends every session and stops the dedupe cache.
func (s *Server) Close() {
	s.sessions.CloseAll()
	s.dedupe.Close()
}

// RegisterRoutes registers the serving and admin endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
	s.registerSSERoutes(mux)
	s.registerAdminRoutes(mux)
}

// handleMCP is the single Streamable HTTP endpoint supporting POST and
// DELETE.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		// Server-initiated streams are not supported
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleDelete terminates a session. Deleting an already-gone session is
// reported but has no effect.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}

	if _, err := s.sessions.Get(sessionID); err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	s.sessions.Close(sessionID)
	s.logger.Info("session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	protoVersion := r.Header.Get("Mcp-Protocol-Version")

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendError(w, nil, JSONRPCParseError, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendError(w, nil, JSONRPCInvalidRequest, "request body too large")
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendError(w, nil, JSONRPCParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version")
		return
	}

	isInitialize := req.Method == "initialize"
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	if !isInitialize && protoVersion != "" && !supportedProtocolVersions[protoVersion] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	// Non-initialize requests must reference a live session
	if !isInitialize {
		if sessionID == "" {
			http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
			return
		}
		if _, err := s.sessions.Route(sessionID); err != nil {
			// Expired or terminated; the client must re-initialize
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
	}

	if isNotification {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Warn("notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if isInitialize {
		s.handleInitialize(w, req)
		return
	}

	resp := s.dispatch(r.Context(), req)
	s.writeResponse(w, resp)
}

// dispatch routes one request to its method handler. Shared by the HTTP,
// SSE, and stdio transports.
func (s *Server) dispatch(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "tools/list":
		return s.toolsList(req)
	case "tools/call":
		return s.toolsCall(ctx, req)
	case "ping":
		return result(req.ID, map[string]any{})
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found")
	}
}

// handleInitialize creates a session and returns the handshake result.
func (s *Server) handleInitialize(w http.ResponseWriter, req JSONRPCRequest) {
	sess := s.sessions.Open("http", nil, nil)

	s.logger.Info("session created", "session_id", sess.ID, "transport", "http")

	w.Header().Set("Mcp-Session-Id", sess.ID)
	s.writeResponse(w, result(req.ID, initializeResult()))
}

func initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": latestProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": ServerVersion,
		},
	}
}

// toolsList returns the active profile's aggregated tool surface.
func (s *Server) toolsList(req JSONRPCRequest) JSONRPCResponse {
	entries := s.router.ListTools()

	res := ListToolsResult{Tools: make([]ToolInfo, len(entries))}
	for i, e := range entries {
		res.Tools[i] = toolInfo(e)
	}

	s.logger.Debug("tools/list", "count", len(entries))
	return result(req.ID, res)
}

func toolInfo(e *registry.Entry) ToolInfo {
	schema := e.InputSchema
	if len(schema) == 0 || string(schema) == "null" {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return ToolInfo{
		Name:        e.QualifiedName,
		Description: e.Description,
		InputSchema: schema,
	}
}

// toolsCall routes one call through the aggregation router.
func (s *Server) toolsCall(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required")
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	res, err := s.router.CallTool(ctx, params.Name, args)
	if err != nil {
		s.logger.Error("router failure", "tool", params.Name, "error", err)
		return errorResponse(req.ID, JSONRPCInternalError, "internal error")
	}
	return result(req.ID, res)
}

func result(id json.RawMessage, res any) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: res}
}

func errorResponse(id json.RawMessage, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
}

func (s *Server) writeResponse(w http.ResponseWriter, resp JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encoding response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	s.writeResponse(w, errorResponse(id, code, message))
}
