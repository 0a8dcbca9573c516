// ABOUTME: Routes aggregated tool calls to the owning backend connection.
// ABOUTME: Synthesizes error-flagged results instead of failing the transport.

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/mcp-hub/internal/backend"
	"github.com/2389/mcp-hub/internal/registry"
)

// BackendSource resolves the active profile and its live connections.
// *profile.Manager satisfies it.
type BackendSource interface {
	CurrentProfile() (string, error)
	Connection(backendID string) (backend.Invoker, error)
}

// InvocationRecorder receives an audit record for each routed call.
// A nil recorder disables auditing. Tool results are never recorded.
type InvocationRecorder interface {
	RecordInvocation(ctx context.Context, inv Invocation) error
}

// Invocation is the audit record for one routed tool call.
type Invocation struct {
	QualifiedName string
	BackendID     string
	Profile       string
	Duration      time.Duration
	IsError       bool
}

// Router resolves qualified tool names against the active profile and
// forwards calls to the owning backend.
type Router struct {
	registry *registry.Registry
	profiles BackendSource
	recorder InvocationRecorder
	logger   *slog.Logger
}

// New returns a router over the given registry and profile manager.
func New(reg *registry.Registry, profiles BackendSource, recorder InvocationRecorder, logger *slog.Logger) *Router {
	return &Router{
		registry: reg,
		profiles: profiles,
		recorder: recorder,
		logger:   logger.With("component", "router"),
	}
}

// ListTools returns the active profile's tools under their qualified
// names, descriptions decorated with their origin. With no active
// profile the listing is empty rather than an error.
func (r *Router) ListTools() []*registry.Entry {
	prof, err := r.profiles.CurrentProfile()
	if err != nil {
		return nil
	}
	return r.registry.List(prof)
}

// CallTool routes one call. Routing failures come back as error-flagged
// tool results, not transport errors: an aggregation-level problem looks
// to the caller exactly like a tool that ran and reported failure. Only
// the returned error being non-nil would indicate a bug in the gateway
// itself, and CallTool never returns one today.
func (r *Router) CallTool(ctx context.Context, qualifiedName string, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	start := time.Now()

	prof, err := r.profiles.CurrentProfile()
	if err != nil {
		return r.failure(ctx, qualifiedName, "", "",
			fmt.Sprintf("tool %q is not available: no profile is active", qualifiedName), start), nil
	}

	entry, err := r.registry.Lookup(qualifiedName)
	if err != nil {
		return r.failure(ctx, qualifiedName, "", prof,
			fmt.Sprintf("tool %q not found in active profile %q", qualifiedName, prof), start), nil
	}

	conn, err := r.profiles.Connection(entry.BackendID)
	if err != nil {
		return r.failure(ctx, qualifiedName, entry.BackendID, prof,
			fmt.Sprintf("backend %q for tool %q is not connected in profile %q",
				entry.BackendID, qualifiedName, prof), start), nil
	}

	res, err := conn.Invoke(ctx, entry.Name, arguments)
	if err != nil {
		return r.failure(ctx, qualifiedName, entry.BackendID, prof,
			fmt.Sprintf("invoking %q on backend %q failed: %v", qualifiedName, entry.BackendID, err), start), nil
	}

	r.record(ctx, Invocation{
		QualifiedName: qualifiedName,
		BackendID:     entry.BackendID,
		Profile:       prof,
		Duration:      time.Since(start),
		IsError:       res.IsError,
	})
	return res, nil
}

// failure builds an error-flagged result and records the invocation.
func (r *Router) failure(ctx context.Context, qualifiedName, backendID, prof, msg string, start time.Time) *mcp.CallToolResult {
	r.logger.Warn("tool call failed", "tool", qualifiedName, "backend_id", backendID, "reason", msg)
	r.record(ctx, Invocation{
		QualifiedName: qualifiedName,
		BackendID:     backendID,
		Profile:       prof,
		Duration:      time.Since(start),
		IsError:       true,
	})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func (r *Router) record(ctx context.Context, inv Invocation) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordInvocation(ctx, inv); err != nil {
		r.logger.Warn("recording invocation", "error", err)
	}
}
