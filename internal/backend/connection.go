// ABOUTME: Represents a single live connection to one backend tool server.
// ABOUTME: Wraps an MCP client session and the tool list reported at connect time.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/mcp-hub/internal/config"
)

// ErrNotReady indicates the connection is not in the Ready state.
var ErrNotReady = errors.New("backend connection not ready")

// State describes the lifecycle of a backend connection.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session is the slice of mcp.ClientSession the connection uses.
// Factored out so tests can substitute an in-process fake.
type session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Invoker is the call surface a connection presents to routing code.
type Invoker interface {
	Invoke(ctx context.Context, name string, arguments json.RawMessage) (*mcp.CallToolResult, error)
}

// Tool is one operation a backend reported at connect time. The input
// schema is kept as raw JSON and passed through to callers unmodified.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Connection owns one live link to one backend. It is created by the
// profile manager when a profile is activated and closed when the profile
// is torn down; it is never shared across profiles.
type Connection struct {
	ID string

	mu      sync.Mutex
	state   State
	session session
	tools   []Tool
	logger  *slog.Logger
}

// clientImpl identifies mcp-hub to backends during the MCP handshake.
var clientImpl = &mcp.Implementation{Name: "mcp-hub", Version: "1.0.0"}

// Open connects to the backend described by spec, performs the MCP
// handshake, and lists the backend's tools once. Opening blocks until the
// backend acknowledges readiness or the transport reports failure; no
// timeout is imposed here beyond the caller's context.
//
// A connection that fails to open is returned as an error and holds no
// resources; it never enters the active set.
func Open(ctx context.Context, id string, spec config.BackendSpec, logger *slog.Logger) (*Connection, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("backend %q: %w", id, err)
	}

	c := &Connection{
		ID:     id,
		state:  StateConnecting,
		logger: logger.With("backend_id", id),
	}

	client := mcp.NewClient(clientImpl, nil)
	sess, err := client.Connect(ctx, transportFor(spec), nil)
	if err != nil {
		c.state = StateClosed
		return nil, fmt.Errorf("connecting backend %q: %w", id, err)
	}

	tools, err := listAllTools(ctx, sess)
	if err != nil {
		// The session is live but useless without a tool list; release it.
		if cerr := sess.Close(); cerr != nil {
			c.logger.Warn("closing session after failed tool listing", "error", cerr)
		}
		c.state = StateClosed
		return nil, fmt.Errorf("listing tools for backend %q: %w", id, err)
	}

	c.session = sess
	c.tools = tools
	c.state = StateReady

	c.logger.Info("backend connected", "tool_count", len(tools))
	return c, nil
}

// transportFor maps a backend spec to its MCP client transport: a local
// subprocess over standard streams, or a remote streamable HTTP endpoint.
func transportFor(spec config.BackendSpec) mcp.Transport {
	if spec.Command != "" {
		return &mcp.CommandTransport{Command: exec.Command(spec.Command, spec.Args...)}
	}
	return &mcp.StreamableClientTransport{Endpoint: spec.URL}
}

// listAllTools drains the backend's paginated tool listing.
func listAllTools(ctx context.Context, sess session) ([]Tool, error) {
	var (
		out    []Tool
		cursor string
	)
	for {
		res, err := sess.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, t := range res.Tools {
			schema, err := json.Marshal(t.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("encoding input schema for tool %q: %w", t.Name, err)
			}
			out = append(out, Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schema,
			})
		}
		if res.NextCursor == "" {
			return out, nil
		}
		cursor = res.NextCursor
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the connection can serve invocations.
func (c *Connection) Ready() bool {
	return c.State() == StateReady
}

// Tools returns the operations the backend reported at connect time.
func (c *Connection) Tools() []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools
}

// Invoke forwards a tool call to the backend using the tool's original
// (unprefixed) name and returns the backend's result verbatim, including
// whatever content or error flags the backend itself set.
func (c *Connection) Invoke(ctx context.Context, name string, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	sess := c.session
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready {
		return nil, fmt.Errorf("backend %q: %w", c.ID, ErrNotReady)
	}

	return sess.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
}

// Close shuts the connection down. It is idempotent and best-effort:
// transport close failures are logged, never propagated.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.state = StateClosed

	if c.session != nil {
		if err := c.session.Close(); err != nil {
			c.logger.Warn("closing backend connection", "error", err)
		}
	}

	c.logger.Info("backend disconnected")
}
