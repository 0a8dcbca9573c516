// ABOUTME: Activates and deactivates profiles, owning the backend connection set.
// ABOUTME: Serializes switches so teardown and rebuild never interleave.

package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/2389/mcp-hub/internal/backend"
	"github.com/2389/mcp-hub/internal/config"
	"github.com/2389/mcp-hub/internal/registry"
)

// ErrNoActiveProfile indicates no profile is currently activated.
var ErrNoActiveProfile = errors.New("no active profile")

// ErrBackendNotFound indicates the active profile has no such backend.
var ErrBackendNotFound = errors.New("backend not found in active profile")

// ActivationRecorder receives an audit record for each profile activation.
// A nil recorder disables auditing.
type ActivationRecorder interface {
	RecordActivation(ctx context.Context, profileName string, backendCount, toolCount int) error
}

// Manager owns the gateway's active profile: the set of live backend
// connections and the registry entries built from them. All switches run
// under one mutex, so a request arriving mid-switch observes either the
// old profile or the new one, never a half-built mix.
type Manager struct {
	profilesDir string
	registry    *registry.Registry
	recorder    ActivationRecorder
	logger      *slog.Logger

	mu          sync.Mutex
	current     string
	connections map[string]*backend.Connection
}

// NewManager returns a manager with no active profile.
func NewManager(profilesDir string, reg *registry.Registry, recorder ActivationRecorder, logger *slog.Logger) *Manager {
	return &Manager{
		profilesDir: profilesDir,
		registry:    reg,
		recorder:    recorder,
		logger:      logger.With("component", "profile"),
		connections: make(map[string]*backend.Connection),
	}
}

// Activate switches the gateway to the named profile. Any currently
// active profile is fully torn down first; only then are the new
// profile's backends connected, in parallel. A backend that fails to
// connect is logged and skipped rather than failing the whole
// activation, so the gateway comes up with whatever subset is healthy.
//
// A profile with no reachable backends, or no backends at all, still
// activates and simply exposes zero tools.
func (m *Manager) Activate(ctx context.Context, name string) error {
	prof, err := config.LoadProfileByName(m.profilesDir, name)
	if err != nil {
		return fmt.Errorf("loading profile %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deactivateLocked()

	m.logger.Info("activating profile", "profile", prof.Name, "backend_count", len(prof.Backends))

	var (
		connMu sync.Mutex
		conns  = make(map[string]*backend.Connection)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range prof.BackendIDs() {
		id, spec := id, prof.Backends[id]
		g.Go(func() error {
			conn, err := backend.Open(gctx, id, spec, m.logger)
			if err != nil {
				// Partial availability beats no availability; skip it.
				m.logger.Error("backend failed to connect, skipping", "backend_id", id, "error", err)
				return nil
			}
			connMu.Lock()
			conns[id] = conn
			connMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.connections = conns
	m.current = prof.Name

	byBackend := make(map[string][]registry.ToolInfo, len(conns))
	for id, conn := range conns {
		tools := make([]registry.ToolInfo, 0, len(conn.Tools()))
		for _, t := range conn.Tools() {
			tools = append(tools, registry.ToolInfo{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
		byBackend[id] = tools
	}
	// Single swap so concurrent listings never see a half-built registry.
	m.registry.Rebuild(byBackend)

	m.logger.Info("profile active",
		"profile", prof.Name,
		"connected", len(conns),
		"tool_count", m.registry.Count())

	if m.recorder != nil {
		if err := m.recorder.RecordActivation(ctx, prof.Name, len(conns), m.registry.Count()); err != nil {
			m.logger.Warn("recording activation", "error", err)
		}
	}
	return nil
}

// Deactivate tears down the active profile. Safe to call with none
// active.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivateLocked()
}

// deactivateLocked clears the registry first so callers stop seeing
// tools whose backends are about to vanish, then closes the connections
// in parallel. Close errors are already swallowed per connection.
func (m *Manager) deactivateLocked() {
	if m.current == "" {
		return
	}

	m.logger.Info("deactivating profile", "profile", m.current)
	m.registry.Clear()

	var wg sync.WaitGroup
	for _, conn := range m.connections {
		wg.Add(1)
		go func(c *backend.Connection) {
			defer wg.Done()
			c.Close()
		}(conn)
	}
	wg.Wait()

	m.connections = make(map[string]*backend.Connection)
	m.current = ""
}

// CurrentProfile returns the active profile's name, or
// ErrNoActiveProfile.
func (m *Manager) CurrentProfile() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return "", ErrNoActiveProfile
	}
	return m.current, nil
}

// Connection returns the live connection for a backend of the active
// profile.
func (m *Manager) Connection(backendID string) (backend.Invoker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[backendID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, backendID)
	}
	return conn, nil
}

// ConnectedBackends returns the IDs of backends that connected
// successfully, for health reporting.
func (m *Manager) ConnectedBackends() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	return ids
}

// Available lists the profile names the manager can activate.
func (m *Manager) Available() ([]string, error) {
	return config.ListProfiles(m.profilesDir)
}
