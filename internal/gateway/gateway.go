// ABOUTME: Wires the gateway together: store, registry, profiles, router, server.
// ABOUTME: Owns startup activation, listeners, and graceful shutdown.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/mcp-hub/internal/config"
	"github.com/2389/mcp-hub/internal/mcp"
	"github.com/2389/mcp-hub/internal/profile"
	"github.com/2389/mcp-hub/internal/registry"
	"github.com/2389/mcp-hub/internal/router"
	"github.com/2389/mcp-hub/internal/session"
	"github.com/2389/mcp-hub/internal/store"
)

// Gateway is the running aggregation service.
type Gateway struct {
	config     *config.Config
	registry   *registry.Registry
	profiles   *profile.Manager
	router     *router.Router
	mcpServer  *mcp.Server
	store      *store.SQLiteStore
	httpServer *http.Server
	tsnet      *tailscaleNode
	logger     *slog.Logger
}

// New builds a gateway from configuration. The default profile is not
// activated here; Run does that so activation failures surface at
// startup rather than construction.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	var (
		sqlStore *store.SQLiteStore
		err      error
	)
	if cfg.Database.Path != "" {
		sqlStore, err = store.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
	}

	reg := registry.New()

	// The nil-interface dance: a nil *SQLiteStore in an interface is not
	// a nil interface, so only assign when a store exists.
	var activations profile.ActivationRecorder
	var invocations router.InvocationRecorder
	if sqlStore != nil {
		activations = sqlStore
		invocations = sqlStore
	}

	profiles := profile.NewManager(cfg.Profiles.Dir, reg, activations, logger)
	rt := router.New(reg, profiles, invocations, logger)

	mcpServer, err := mcp.NewServer(rt, profiles, session.NewRegistry(), logger)
	if err != nil {
		if sqlStore != nil {
			sqlStore.Close()
		}
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	if sqlStore != nil {
		mcpServer.SetUsageReporter(sqlStore)
	}

	mux := http.NewServeMux()
	mcpServer.RegisterRoutes(mux)

	return &Gateway{
		config:    cfg,
		registry:  reg,
		profiles:  profiles,
		router:    rt,
		mcpServer: mcpServer,
		store:     sqlStore,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "gateway"),
	}, nil
}

// Run activates the default profile, serves until ctx is cancelled, and
// shuts down gracefully. A default profile that fails to load or
// validate is fatal; individual backends inside it failing is not.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.profiles.Activate(ctx, g.config.Profiles.Default); err != nil {
		return fmt.Errorf("activating default profile: %w", err)
	}

	if g.config.Server.Transport == config.TransportStdio {
		return g.runStdio(ctx)
	}
	return g.runHTTP(ctx)
}

// runStdio serves a single session over the process's standard streams.
func (g *Gateway) runStdio(ctx context.Context) error {
	g.logger.Info("serving on stdio")
	err := g.mcpServer.ServeStdio(ctx, os.Stdin, os.Stdout)
	g.shutdownComponents()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (g *Gateway) runHTTP(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested")
	case serveErr = <-errCh:
		g.logger.Error("server error", "error", serveErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// setupListener returns either a plain TCP listener or a tsnet one.
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		node, ln, err := startTailscale(ctx, g.config.Tailscale, g.logger)
		if err != nil {
			return nil, err
		}
		g.tsnet = node
		return ln, nil
	}
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	return ln, nil
}

// gracefulShutdown runs with a fresh context since the serving context
// is already cancelled by the time it is needed.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	g.shutdownComponents()
	if g.tsnet != nil {
		if err := g.tsnet.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// shutdownComponents tears down in dependency order: sessions first so
// no request is mid-flight, then the backend connections, then storage.
func (g *Gateway) shutdownComponents() {
	g.mcpServer.Close()
	g.profiles.Deactivate()
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			g.logger.Warn("closing audit store", "error", err)
		}
	}
	g.logger.Info("gateway stopped")
}
