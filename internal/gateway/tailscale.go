// ABOUTME: Optional tsnet listener so the gateway can join a tailnet directly.
// ABOUTME: Used instead of the TCP listener when tailscale.enabled is set.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/2389/mcp-hub/internal/config"
)

// tailscaleNode wraps the embedded tailscale server for shutdown.
type tailscaleNode struct {
	server *tsnet.Server
}

func (n *tailscaleNode) Close() error {
	return n.server.Close()
}

func resolveStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "mcp-hub", "tailscale"), nil
}

func resolveAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", fmt.Errorf("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// startTailscale brings up a tsnet node and returns its HTTP listener.
func startTailscale(ctx context.Context, cfg config.TailscaleConfig, logger *slog.Logger) (*tailscaleNode, net.Listener, error) {
	stateDir, err := resolveStateDir(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveAuthKey(cfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	srv := &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       stateDir,
		Ephemeral: cfg.Ephemeral,
		AuthKey:   authKey,
	}

	logger.Info("starting tailscale node", "hostname", cfg.Hostname, "state_dir", stateDir, "ephemeral", cfg.Ephemeral)
	status, err := srv.Up(ctx)
	if err != nil {
		_ = srv.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	if len(status.TailscaleIPs) > 0 {
		logger.Info("tailscale node ready", "hostname", cfg.Hostname, "tailscale_ip", status.TailscaleIPs[0].String())
	}

	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		_ = srv.Close()
		return nil, nil, fmt.Errorf("listening on tailscale port: %w", err)
	}
	return &tailscaleNode{server: srv}, ln, nil
}
