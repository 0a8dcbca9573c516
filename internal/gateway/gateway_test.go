// ABOUTME: Tests for gateway assembly, startup activation, and shutdown.
// ABOUTME: Profiles are empty so no real backends are spawned.

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-hub/internal/config"
)

func testConfig(t *testing.T, withDB bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	profilesDir := filepath.Join(dir, "profiles")
	require.NoError(t, os.MkdirAll(profilesDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(profilesDir, "dev.yaml"),
		[]byte("name: dev\nbackends: {}\n"), 0o644))

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Profiles.Dir = profilesDir
	cfg.Profiles.Default = "dev"
	if withDB {
		cfg.Database.Path = filepath.Join(dir, "audit.db")
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_WithoutStore(t *testing.T) {
	g, err := New(testConfig(t, false), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Nil(t, g.store)
	g.shutdownComponents()
}

func TestNew_WithStore(t *testing.T) {
	g, err := New(testConfig(t, true), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.NotNil(t, g.store)
	g.shutdownComponents()
}

func TestRun_ActivatesDefaultAndServes(t *testing.T) {
	cfg := testConfig(t, false)
	g, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// Wait for the default profile to come up, then check health through
	// the assembled handler.
	require.Eventually(t, func() bool {
		name, err := g.profiles.CurrentProfile()
		return err == nil && name == "dev"
	}, 5*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	g.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not shut down")
	}

	_, err = g.profiles.CurrentProfile()
	assert.Error(t, err, "shutdown must deactivate the profile")
}

func TestRun_MissingDefaultProfileIsFatal(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Profiles.Default = "nope"
	g, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	err = g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default profile")
}
