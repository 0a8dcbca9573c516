// ABOUTME: Entry point for the mcp-hub aggregation gateway.
// ABOUTME: Subcommands: serve, init, health, profile.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/mcp-hub/internal/config"
	"github.com/2389/mcp-hub/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _ __ ___   ___ _ __        | |__  _   _| |__
 | '_ ' _ \ / __| '_ \ _____ | '_ \| | | | '_ \
 | | | | | | (__| |_) |_____|| | | | |_| | |_) |
 |_| |_| |_|\___| .__/       |_| |_|\__,_|_.__/
                |_|
`

// getConfigPath returns the path to the config file.
// Priority: MCP_HUB_CONFIG env var > XDG_CONFIG_HOME/mcp-hub/config.yaml > ~/.config/mcp-hub/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MCP_HUB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mcp-hub", "config.yaml")
}

// getDataPath returns the path to the data directory.
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "mcp-hub")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mcp-hub <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve            Start the gateway")
		fmt.Println("  init             Create a new config file interactively")
		fmt.Println("  health           Check gateway health")
		fmt.Println("  profile [NAME]   Show profiles, or switch to NAME")
		fmt.Println("  usage            Show per-tool call counts and recent invocations")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "profile":
		err = runProfile(ctx)
	case "usage":
		err = runUsage(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	// On stdio the protocol owns stdout, so no banner there
	if cfg.Server.Transport != config.TransportStdio {
		cyan := color.New(color.FgCyan)
		cyan.Print(banner)

		gray := color.New(color.FgHiBlack)
		gray.Printf("    version: %s\n\n", version)

		green := color.New(color.FgGreen)
		green.Print("    ▶ ")
		fmt.Printf("Config:   %s\n", configPath)
		green.Print("    ▶ ")
		fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
		green.Print("    ▶ ")
		fmt.Printf("Profiles: %s (default: %s)\n", cfg.Profiles.Dir, cfg.Profiles.Default)

		if cfg.Tailscale.Enabled {
			green.Print("    ▶ ")
			fmt.Printf("Tailscale: ")
			cyan.Print(cfg.Tailscale.Hostname)
			if cfg.Tailscale.Ephemeral {
				gray.Print(" (ephemeral)")
			}
			fmt.Println()
		}
		fmt.Println()
	}

	logger.Info("starting mcp-hub",
		"config", configPath,
		"transport", cfg.Server.Transport,
		"default_profile", cfg.Profiles.Default,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Logs go to stderr so stdout stays clean for the stdio transport.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runProfile shows profile status, or switches when a name is given.
func runProfile(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	url := fmt.Sprintf("http://%s/api/profile", cfg.Server.HTTPAddr)

	var req *http.Request
	if len(os.Args) > 2 {
		body, _ := json.Marshal(map[string]string{"name": os.Args[2]})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("profile request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var status struct {
		Current   string   `json:"current"`
		Available []string `json:"available"`
		Backends  []string `json:"backends"`
	}
	if err := json.Unmarshal(payload, &status); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("current:  %s\n", status.Current)
	fmt.Printf("backends: %s\n", strings.Join(status.Backends, ", "))
	fmt.Println("available:")
	for _, name := range status.Available {
		marker := "  "
		if name == status.Current {
			marker = "* "
		}
		fmt.Printf("  %s%s\n", marker, name)
	}
	return nil
}

// runUsage prints the audit store's per-tool summary and recent calls.
func runUsage(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/usage", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("usage request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("auditing is not enabled; set database.path in the config")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("usage request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var report struct {
		Summary []struct {
			QualifiedName string `json:"qualifiedName"`
			Calls         int64  `json:"calls"`
			Errors        int64  `json:"errors"`
		} `json:"summary"`
		Recent []struct {
			QualifiedName string `json:"qualifiedName"`
			Profile       string `json:"profile"`
			DurationMS    int64  `json:"durationMs"`
			IsError       bool   `json:"isError"`
		} `json:"recent"`
	}
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(report.Summary) == 0 {
		fmt.Println("no tool invocations recorded")
		return nil
	}
	fmt.Println("tool usage:")
	for _, u := range report.Summary {
		fmt.Printf("  %-40s %6d calls %6d errors\n", u.QualifiedName, u.Calls, u.Errors)
	}
	fmt.Println("recent:")
	for _, r := range report.Recent {
		status := "ok"
		if r.IsError {
			status = "error"
		}
		fmt.Printf("  %-40s %-10s %5dms  %s\n", r.QualifiedName, r.Profile, r.DurationMS, status)
	}
	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return defaultValue
	}
	return answer
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("mcp-hub configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDBPath := filepath.Join(defaultDataPath, "audit.db")
	defaultProfilesDir := filepath.Join(filepath.Dir(defaultConfigPath), "profiles")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !strings.EqualFold(overwrite, "yes") && !strings.EqualFold(overwrite, "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Profile Configuration ---")
	profilesDir := prompt(reader, "Profiles directory", defaultProfilesDir)
	defaultProfile := prompt(reader, "Default profile", "default")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "Audit database path (empty to disable)", defaultDBPath)

	fmt.Println("\n--- Tailscale Configuration ---")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.EqualFold(enableTailscale, "yes") || strings.EqualFold(enableTailscale, "y")

	var tsHostname, tsAuthKey string
	var tsEphemeral bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "mcp-hub")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for TS_AUTHKEY)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.EqualFold(ephemeralStr, "yes") || strings.EqualFold(ephemeralStr, "y")
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# mcp-hub configuration\n")
	cfg.WriteString("# Generated by mcp-hub init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("  transport: http\n\n")

	cfg.WriteString("profiles:\n")
	cfg.WriteString(fmt.Sprintf("  dir: %q\n", profilesDir))
	cfg.WriteString(fmt.Sprintf("  default: %q\n\n", defaultProfile))

	if dbPath != "" {
		cfg.WriteString("database:\n")
		cfg.WriteString(fmt.Sprintf("  path: %q\n\n", dbPath))
	}

	if tailscaleEnabled {
		cfg.WriteString("tailscale:\n")
		cfg.WriteString("  enabled: true\n")
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n\n", tsEphemeral))
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Seed an empty default profile so serve works out of the box
	if err := os.MkdirAll(profilesDir, 0o755); err != nil {
		return fmt.Errorf("creating profiles directory: %w", err)
	}
	profilePath := filepath.Join(profilesDir, defaultProfile+".yaml")
	if _, err := os.Stat(profilePath); os.IsNotExist(err) {
		seed := fmt.Sprintf("name: %s\nbackends: {}\n", defaultProfile)
		if err := os.WriteFile(profilePath, []byte(seed), 0o644); err != nil {
			return fmt.Errorf("writing default profile: %w", err)
		}
	}

	fmt.Printf("\nWrote %s\n", outputFile)
	fmt.Printf("Edit %s to add backends, then run: mcp-hub serve\n", profilePath)
	return nil
}
