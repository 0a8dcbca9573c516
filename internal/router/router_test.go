// ABOUTME: Tests for call routing, name resolution, and failure synthesis.
// ABOUTME: Uses fake backend sources so no connection setup is needed.

package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/mcp-hub/internal/backend"
	"github.com/2389/mcp-hub/internal/registry"
)

type fakeInvoker struct {
	gotName string
	gotArgs json.RawMessage
	result  *mcp.CallToolResult
	err     error
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	f.gotName = name
	f.gotArgs = args
	return f.result, f.err
}

type fakeSource struct {
	profile  string
	invokers map[string]backend.Invoker
}

func (f *fakeSource) CurrentProfile() (string, error) {
	if f.profile == "" {
		return "", errors.New("no active profile")
	}
	return f.profile, nil
}

func (f *fakeSource) Connection(backendID string) (backend.Invoker, error) {
	inv, ok := f.invokers[backendID]
	if !ok {
		return nil, errors.New("backend not found in active profile")
	}
	return inv, nil
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func newTestRouter(reg *registry.Registry, src BackendSource, rec InvocationRecorder) *Router {
	return New(reg, src, rec, slog.New(slog.DiscardHandler))
}

func TestCallTool_RoutesToBackendWithOriginalName(t *testing.T) {
	reg := registry.New()
	reg.Register("kubernetes", []registry.ToolInfo{{Name: "get_pods", Description: "List pods"}})

	inv := &fakeInvoker{result: &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: `[{"name":"web-1"}]`}},
	}}
	src := &fakeSource{profile: "dev", invokers: map[string]backend.Invoker{"kubernetes": inv}}
	r := newTestRouter(reg, src, nil)

	args := json.RawMessage(`{"namespace":"default"}`)
	res, err := r.CallTool(context.Background(), "kubernetes_get_pods", args)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if inv.gotName != "get_pods" {
		t.Errorf("backend saw %q, want the unprefixed get_pods", inv.gotName)
	}
	if string(inv.gotArgs) != `{"namespace":"default"}` {
		t.Errorf("arguments not passed through: %s", inv.gotArgs)
	}
	if res.IsError {
		t.Error("successful call flagged as error")
	}
	if textOf(t, res) != `[{"name":"web-1"}]` {
		t.Errorf("backend result was modified: %s", textOf(t, res))
	}
}

func TestCallTool_UnknownTool(t *testing.T) {
	src := &fakeSource{profile: "dev"}
	r := newTestRouter(registry.New(), src, nil)

	res, err := r.CallTool(context.Background(), "docker_list_containers", nil)
	if err != nil {
		t.Fatalf("CallTool returned transport error: %v", err)
	}
	if !res.IsError {
		t.Fatal("unknown tool must produce an error-flagged result")
	}
	msg := textOf(t, res)
	if !strings.Contains(msg, "docker_list_containers") {
		t.Errorf("message does not name the tool: %q", msg)
	}
	if !strings.Contains(msg, "dev") {
		t.Errorf("message does not name the active profile: %q", msg)
	}
}

func TestCallTool_NoActiveProfile(t *testing.T) {
	r := newTestRouter(registry.New(), &fakeSource{}, nil)

	res, err := r.CallTool(context.Background(), "kubernetes_get_pods", nil)
	if err != nil {
		t.Fatalf("CallTool returned transport error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error-flagged result")
	}
	if !strings.Contains(textOf(t, res), "no profile is active") {
		t.Errorf("unexpected message: %q", textOf(t, res))
	}
}

func TestCallTool_BackendNotConnected(t *testing.T) {
	reg := registry.New()
	reg.Register("docker", []registry.ToolInfo{{Name: "ps", Description: "List containers"}})
	src := &fakeSource{profile: "dev"} // registered but never connected
	r := newTestRouter(reg, src, nil)

	res, err := r.CallTool(context.Background(), "docker_ps", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error-flagged result")
	}
	msg := textOf(t, res)
	if !strings.Contains(msg, "docker") || !strings.Contains(msg, "not connected") {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestCallTool_InvokeFailureBecomesErrorResult(t *testing.T) {
	reg := registry.New()
	reg.Register("kubernetes", []registry.ToolInfo{{Name: "get_pods", Description: "List pods"}})
	inv := &fakeInvoker{err: errors.New("connection reset")}
	src := &fakeSource{profile: "dev", invokers: map[string]backend.Invoker{"kubernetes": inv}}
	r := newTestRouter(reg, src, nil)

	res, err := r.CallTool(context.Background(), "kubernetes_get_pods", nil)
	if err != nil {
		t.Fatalf("CallTool must not surface transport errors, got: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error-flagged result")
	}
	if !strings.Contains(textOf(t, res), "connection reset") {
		t.Errorf("backend failure not described: %q", textOf(t, res))
	}
}

func TestCallTool_BackendErrorResultPassesThrough(t *testing.T) {
	reg := registry.New()
	reg.Register("kubernetes", []registry.ToolInfo{{Name: "get_pods", Description: "List pods"}})
	inv := &fakeInvoker{result: &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "forbidden: namespace kube-system"}},
		IsError: true,
	}}
	src := &fakeSource{profile: "dev", invokers: map[string]backend.Invoker{"kubernetes": inv}}
	r := newTestRouter(reg, src, nil)

	res, err := r.CallTool(context.Background(), "kubernetes_get_pods", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("backend's error flag lost")
	}
	if textOf(t, res) != "forbidden: namespace kube-system" {
		t.Errorf("backend content was altered: %q", textOf(t, res))
	}
}

func TestListTools_NoProfileIsEmpty(t *testing.T) {
	r := newTestRouter(registry.New(), &fakeSource{}, nil)
	if got := r.ListTools(); len(got) != 0 {
		t.Errorf("expected empty listing, got %d entries", len(got))
	}
}

func TestListTools_Decorated(t *testing.T) {
	reg := registry.New()
	reg.Register("kubernetes", []registry.ToolInfo{{Name: "get_pods", Description: "List pods"}})
	r := newTestRouter(reg, &fakeSource{profile: "dev"}, nil)

	entries := r.ListTools()
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0].QualifiedName != "kubernetes_get_pods" {
		t.Errorf("qualified name = %q", entries[0].QualifiedName)
	}
	if entries[0].Description != "[dev/kubernetes] List pods" {
		t.Errorf("description = %q", entries[0].Description)
	}
}

type captureRecorder struct {
	invocations []Invocation
}

func (c *captureRecorder) RecordInvocation(_ context.Context, inv Invocation) error {
	c.invocations = append(c.invocations, inv)
	return nil
}

func TestCallTool_RecordsInvocations(t *testing.T) {
	reg := registry.New()
	reg.Register("kubernetes", []registry.ToolInfo{{Name: "get_pods", Description: "List pods"}})
	inv := &fakeInvoker{result: &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "ok"}}}}
	src := &fakeSource{profile: "dev", invokers: map[string]backend.Invoker{"kubernetes": inv}}
	rec := &captureRecorder{}
	r := newTestRouter(reg, src, rec)

	if _, err := r.CallTool(context.Background(), "kubernetes_get_pods", nil); err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if _, err := r.CallTool(context.Background(), "missing_tool", nil); err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	if len(rec.invocations) != 2 {
		t.Fatalf("recorded %d invocations, want 2", len(rec.invocations))
	}
	if rec.invocations[0].IsError {
		t.Error("successful call recorded as error")
	}
	if !rec.invocations[1].IsError {
		t.Error("failed routing not recorded as error")
	}
	if rec.invocations[0].Profile != "dev" {
		t.Errorf("profile = %q, want dev", rec.invocations[0].Profile)
	}
}
