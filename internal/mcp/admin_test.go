// ABOUTME: Tests for the profile admin routes and health endpoint.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2389/mcp-hub/internal/store"
)

type fakeUsage struct {
	summary []*store.ToolUsage
	recent  []*store.InvocationRecord
}

func (f *fakeUsage) UsageSummary(ctx context.Context) ([]*store.ToolUsage, error) {
	return f.summary, nil
}

func (f *fakeUsage) ListInvocations(ctx context.Context, limit int) ([]*store.InvocationRecord, error) {
	return f.recent, nil
}

func TestProfileStatus(t *testing.T) {
	env := newTestServer(t)
	mux := env.mux()

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status profileStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if status.Current != "dev" {
		t.Errorf("current = %q", status.Current)
	}
	if len(status.Available) != 2 {
		t.Errorf("available = %v", status.Available)
	}
}

func TestProfileSwitch(t *testing.T) {
	env := newTestServer(t)
	mux := env.mux()

	req := httptest.NewRequest(http.MethodPost, "/api/profile",
		strings.NewReader(`{"name":"prod"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.profiles.activated) != 1 || env.profiles.activated[0] != "prod" {
		t.Errorf("activations = %v", env.profiles.activated)
	}
}

func TestProfileSwitch_Failure(t *testing.T) {
	env := newTestServer(t)
	env.profiles.activateErr = errors.New("profile not found")
	mux := env.mux()

	req := httptest.NewRequest(http.MethodPost, "/api/profile",
		strings.NewReader(`{"name":"missing"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestProfileSwitch_MissingName(t *testing.T) {
	env := newTestServer(t)
	mux := env.mux()

	req := httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUsage(t *testing.T) {
	env := newTestServer(t)
	env.server.SetUsageReporter(&fakeUsage{
		summary: []*store.ToolUsage{{QualifiedName: "kubernetes_get_pods", Calls: 3, Errors: 1}},
		recent:  []*store.InvocationRecord{{QualifiedName: "kubernetes_get_pods", BackendID: "kubernetes", Profile: "dev"}},
	})
	mux := env.mux()

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var report usageReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(report.Summary) != 1 || report.Summary[0].Calls != 3 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if len(report.Recent) != 1 || report.Recent[0].Profile != "dev" {
		t.Errorf("recent = %+v", report.Recent)
	}
}

func TestUsage_AuditingDisabled(t *testing.T) {
	env := newTestServer(t)
	mux := env.mux()

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no store is wired", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)
	mux := env.mux()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["profile"] != "dev" {
		t.Errorf("profile = %v", body["profile"])
	}
}
