package runsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRunHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("path = %q, want /v1/health", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"health"}, Options{
		BaseURL: server.URL,
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if code != 0 {
		t.Fatalf("Run() = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("Run() stdout = %s", stdout.String())
	}
}

func TestRunQueryCommand(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/query" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "secret" {
			t.Errorf("X-API-Key = %q, want secret", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("Decode() error = %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statement_id":"abc","rows":[]}`))
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", server.URL,
		"-api-key", "secret",
		"-param", "id=7",
		"-param", "region=eu",
		"-raise",
		"-server-binds", "false",
		"-export", "out.parquet",
		"run", "SELECT :id, :region",
	}, Options{Stdout: &stdout, Stderr: &stderr})
	if code != 0 {
		t.Fatalf("Run() = %d, stderr: %s", code, stderr.String())
	}

	if captured["sql"] != "SELECT :id, :region" {
		t.Fatalf("payload sql = %v", captured["sql"])
	}
	if captured["raise_errors"] != true {
		t.Fatalf("payload raise_errors = %v", captured["raise_errors"])
	}
	if captured["server_binds"] != false {
		t.Fatalf("payload server_binds = %v", captured["server_binds"])
	}
	if captured["export_key"] != "out.parquet" {
		t.Fatalf("payload export_key = %v", captured["export_key"])
	}
	params, ok := captured["params"].(map[string]any)
	if !ok || params["id"] != "7" || params["region"] != "eu" {
		t.Fatalf("payload params = %v", captured["params"])
	}
	if !strings.Contains(stdout.String(), "abc") {
		t.Fatalf("Run() stdout = %s", stdout.String())
	}
}

func TestRunReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"AMBIGUOUS_PLACEHOLDERS"}`))
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"run", "SELECT 90 % x"}, Options{
		BaseURL: server.URL,
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if code != 1 {
		t.Fatalf("Run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "AMBIGUOUS_PLACEHOLDERS") {
		t.Fatalf("Run() stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	var stderr bytes.Buffer
	if code := Run(context.Background(), nil, Options{Stderr: &stderr}); code != 2 {
		t.Fatalf("Run() with no args = %d, want 2", code)
	}
	if code := Run(context.Background(), []string{"explode"}, Options{Stderr: &stderr}); code != 2 {
		t.Fatalf("Run() with unknown command = %d, want 2", code)
	}
	if code := Run(context.Background(), []string{"run"}, Options{Stderr: &stderr}); code != 2 {
		t.Fatalf("Run() run without statement = %d, want 2", code)
	}
	if code := Run(context.Background(), []string{"-server-binds", "maybe", "run", "SELECT 1"}, Options{Stderr: &stderr}); code != 2 {
		t.Fatalf("Run() with bad hint = %d, want 2", code)
	}
}

func TestRunCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stderr bytes.Buffer
	code := Run(ctx, []string{"run", "SELECT pg_sleep(60)"}, Options{
		BaseURL: server.URL,
		Stderr:  &stderr,
	})
	if code != 1 {
		t.Fatalf("Run() = %d, want 1", code)
	}
}
