package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, llmURL string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`data_dir: %s
index_dir: %s
llm:
  base_url: %s
  api_key_env: RAGBOT_TEST_KEY
drive:
  credentials_file: %s
log:
  mode: prod
`, filepath.Join(dir, "data"), filepath.Join(dir, "index"), llmURL, filepath.Join(dir, "missing.json"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_IngestAskReset(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompts = append(prompts, req.Messages[len(req.Messages)-1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Mostly CO2."}}]}`))
	}))
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)

	doc := filepath.Join(t.TempDir(), "mars.txt")
	if err := os.WriteFile(doc, []byte("Mars has a thin CO2 atmosphere."), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfg, "ask", "What", "is", "Mars?")
	if err != nil || !strings.Contains(out, "Knowledge base not found") || len(prompts) != 0 {
		t.Fatalf("ask before ingest = %q, %v, %d llm calls", out, err, len(prompts))
	}

	out, err = run(t, "--config", cfg, "ingest", doc)
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Ingested mars.txt (txt)") || !strings.Contains(out, "1 chunks") {
		t.Fatalf("ingest output = %q", out)
	}

	out, err = run(t, "--config", cfg, "ask", "What is Mars's atmosphere made of?")
	if err != nil || strings.TrimSpace(out) != "Mostly CO2." {
		t.Fatalf("ask = %q, %v", out, err)
	}
	if len(prompts) != 1 || !strings.Contains(prompts[0], "Mars has a thin CO2 atmosphere.") {
		t.Fatalf("prompts = %q", prompts)
	}

	out, err = run(t, "--config", cfg, "reset")
	if err != nil || !strings.Contains(out, "Knowledge base cleared.") {
		t.Fatalf("reset = %q, %v", out, err)
	}
	out, err = run(t, "--config", cfg, "reset")
	if err != nil || !strings.Contains(out, "already empty") {
		t.Fatalf("second reset = %q, %v", out, err)
	}
}

func TestCLI_Errors(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1")
	if _, err := run(t, "--config", cfg, "ingest", filepath.Join(t.TempDir(), "sheet.xlsx")); err == nil {
		t.Fatalf("expected ingest of a missing file to fail")
	}
	if _, err := run(t, "--config", cfg, "drive", "auth-url"); err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Fatalf("drive without credentials = %v", err)
	}
	if _, err := run(t, "--config", cfg, "drive", "list"); err == nil {
		t.Fatalf("expected drive list to fail without credentials")
	}
}
