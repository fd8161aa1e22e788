package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	records := filepath.Join(dir, "records.json")
	if err := os.WriteFile(records, []byte(`[]`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := "log:\n  level: error\nmodel:\n  provider: none\nworkflow:\n  backoff: 1ms\nstorage:\n  records_file: " + records + "\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"grant": false, "revoke": false, "grants": false, "ask": false, "runs": false, "snapshot": false}
	for _, c := range newRootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestGrant_PrintsPermissions(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "grant", "--user", "u1", "transactions", "perm_income")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !strings.Contains(out, "transactions  granted") || !strings.Contains(out, "income        granted") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "assets        denied") {
		t.Errorf("expected assets denied:\n%s", out)
	}
}

func TestGrant_UnknownCategory(t *testing.T) {
	cfg := writeConfig(t)

	if _, err := run(t, "--config", cfg, "grant", "--user", "u1", "crypto"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestGrant_RequiresUser(t *testing.T) {
	cfg := writeConfig(t)

	if _, err := run(t, "--config", cfg, "grant", "assets"); err == nil {
		t.Fatal("expected error without --user")
	}
}

func TestAsk_NoGrants(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "--json", "ask", "--user", "u1", "What is my net worth?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var result struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if result.Status != "done" || result.Reason != "no_authorized_data" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestAsk_Unsupported(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "ask", "--user", "u1", "--grant", "transactions", "Write", "me", "a", "poem")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "status: rejected (unsupported_intent)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestAsk_GrantRefusedForStoredGrants(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	content := "log:\n  level: error\nmodel:\n  provider: none\nstorage:\n  grants: postgres\n  postgres_dsn: postgres://insights@127.0.0.1:1/insights\n"
	if err := os.WriteFile(cfg, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, "--config", cfg, "ask", "--user", "u1", "--grant", "transactions", "How much did I spend?")
	if err == nil || !strings.Contains(err.Error(), "memory grant store") {
		t.Fatalf("Expected --grant to be refused for postgres grants, got %v", err)
	}
}

func TestRuns_RequiresProject(t *testing.T) {
	cfg := writeConfig(t)

	if _, err := run(t, "--config", cfg, "runs", "--user", "u1"); err == nil {
		t.Fatal("expected error without a BigQuery project")
	}
}
