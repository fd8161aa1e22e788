package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_transactions.sql", true, "0001", "transactions"},
		{"0002_insight_runs.sql", true, "0002", "insight_runs"},
		{"001_invalid.sql", false, "", ""},
		{"0001_test", false, "", ""},
		{"0001.sql", false, "", ""},
		{"invalid_0001_test.sql", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want %v", m != nil, tt.valid)
			}
			if tt.valid && (m[1] != tt.version || m[2] != tt.name) {
				t.Errorf("got version %q name %q", m[1], m[2])
			}
		})
	}
}

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0002_second.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (id INT64);")
	writeMigration(t, dir, "0001_first.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (id INT64);")
	writeMigration(t, dir, "README.md", "not a migration")

	tgt := target{projectID: "proj", datasetID: "finance"}
	got, err := readMigrations(dir, tgt)
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].Version != 1 || got[1].Version != 2 {
		t.Errorf("migrations not sorted: %d, %d", got[0].Version, got[1].Version)
	}
	if !strings.Contains(got[0].SQL, "`proj.finance.a`") {
		t.Errorf("placeholders not replaced: %s", got[0].SQL)
	}

	// checksums ignore the target
	other, err := readMigrations(dir, target{projectID: "other", datasetID: "ds"})
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if other[0].Checksum != got[0].Checksum {
		t.Error("checksum should not depend on project or dataset")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_a.sql", "SELECT 1;")
	writeMigration(t, dir, "0001_b.sql", "SELECT 2;")

	if _, err := readMigrations(dir, target{}); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestRepositoryMigrations(t *testing.T) {
	got, err := readMigrations(resolveDir("migrations/bigquery"), target{projectID: "p", datasetID: "d"})
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("expected the bundled migrations, got %d", len(got))
	}
	for _, m := range got {
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("%s still has placeholders", m.Filename)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	all := []Migration{
		{Version: 1, Filename: "0001_a.sql", Checksum: "aaa"},
		{Version: 2, Filename: "0002_b.sql", Checksum: "bbb"},
	}

	pending, err := pendingMigrations(all, []AppliedMigration{{Version: 1, Checksum: "aaa"}})
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Errorf("unexpected pending: %+v", pending)
	}

	pending, err = pendingMigrations(all, []AppliedMigration{{Version: 1}, {Version: 2, Checksum: "bbb"}})
	if err != nil || len(pending) != 0 {
		t.Errorf("expected nothing pending, got %+v, %v", pending, err)
	}

	_, err = pendingMigrations(all, []AppliedMigration{{Version: 1, Checksum: "changed"}})
	if !errors.Is(err, errChecksumMismatch) {
		t.Errorf("expected checksum mismatch, got %v", err)
	}
}
