package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tvlink/relay/internal/logx"
	"github.com/tvlink/relay/internal/storage"
)

func seedAudit(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := storage.NewSQLiteStore(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []storage.PairingAuditEntry{
		{SessionID: "s1", TVID: "tv-1", MobileID: "m1", Action: "requested", At: base},
		{SessionID: "s1", TVID: "tv-1", MobileID: "m1", Action: "confirmed", At: base.Add(time.Second)},
		{SessionID: "s2", TVID: "tv-2", MobileID: "m2", Action: "requested", At: base.Add(2 * time.Second)},
	}
	for i := range rows {
		if err := store.SavePairingAudit(&rows[i], 0); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestRunAudit(t *testing.T) {
	path := seedAudit(t)

	var stdout, stderr bytes.Buffer
	if code := runAudit([]string{"--db", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%q", code, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3:\n%s", len(lines), stdout.String())
	}
	if !strings.Contains(lines[1], "tv-2") {
		t.Errorf("newest entry should be first, got %q", lines[1])
	}
}

func TestRunAudit_FilterAndLimit(t *testing.T) {
	path := seedAudit(t)

	var stdout, stderr bytes.Buffer
	if code := runAudit([]string{"--db", path, "--tv", "tv-1", "--limit", "1", "--json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%q", code, stderr.String())
	}
	var entries []auditEntryJSON
	if err := json.Unmarshal(stdout.Bytes(), &entries); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "confirmed" || entries[0].TVID != "tv-1" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRunAudit_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	store, err := storage.NewSQLiteStore(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	var stdout, stderr bytes.Buffer
	if code := runAudit([]string{"--db", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stdout.String(), "No pairing audit entries") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunAudit_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "nope.db")
	if code := runAudit([]string{"--db", missing}, &stdout, &stderr); code != 1 {
		t.Errorf("missing db: exit code %d, want 1", code)
	}
	if _, err := os.Stat(missing); err == nil {
		t.Error("audit must not create a missing database")
	}

	if code := runAudit([]string{"--db", missing, "--limit", "0"}, &stdout, &stderr); code != 1 {
		t.Errorf("zero limit: exit code %d, want 1", code)
	}
}
