package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestNewSQLiteStore verifies that a store can be created with an in-memory database.
func TestNewSQLiteStore(t *testing.T) {
	store := newTestStore(t)

	entries, err := store.ListPairingAudit(0)
	if err != nil {
		t.Fatalf("ListPairingAudit failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty audit log, got %d entries", len(entries))
	}
}

// TestSchemaVersion verifies every migration is recorded.
func TestSchemaVersion(t *testing.T) {
	store := newTestStore(t)

	var version int
	if err := store.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}
}

// TestReopenKeepsData verifies migrations are idempotent across reopen.
func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := NewSQLiteStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.SavePairingAudit(&PairingAuditEntry{SessionID: "s1", TVID: "tv-1", Action: "requested", At: time.Now()}, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.Close()

	store, err = NewSQLiteStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	n, err := store.CountPairingAudit()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count after reopen = %d, want 1", n)
	}
}

func TestSaveAndListPairingAudit(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)

	actions := []string{"requested", "confirmed", "cancelled"}
	for i, a := range actions {
		entry := &PairingAuditEntry{
			SessionID: "sess-1",
			TVID:      "tv-1",
			MobileID:  "m-1",
			Action:    a,
			At:        base.Add(time.Duration(i) * time.Second),
		}
		if err := store.SavePairingAudit(entry, 0); err != nil {
			t.Fatalf("SavePairingAudit(%s): %v", a, err)
		}
		if entry.ID == 0 {
			t.Errorf("entry ID not assigned for %s", a)
		}
	}

	got, err := store.ListPairingAudit(0)
	if err != nil {
		t.Fatalf("ListPairingAudit: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Action != "cancelled" || got[2].Action != "requested" {
		t.Errorf("entries not newest first: %s ... %s", got[0].Action, got[2].Action)
	}
	if !got[2].At.Equal(base) {
		t.Errorf("At = %v, want %v", got[2].At, base)
	}
	if got[0].MobileID != "m-1" || got[0].TVID != "tv-1" || got[0].SessionID != "sess-1" {
		t.Errorf("unexpected entry %+v", got[0])
	}

	limited, err := store.ListPairingAudit(2)
	if err != nil {
		t.Fatalf("ListPairingAudit(2): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d entries", len(limited))
	}
}

func TestSavePairingAudit_Nil(t *testing.T) {
	store := newTestStore(t)
	if err := store.SavePairingAudit(nil, 0); err == nil {
		t.Error("expected error for nil entry")
	}
}

func TestSavePairingAudit_Prunes(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 10; i++ {
		entry := &PairingAuditEntry{
			SessionID: fmt.Sprintf("sess-%d", i),
			TVID:      "tv-1",
			Action:    "requested",
			At:        time.Now(),
		}
		if err := store.SavePairingAudit(entry, 4); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got, err := store.ListPairingAudit(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("kept %d rows, want 4", len(got))
	}
	if got[0].SessionID != "sess-9" || got[3].SessionID != "sess-6" {
		t.Errorf("pruned the wrong rows: newest=%s oldest=%s", got[0].SessionID, got[3].SessionID)
	}
}

func TestListPairingAuditForTV(t *testing.T) {
	store := newTestStore(t)

	for _, tv := range []string{"tv-1", "tv-2", "tv-1"} {
		store.SavePairingAudit(&PairingAuditEntry{SessionID: "s", TVID: tv, Action: "requested", At: time.Now()}, 0)
	}

	got, err := store.ListPairingAuditForTV("tv-1", 0)
	if err != nil {
		t.Fatalf("ListPairingAuditForTV: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("tv-1 has %d entries, want 2", len(got))
	}
	for _, e := range got {
		if e.TVID != "tv-1" {
			t.Errorf("unexpected tv %s", e.TVID)
		}
	}

	if _, err := store.ListPairingAuditForTV("", 0); err == nil {
		t.Error("expected error for empty tv id")
	}
}

func TestSavePairingAudit_Concurrent(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			entry := &PairingAuditEntry{SessionID: fmt.Sprintf("s-%d", n), TVID: "tv-1", Action: "requested", At: time.Now()}
			if err := store.SavePairingAudit(entry, 0); err != nil {
				t.Errorf("save %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	n, err := store.CountPairingAudit()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 20 {
		t.Errorf("count = %d, want 20", n)
	}
}
