package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tvlink/relay/internal/logx"
	"github.com/tvlink/relay/internal/pairing"
	"github.com/tvlink/relay/internal/registry"
	"github.com/tvlink/relay/internal/storage"
)

func TestStatusHandler_Loopback(t *testing.T) {
	s := NewServer("127.0.0.1:5500")
	s.Registry().Register(registry.KindTV, "tv-1", &recordingHandle{id: "a"}, "", nil)
	s.Registry().Register(registry.KindEmulator, "emu-1", &recordingHandle{id: "b"}, "", nil)
	s.Pairing().Create("tv-1", &recordingHandle{id: "m"})

	h := NewStatusHandler(s, true)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TVCount != 1 || resp.EmulatorCount != 1 || resp.MobileCount != 0 {
		t.Errorf("counts = %+v", resp)
	}
	if resp.ActivePairingSessions != 1 {
		t.Errorf("ActivePairingSessions = %d, want 1", resp.ActivePairingSessions)
	}
	if !resp.TLSEnabled {
		t.Error("TLSEnabled should be true")
	}
	if resp.ListeningAddress != "127.0.0.1:5500" {
		t.Errorf("ListeningAddress = %q", resp.ListeningAddress)
	}
}

func TestStatusHandler_IPv6Loopback(t *testing.T) {
	h := NewStatusHandler(NewServer("unused"), false)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "[::1]:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestStatusHandler_RejectsRemote(t *testing.T) {
	h := NewStatusHandler(NewServer("unused"), false)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "192.168.1.20:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestStatusHandler_MethodNotAllowed(t *testing.T) {
	h := NewStatusHandler(NewServer("unused"), false)
	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s := NewServer("unused")
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestAuditStoreAdapter(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"), logx.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	adapter := NewAuditStoreAdapter(store, 2)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, action := range []string{AuditRequested, AuditConfirmed, AuditExpired} {
		ev := PairingEvent{SessionID: "s1", TVID: "tv-1", MobileID: "m1", Action: action, At: at}
		if err := adapter.RecordPairingEvent(ev); err != nil {
			t.Fatalf("RecordPairingEvent: %v", err)
		}
	}

	entries, err := store.ListPairingAudit(10)
	if err != nil {
		t.Fatalf("ListPairingAudit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 after pruning", len(entries))
	}
	if entries[0].Action != AuditExpired || entries[1].Action != AuditConfirmed {
		t.Errorf("actions = %s, %s", entries[0].Action, entries[1].Action)
	}
	if !entries[0].At.Equal(at) || entries[0].MobileID != "m1" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestAuditedPairingThroughServer(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:", logx.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	s := NewServer("unused")
	s.SetPairingAuditor(NewAuditStoreAdapter(store, 0))
	sess := s.Pairing().Create("tv-1", &recordingHandle{id: "m1"})
	s.HandleExpiredSessions([]pairing.Session{sess})

	n, err := store.CountPairingAudit()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("audit rows = %d, want 1", n)
	}
}
