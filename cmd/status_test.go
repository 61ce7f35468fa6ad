package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tvlink/relay/internal/server"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{323, "5m 23s"},
		{8100, "2h 15m"},
		{3*86400 + 4*3600, "3d 4h"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.seconds); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestRunStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(server.StatusResponse{
			ListeningAddress:      "0.0.0.0:5500",
			ConnectedClients:      3,
			TVCount:               2,
			MobileCount:           1,
			ActivePairingSessions: 1,
			UptimeSeconds:         323,
		})
	}))
	defer ts.Close()
	addr := strings.TrimPrefix(ts.URL, "http://")

	var stdout, stderr bytes.Buffer
	if code := runStatus([]string{"--addr", addr}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%q", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"0.0.0.0:5500", "3 connected", "TVs:          2", "5m 23s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	stdout.Reset()
	if code := runStatus([]string{"--addr", addr, "--json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("json exit code %d", code)
	}
	var decoded server.StatusResponse
	if err := json.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if decoded.TVCount != 2 {
		t.Errorf("TVCount = %d", decoded.TVCount)
	}
}

func TestRunStatus_NotRunning(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runStatus([]string{"--addr", "127.0.0.1:1"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "not running") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
