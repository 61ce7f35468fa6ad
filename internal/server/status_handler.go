package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse contains relay status returned by the /status endpoint.
// The "tvlink status" command renders it.
type StatusResponse struct {
	// ListeningAddress is the address the relay is bound to.
	ListeningAddress string `json:"listening_address"`

	// ConnectedClients counts open WebSocket connections, registered or not.
	ConnectedClients int `json:"connected_clients"`

	TVCount       int `json:"tv_count"`
	MobileCount   int `json:"mobile_count"`
	EmulatorCount int `json:"emulator_count"`

	// ActivePairingSessions counts every held session, confirmed ones included.
	ActivePairingSessions int `json:"active_pairing_sessions"`

	// UptimeSeconds is how long the relay has been running, in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`

	TLSEnabled bool `json:"tls_enabled"`
}

// StatusHandler handles HTTP requests for relay status.
// This endpoint is restricted to local machine addresses.
type StatusHandler struct {
	server     *Server
	startTime  time.Time
	tlsEnabled bool
}

// NewStatusHandler creates a new StatusHandler. The handler captures the
// current time as the start time for uptime calculation.
func NewStatusHandler(s *Server, tlsEnabled bool) *StatusHandler {
	return &StatusHandler{
		server:     s,
		startTime:  time.Now(),
		tlsEnabled: tlsEnabled,
	}
}

// ServeHTTP handles GET /status. Non-local requests receive 403 and
// non-GET requests receive 405.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "Forbidden: status endpoint is local-only", http.StatusForbidden)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n := h.server.Counts()
	resp := StatusResponse{
		ListeningAddress:      h.server.ListenAddr(),
		ConnectedClients:      n.ConnectedClients,
		TVCount:               n.TVs,
		MobileCount:           n.Mobiles,
		EmulatorCount:         n.Emulators,
		ActivePairingSessions: n.ActivePairingSessions,
		UptimeSeconds:         int64(time.Since(h.startTime).Seconds()),
		TLSEnabled:            h.tlsEnabled,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
