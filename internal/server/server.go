package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	// gorilla/websocket provides the WebSocket protocol implementation:
	// upgrade handshake, framed reads/writes, ping/pong and close handling.
	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tvlink/relay/internal/logx"
	"github.com/tvlink/relay/internal/pairing"
	"github.com/tvlink/relay/internal/registry"
)

// channelBufferSize is the buffer size for per-client send channels. If a client's buffer fills up, messages to it are dropped
// rather than blocking the sender.
const channelBufferSize = 256

// Default per-connection inbound event limits.
const (
	DefaultEventsPerSecond = 50
	DefaultEventBurst      = 20
)

// PairingAuditor records pairing lifecycle events. Failures are logged and
// never affect the relay's reply to clients.
type PairingAuditor interface {
	RecordPairingEvent(ev PairingEvent) error
}

// PairingEvent is one audited pairing transition.
type PairingEvent struct {
	SessionID string
	TVID      string
	MobileID  string
	Action    string // requested, confirmed, rejected, cancelled, expired
	At        time.Time
}

// Pairing audit actions.
const (
	AuditRequested = "requested"
	AuditConfirmed = "confirmed"
	AuditRejected  = "rejected"
	AuditCancelled = "cancelled"
	AuditExpired   = "expired"
)

// Server manages WebSocket connections and routes events between them.
// Device identity lives in the registry and pairing state in the pairing
// store; the server itself only tracks live connections.
type Server struct {
	// addr is the address to listen on (e.g., "0.0.0.0:5500")
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// clients tracks all connected WebSocket clients, registered or not.
	clients map[*Client]bool

	// mu protects clients, stopped and the optional collaborators below.
	mu sync.RWMutex

	// stopped indicates whether the server has been stopped. New
	// connections are refused once it is set.
	stopped bool

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	// boundAddr is the listener's actual address once started.
	boundAddr string

	registry *registry.Registry
	pairing  *pairing.Store

	// auditor is optional; nil disables pairing audit.
	auditor PairingAuditor

	// statusHandler serves /status when set.
	statusHandler http.Handler

	// allowedOrigins restricts the Origin header on upgrade. Empty allows all.
	allowedOrigins []string

	eventsPerSecond rate.Limit
	eventBurst      int

	startTime time.Time
	log       zerolog.Logger
}

// NewServer creates a new relay server that will listen on addr.
// It starts with an empty registry and a pairing store using default TTLs;
// use SetPairingStore to supply a configured one before Start.
func NewServer(addr string) *Server {
	s := &Server{
		addr:            addr,
		clients:         make(map[*Client]bool),
		registry:        registry.New(registry.Config{}),
		pairing:         pairing.NewStore(pairing.Config{}),
		eventsPerSecond: rate.Limit(DefaultEventsPerSecond),
		eventBurst:      DefaultEventBurst,
		startTime:       time.Now(),
		log:             logx.Nop(),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

// SetLogger sets the server's logger. Call before Start.
func (s *Server) SetLogger(l zerolog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = logx.Component(l, "server")
}

// SetPairingStore replaces the pairing store. Call before Start.
func (s *Server) SetPairingStore(p *pairing.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairing = p
}

// SetRegistry replaces the device registry. Call before Start.
func (s *Server) SetRegistry(r *registry.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = r
}

// SetPairingAuditor enables pairing audit logging.
func (s *Server) SetPairingAuditor(a PairingAuditor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditor = a
}

// SetStatusHandler sets the handler served at /status.
func (s *Server) SetStatusHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHandler = h
}

// SetAllowedOrigins restricts which browser origins may open a WebSocket.
// An empty list accepts any origin. Requests without an Origin header
// (native apps) are always accepted.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedOrigins = append([]string(nil), origins...)
}

// SetRateLimit sets the per-connection inbound event limit for new
// connections. Non-positive values keep the defaults.
func (s *Server) SetRateLimit(perSecond float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perSecond > 0 {
		s.eventsPerSecond = rate.Limit(perSecond)
	}
	if burst > 0 {
		s.eventBurst = burst
	}
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	return s.addr
}

// Registry returns the device registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Pairing returns the pairing session store.
func (s *Server) Pairing() *pairing.Store {
	return s.pairing
}

// Uptime returns how long ago the server was created.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// now is the clock used for every payload timestamp.
func (s *Server) now() time.Time {
	return s.pairing.Now()
}

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.mu.RLock()
	statusHandler := s.statusHandler
	s.mu.RUnlock()

	if statusHandler != nil {
		mux.Handle("/status", statusHandler)
		s.log.Debug().Msg("status endpoint registered at /status")
	}

	return mux
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(s.Uptime().Seconds()),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	s.mu.RLock()
	allowed := s.allowedOrigins
	s.mu.RUnlock()

	if len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	s.log.Warn().Str("origin", origin).Msg("rejected websocket origin")
	return false
}

// handleWebSocket upgrades the connection and starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	client := &Client{
		id:      uuid.New().String(),
		conn:    conn,
		send:    make(chan Message, channelBufferSize),
		done:    make(chan struct{}),
		server:  s,
		limiter: rate.NewLimiter(s.eventsPerSecond, s.eventBurst),
		remote:  r.RemoteAddr,
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.log.Info().Str("conn", client.id).Str("remote", client.remote).Int("total", total).Msg("client connected")

	go client.writePump()
	go client.readPump()
}

// isLoopbackRequest checks if the HTTP request originates from a loopback address.
// Used to restrict diagnostic endpoints to the local machine.
func isLoopbackRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
