// Package mdns advertises the relay on the local network.
//
// TVs and phones browse for ServiceType and connect to the advertised
// host, port and path without anyone typing an address. The TXT record
// carries:
//   - version: relay protocol version
//   - name: human-readable relay name
//   - path: WebSocket endpoint path
//   - tls: "1" when the relay serves wss://
//   - fp: certificate fingerprint, when TLS is on
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"github.com/tvlink/relay/internal/logx"
)

// ServiceType is the DNS-SD service type for tvlink relays.
const ServiceType = "_tvlink._tcp"

// ProtocolVersion identifies the relay event protocol.
const ProtocolVersion = "1"

// DefaultPath is the WebSocket endpoint advertised when Config.Path is empty.
const DefaultPath = "/ws"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the relay port to advertise.
	Port int

	// Name is the instance name. Defaults to the system hostname.
	Name string

	// Path is the WebSocket endpoint. Defaults to DefaultPath.
	Path string

	TLS bool

	// Fingerprint is advertised only when TLS is true.
	Fingerprint string

	Logger zerolog.Logger
}

// Advertiser manages the DNS-SD registration.
type Advertiser struct {
	config Config
	log    zerolog.Logger
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	log := cfg.Logger
	if log.GetLevel() == zerolog.Disabled {
		log = logx.Nop()
	}
	return &Advertiser{
		config: cfg,
		log:    log,
	}
}

// instanceName resolves the advertised instance name.
func (a *Advertiser) instanceName() string {
	if a.config.Name != "" {
		return a.config.Name
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "tvlink"
	}
	return hostname
}

// TXTRecords returns the TXT strings Start will publish.
func (a *Advertiser) TXTRecords() []string {
	tls := "0"
	if a.config.TLS {
		tls = "1"
	}
	records := []string{
		"version=" + ProtocolVersion,
		"name=" + a.instanceName(),
		"path=" + a.config.Path,
		"tls=" + tls,
	}
	// DNS TXT strings are capped at 255 bytes; a SHA-256 fingerprint is 95.
	if a.config.TLS && a.config.Fingerprint != "" {
		records = append(records, "fp="+a.config.Fingerprint)
	}
	return records
}

// Start registers the service. Calling Start while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := a.instanceName()
	server, err := zeroconf.Register(name, ServiceType, "local.", a.config.Port, a.TXTRecords(), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	a.log.Info().Str("instance", name).Str("service", ServiceType).Int("port", a.config.Port).Msg("mdns advertisement started")
	return nil
}

// Stop unregisters the service. It is safe to call Stop multiple times or
// on an advertiser that was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.log.Info().Msg("mdns advertisement stopped")
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// DiscoveredRelay is a relay found by Discover.
type DiscoveredRelay struct {
	Name        string
	Host        string
	Port        int
	Path        string
	TLS         bool
	Fingerprint string
	Version     string
}

// URL returns the WebSocket URL clients should dial.
func (r DiscoveredRelay) URL() string {
	scheme := "ws"
	if r.TLS {
		scheme = "wss"
	}
	path := r.Path
	if path == "" {
		path = DefaultPath
	}
	return scheme + "://" + net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) + path
}

// applyTXT fills relay fields from TXT strings. Unknown keys are ignored.
func (r *DiscoveredRelay) applyTXT(records []string) {
	for _, txt := range records {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			r.Version = value
		case "name":
			r.Name = value
		case "path":
			r.Path = value
		case "tls":
			r.TLS = value == "1"
		case "fp":
			r.Fingerprint = value
		}
	}
}

// Discover browses for relays until ctx is done and returns what it found.
// cmd/wsclient uses it when no URL is given.
func Discover(ctx context.Context) ([]DiscoveredRelay, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		relays []DiscoveredRelay
		mu     sync.Mutex
		wg     sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			relay := DiscoveredRelay{
				Name: entry.Instance,
				Port: entry.Port,
			}
			// Prefer IPv4
			if len(entry.AddrIPv4) > 0 {
				relay.Host = entry.AddrIPv4[0].String()
			} else if len(entry.AddrIPv6) > 0 {
				relay.Host = entry.AddrIPv6[0].String()
			}
			relay.applyTXT(entry.Text)

			mu.Lock()
			relays = append(relays, relay)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	// zeroconf closes entries once ctx is done.
	<-ctx.Done()
	wg.Wait()

	return relays, nil
}
