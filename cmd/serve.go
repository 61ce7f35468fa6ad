package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvlink/relay/internal/config"
	"github.com/tvlink/relay/internal/logx"
	"github.com/tvlink/relay/internal/mdns"
	"github.com/tvlink/relay/internal/pairing"
	"github.com/tvlink/relay/internal/registry"
	"github.com/tvlink/relay/internal/server"
	"github.com/tvlink/relay/internal/storage"
	relaytls "github.com/tvlink/relay/internal/tls"
)

// ServeConfig is the merged result of CLI flags and the config file.
type ServeConfig struct {
	Config string

	Addr    string
	TLS     bool
	TLSCert string
	TLSKey  string

	LogLevel  string
	LogFormat string

	AuditDB      string
	AuditMaxRows int

	MdnsEnabled bool
	QR          bool

	EventsPerSecond     float64
	EventBurst          int
	SweepInterval       time.Duration
	ConfirmedSessionTTL time.Duration
	AllowedOrigins      []string
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &ServeConfig{}
	var origins string

	fs.StringVar(&cfg.Config, "config", "", "Path to config file (default: ~/.tvlink/config.toml)")
	fs.StringVar(&cfg.Addr, "addr", "", "Listen address (default: "+config.DefaultAddr+")")
	fs.BoolVar(&cfg.TLS, "tls", false, "Serve wss:// with a self-signed or configured certificate")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "Path to TLS certificate (default: ~/.tvlink/certs/relay.crt)")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "Path to TLS key (default: ~/.tvlink/certs/relay.key)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error (default: info)")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format: console or json (default: console)")
	fs.StringVar(&cfg.AuditDB, "audit-db", "", "Path to pairing audit database (default: disabled)")
	fs.BoolVar(&cfg.MdnsEnabled, "mdns", false, "Advertise the relay over mDNS")
	fs.BoolVar(&cfg.QR, "qr", false, "Print the connect URL as a QR code")
	fs.Float64Var(&cfg.EventsPerSecond, "events-per-second", 0, "Per-connection inbound event rate (default: 50)")
	fs.IntVar(&cfg.EventBurst, "event-burst", 0, "Per-connection inbound event burst (default: 20)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 0, "Expired pairing sweep interval (default: 60s)")
	fs.DurationVar(&cfg.ConfirmedSessionTTL, "confirmed-session-ttl", 0, "Drop confirmed pairings after this long (default: keep)")
	fs.StringVar(&origins, "allowed-origins", "", "Comma-separated browser origins allowed to connect (default: any)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tvlink serve [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	fileCfg, err := config.Load(cfg.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	mergeServeConfig(cfg, fileCfg, explicitFlags)
	applyServeDefaults(cfg)

	if err := validateServeConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// mergeServeConfig fills fields the CLI left empty from the config file.
// Boolean flags take the file value only when not set explicitly, so
// --mdns=false can override mdns_enabled = true.
func mergeServeConfig(cfg *ServeConfig, fileCfg *config.Config, explicitFlags map[string]bool) {
	if cfg.Addr == "" {
		cfg.Addr = fileCfg.Addr
	}
	if !explicitFlags["tls"] {
		cfg.TLS = fileCfg.TLS
	}
	if cfg.TLSCert == "" {
		cfg.TLSCert = fileCfg.TLSCert
	}
	if cfg.TLSKey == "" {
		cfg.TLSKey = fileCfg.TLSKey
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = fileCfg.LogFormat
	}
	if cfg.AuditDB == "" {
		cfg.AuditDB = fileCfg.AuditDB
	}
	if cfg.AuditMaxRows == 0 {
		cfg.AuditMaxRows = fileCfg.AuditMaxRows
	}
	if !explicitFlags["mdns"] {
		cfg.MdnsEnabled = fileCfg.MdnsEnabled
	}
	if !explicitFlags["qr"] {
		cfg.QR = fileCfg.QR
	}
	if cfg.EventsPerSecond == 0 {
		cfg.EventsPerSecond = fileCfg.EventsPerSecond
	}
	if cfg.EventBurst == 0 {
		cfg.EventBurst = fileCfg.EventBurst
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = fileCfg.SweepInterval
	}
	if cfg.ConfirmedSessionTTL == 0 {
		cfg.ConfirmedSessionTTL = fileCfg.ConfirmedSessionTTL
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = fileCfg.AllowedOrigins
	}
}

func applyServeDefaults(cfg *ServeConfig) {
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = logx.FormatConsole
	}
	if cfg.EventsPerSecond == 0 {
		cfg.EventsPerSecond = server.DefaultEventsPerSecond
	}
	if cfg.EventBurst == 0 {
		cfg.EventBurst = server.DefaultEventBurst
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = config.DefaultSweepInterval
	}
	if cfg.AuditMaxRows == 0 {
		cfg.AuditMaxRows = server.DefaultAuditMaxRows
	}
}

// validateServeConfig checks the merged values, reusing the config file rules.
func validateServeConfig(cfg *ServeConfig) error {
	if _, port, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", cfg.Addr, err)
	} else if err := validatePort(port); err != nil {
		return err
	}
	return (&config.Config{
		LogLevel:            cfg.LogLevel,
		LogFormat:           cfg.LogFormat,
		TLSCert:             cfg.TLSCert,
		TLSKey:              cfg.TLSKey,
		AuditMaxRows:        cfg.AuditMaxRows,
		EventsPerSecond:     cfg.EventsPerSecond,
		EventBurst:          cfg.EventBurst,
		SweepInterval:       cfg.SweepInterval,
		ConfirmedSessionTTL: cfg.ConfirmedSessionTTL,
	}).Validate()
}

func validatePort(port string) error {
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q: must be 0-65535", port)
	}
	return nil
}

// serve runs the relay until ctx is cancelled. Startup failures (bind,
// certificate, audit database) are returned; everything after startup is
// logged.
func serve(ctx context.Context, cfg *ServeConfig, stdout, stderr io.Writer) error {
	log := logx.New(cfg.LogLevel, cfg.LogFormat, stderr)

	store := pairing.NewStore(pairing.Config{ConfirmedTTL: cfg.ConfirmedSessionTTL})
	reg := registry.New(registry.Config{TimeNow: store.Now})

	wsServer := server.NewServer(cfg.Addr)
	wsServer.SetLogger(logx.Component(log, "server"))
	wsServer.SetRegistry(reg)
	wsServer.SetPairingStore(store)
	wsServer.SetAllowedOrigins(cfg.AllowedOrigins)
	wsServer.SetRateLimit(cfg.EventsPerSecond, cfg.EventBurst)
	wsServer.SetStatusHandler(server.NewStatusHandler(wsServer, cfg.TLS))

	var auditStore *storage.SQLiteStore
	if cfg.AuditDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.AuditDB), 0700); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
		s, err := storage.NewSQLiteStore(cfg.AuditDB, logx.Component(log, "storage"))
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		auditStore = s
		defer auditStore.Close()
		wsServer.SetPairingAuditor(server.NewAuditStoreAdapter(auditStore, cfg.AuditMaxRows))
		fmt.Fprintf(stdout, "Pairing audit: %s\n", cfg.AuditDB)
	}

	listenHost, _, _ := net.SplitHostPort(cfg.Addr)

	var errCh <-chan error
	var certInfo *relaytls.CertInfo
	if cfg.TLS {
		hosts := relaytls.LANAddresses()
		if listenHost != "" && listenHost != "0.0.0.0" {
			hosts = append(hosts, listenHost)
		}
		info, err := relaytls.EnsureCertificate(relaytls.CertConfig{
			CertPath: cfg.TLSCert,
			KeyPath:  cfg.TLSKey,
			Hosts:    hosts,
		})
		if err != nil {
			return fmt.Errorf("failed to setup TLS certificate: %w", err)
		}
		certInfo = info
		printCertInfo(stdout, info)
		errCh = wsServer.StartAsyncTLS(server.TLSConfig{CertPath: info.CertPath, KeyPath: info.KeyPath})
	} else {
		errCh = wsServer.StartAsync()
	}
	if err := <-errCh; err != nil {
		return err
	}
	defer wsServer.Stop()

	sweeper := pairing.NewSweeper(store, pairing.SweeperConfig{
		Interval:  cfg.SweepInterval,
		OnExpired: wsServer.HandleExpiredSessions,
		Logger:    logx.Component(log, "sweeper"),
	})
	sweeper.Start()
	defer sweeper.Stop()

	_, boundPort, _ := net.SplitHostPort(wsServer.ListenAddr())
	connectURL := buildConnectURL(relaytls.AdvertiseHost(listenHost), boundPort, cfg.TLS)

	fingerprint := ""
	if certInfo != nil {
		fingerprint = certInfo.Fingerprint
	}
	if cfg.QR {
		DisplayConnectQR(stdout, connectURL, fingerprint)
	}

	if cfg.MdnsEnabled {
		port, _ := strconv.Atoi(boundPort)
		advertiser := mdns.NewAdvertiser(mdns.Config{
			Port:        port,
			TLS:         cfg.TLS,
			Fingerprint: fingerprint,
			Logger:      logx.Component(log, "mdns"),
		})
		if err := advertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to start mDNS discovery: %v\n", err)
		} else {
			fmt.Fprintln(stdout, "mDNS discovery: ENABLED (visible on LAN)")
			defer advertiser.Stop()
		}
	}

	fmt.Fprintf(stdout, "Relay listening on %s\n", wsServer.ListenAddr())
	fmt.Fprintf(stdout, "Connect devices to %s\n", connectURL)
	fmt.Fprintln(stdout, "Press Ctrl+C to stop.")

	<-ctx.Done()
	logShutdown(log, wsServer)
	fmt.Fprintln(stdout, "\nStopping relay...")
	return nil
}

func logShutdown(log zerolog.Logger, s *server.Server) {
	n := s.Counts()
	log.Info().
		Int("clients", n.ConnectedClients).
		Int("pairing_sessions", n.ActivePairingSessions).
		Dur("uptime", s.Uptime()).
		Msg("relay shutting down")
}

func printCertInfo(w io.Writer, info *relaytls.CertInfo) {
	if info.IsGenerated {
		fmt.Fprintln(w, "Generated new self-signed TLS certificate")
	} else {
		fmt.Fprintln(w, "Loaded existing TLS certificate")
	}
	fmt.Fprintf(w, "Certificate: %s\n", info.CertPath)
	fmt.Fprintf(w, "Valid until: %s\n", info.NotAfter.Format("2006-01-02"))
	fmt.Fprintf(w, "Fingerprint (SHA-256):\n  %s\n", info.Fingerprint)
}

func buildConnectURL(host, port string, tls bool) string {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	return scheme + "://" + net.JoinHostPort(host, port) + mdns.DefaultPath
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
