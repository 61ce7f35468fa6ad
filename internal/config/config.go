// Package config provides TOML configuration file loading and parsing for the relay.
// The configuration file lives at ~/.tvlink/config.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tvlink/relay/internal/logx"
)

// Config represents the relay configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Addr is the host:port for the WebSocket server.
	// Default: 0.0.0.0:5500
	Addr string `toml:"addr"`

	// TLS serves wss:// instead of ws://. When TLSCert and TLSKey are empty
	// a self-signed certificate is generated under ~/.tvlink/certs.
	TLS bool `toml:"tls"`

	// TLSCert is the path to the TLS certificate file.
	TLSCert string `toml:"tls_cert"`

	// TLSKey is the path to the TLS key file.
	TLSKey string `toml:"tls_key"`

	// LogLevel controls logging verbosity: trace, debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// LogFormat is "console" (human readable) or "json".
	// Default: console
	LogFormat string `toml:"log_format"`

	// AuditDB is the path to the SQLite pairing audit database.
	// Empty disables pairing audit.
	AuditDB string `toml:"audit_db"`

	// AuditMaxRows bounds the audit table; older rows are pruned.
	// Default: 10000
	AuditMaxRows int `toml:"audit_max_rows"`

	// MdnsEnabled advertises the relay as _tvlink._tcp on the local network
	// so TVs and phones can find it without typing an address.
	// Default: false
	MdnsEnabled bool `toml:"mdns_enabled"`

	// QR prints the relay's WebSocket URL as a QR code at startup.
	// Default: false
	QR bool `toml:"qr"`

	// EventsPerSecond and EventBurst shape the per-connection token bucket.
	// Defaults: 50 and 20
	EventsPerSecond float64 `toml:"events_per_second"`
	EventBurst      int     `toml:"event_burst"`

	// SweepInterval is how often expired pairing sessions are removed,
	// written as a Go duration string ("60s", "2m").
	// Default: 60s
	SweepInterval time.Duration `toml:"sweep_interval"`

	// ConfirmedSessionTTL removes confirmed sessions this long after pairing.
	// Zero keeps them until cancelled.
	ConfirmedSessionTTL time.Duration `toml:"confirmed_session_ttl"`

	// AllowedOrigins restricts browser Origin headers on upgrade.
	// Empty allows any origin.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// DefaultConfigPath returns the default config file location: ~/.tvlink/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDir returns ~/.tvlink, where the config, certificates and audit
// database live by default.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tvlink"), nil
}

// WriteDefault creates a starter config file at the given path.
// The config listens on all interfaces and records pairing audit next to it.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# tvlink relay configuration
# Created by 'tvlink init'

# Listen on all interfaces so TVs and phones on the LAN can connect
addr = %q

log_level = "info"
log_format = "console"

# Pairing audit log (remove to disable)
audit_db = %q

# Advertise the relay over mDNS
mdns_enabled = false

# How often expired pairing requests are swept
sweep_interval = %q
`, DefaultAddr, filepath.Join(dir, DefaultAuditDBName), DefaultSweepInterval.String())

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.tvlink/config.toml).
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed or fails Validate.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no component can run with. Zero values are
// always valid; they mean "use the default".
func (c *Config) Validate() error {
	if c.LogLevel != "" && !logx.ValidLevel(c.LogLevel) {
		return fmt.Errorf("log_level %q must be one of trace, debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "", logx.FormatConsole, logx.FormatJSON:
	default:
		return fmt.Errorf("log_format %q must be console or json", c.LogFormat)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if c.AuditMaxRows < 0 {
		return fmt.Errorf("audit_max_rows must not be negative")
	}
	if c.EventsPerSecond < 0 || c.EventBurst < 0 {
		return fmt.Errorf("events_per_second and event_burst must not be negative")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must not be negative")
	}
	if c.SweepInterval > 0 && c.SweepInterval < time.Second {
		return fmt.Errorf("sweep_interval %s is below the 1s minimum", c.SweepInterval)
	}
	if c.ConfirmedSessionTTL < 0 {
		return fmt.Errorf("confirmed_session_ttl must not be negative")
	}
	return nil
}
